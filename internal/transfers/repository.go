package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saffron-pos/saffron-pos/internal/platform/db"
	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// TxRepository is the transactional surface of the transfers module. It
// embeds the ledger's transactional operations so a transfer's document
// writes and its stock movements commit together.
type TxRepository interface {
	stock.TxRepository

	InsertTransfer(ctx context.Context, t StockTransfer) (int64, error)
	InsertItems(ctx context.Context, transferID int64, items []TransferItem) error
	GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error)
	GetItems(ctx context.Context, transferID int64) ([]TransferItem, error)
	UpdateStatus(ctx context.Context, id int64, status TransferStatus, actorID int64, at time.Time) error
	UpdateItemCounts(ctx context.Context, itemID int64, line ReceiptLine, inTxID int64) error
}

// Repository is the pgx-backed persistence layer for stock transfers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, TxRepository: stock.NewTxRepository(tx)})
	})
}

type txRepository struct {
	stock.TxRepository
	tx pgx.Tx
}

func (r *txRepository) InsertTransfer(ctx context.Context, t StockTransfer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO stock_transfers (transfer_number, from_location, to_location, status, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		t.TransferNumber, t.FromLocation, t.ToLocation, string(t.Status), t.Note, t.CreatedBy, t.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("transfers: insert transfer: %w", err)
	}
	return id, nil
}

func (r *txRepository) InsertItems(ctx context.Context, transferID int64, items []TransferItem) error {
	for _, item := range items {
		_, err := r.tx.Exec(ctx, `
INSERT INTO stock_transfer_items (transfer_id, ingredient_id, quantity_sent, received_qty, damaged_qty, out_tx_id)
VALUES ($1, $2, $3, 0, 0, NULLIF($4, 0))`, transferID, item.IngredientID, item.QuantitySent, item.OutTxID)
		if err != nil {
			return fmt.Errorf("transfers: insert item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error) {
	row := r.tx.QueryRow(ctx, `
SELECT id, transfer_number, from_location, to_location, status, COALESCE(note, ''),
	created_by, COALESCE(dispatched_by, 0), COALESCE(received_by, 0),
	created_at, dispatched_at, closed_at
FROM stock_transfers
WHERE id = $1
FOR UPDATE`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockTransfer{}, ErrTransferNotFound
	}
	if err != nil {
		return StockTransfer{}, fmt.Errorf("transfers: get transfer for update: %w", err)
	}
	return t, nil
}

func (r *txRepository) GetItems(ctx context.Context, transferID int64) ([]TransferItem, error) {
	return queryItems(ctx, r.tx, transferID)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status TransferStatus, actorID int64, at time.Time) error {
	var query string
	switch status {
	case StatusInTransit:
		query = `UPDATE stock_transfers SET status=$2, dispatched_by=$3, dispatched_at=$4 WHERE id=$1`
	case StatusReceived:
		query = `UPDATE stock_transfers SET status=$2, received_by=$3, closed_at=$4 WHERE id=$1`
	case StatusCancelled:
		query = `UPDATE stock_transfers SET status=$2, received_by=$3, closed_at=$4 WHERE id=$1`
	default:
		return fmt.Errorf("transfers: unsupported status update %s", status)
	}
	tag, err := r.tx.Exec(ctx, query, id, string(status), actorID, at)
	if err != nil {
		return fmt.Errorf("transfers: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (r *txRepository) UpdateItemCounts(ctx context.Context, itemID int64, line ReceiptLine, inTxID int64) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE stock_transfer_items
SET received_qty=$2, damaged_qty=$3, damage_reason=NULLIF($4, ''), in_tx_id=NULLIF($5, 0)
WHERE id=$1`, itemID, line.ReceivedQty, line.DamagedQty, line.DamageReason, inTxID)
	if err != nil {
		return fmt.Errorf("transfers: update item counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfers: item %d %w", itemID, shared.ErrNotFound)
	}
	return nil
}

// GetTransfer reads one transfer with its items.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (StockTransfer, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, transfer_number, from_location, to_location, status, COALESCE(note, ''),
	created_by, COALESCE(dispatched_by, 0), COALESCE(received_by, 0),
	created_at, dispatched_at, closed_at
FROM stock_transfers
WHERE id = $1`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockTransfer{}, ErrTransferNotFound
	}
	if err != nil {
		return StockTransfer{}, fmt.Errorf("transfers: get transfer: %w", err)
	}
	items, err := queryItems(ctx, r.pool, id)
	if err != nil {
		return StockTransfer{}, err
	}
	t.Items = items
	return t, nil
}

// ListTransfers returns transfers newest first, optionally by status.
func (r *Repository) ListTransfers(ctx context.Context, status TransferStatus, limit int) ([]StockTransfer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
SELECT id, transfer_number, from_location, to_location, status, COALESCE(note, ''),
	created_by, COALESCE(dispatched_by, 0), COALESCE(received_by, 0),
	created_at, dispatched_at, closed_at
FROM stock_transfers`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transfers: list transfers: %w", err)
	}
	defer rows.Close()

	var out []StockTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("transfers: list transfers scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, transferID int64) ([]TransferItem, error) {
	rows, err := q.Query(ctx, `
SELECT id, transfer_id, ingredient_id, quantity_sent, received_qty, damaged_qty,
	COALESCE(damage_reason, ''), COALESCE(out_tx_id, 0), COALESCE(in_tx_id, 0)
FROM stock_transfer_items
WHERE transfer_id = $1
ORDER BY id ASC`, transferID)
	if err != nil {
		return nil, fmt.Errorf("transfers: get items: %w", err)
	}
	defer rows.Close()

	var out []TransferItem
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.IngredientID, &item.QuantitySent, &item.ReceivedQty, &item.DamagedQty, &item.DamageReason, &item.OutTxID, &item.InTxID); err != nil {
			return nil, fmt.Errorf("transfers: get items scan: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (StockTransfer, error) {
	var t StockTransfer
	var status string
	err := row.Scan(
		&t.ID, &t.TransferNumber, &t.FromLocation, &t.ToLocation, &status, &t.Note,
		&t.CreatedBy, &t.DispatchedBy, &t.ReceivedBy,
		&t.CreatedAt, &t.DispatchedAt, &t.ClosedAt,
	)
	t.Status = TransferStatus(status)
	return t, err
}
