package returns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saffron-pos/saffron-pos/internal/platform/db"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// TxRepository is the transactional surface of the returns module.
type TxRepository interface {
	stock.TxRepository

	InsertReturn(ctx context.Context, ret StockReturn) (int64, error)
	GetReturnForUpdate(ctx context.Context, id int64) (StockReturn, error)
	UpdateStatus(ctx context.Context, id int64, status ReturnStatus, at *time.Time) error
	UpdateRefundStatus(ctx context.Context, id int64, refund RefundStatus) error
	SetLedgerTx(ctx context.Context, id, txID int64) error
}

// Repository is the pgx-backed persistence layer for supplier returns.
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

func (r *txRepository) InsertReturn(ctx context.Context, ret StockReturn) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO stock_returns
	(return_number, ingredient_id, quantity, unit_cost, supplier, reason, status, refund_status, refund_amount, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id`,
		ret.ReturnNumber, ret.IngredientID, ret.Quantity, ret.UnitCost, ret.Supplier, ret.Reason,
		string(ret.Status), string(ret.RefundStatus), ret.RefundAmount, ret.CreatedBy, ret.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("returns: insert: %w", err)
	}
	return id, nil
}

func (r *txRepository) GetReturnForUpdate(ctx context.Context, id int64) (StockReturn, error) {
	row := r.tx.QueryRow(ctx, selectReturn+` WHERE id = $1 FOR UPDATE`, id)
	ret, err := scanReturn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockReturn{}, ErrReturnNotFound
	}
	if err != nil {
		return StockReturn{}, fmt.Errorf("returns: get for update: %w", err)
	}
	return ret, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status ReturnStatus, at *time.Time) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE stock_returns SET status=$2, closed_at=COALESCE($3, closed_at) WHERE id=$1`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("returns: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReturnNotFound
	}
	return nil
}

func (r *txRepository) UpdateRefundStatus(ctx context.Context, id int64, refund RefundStatus) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE stock_returns SET refund_status=$2 WHERE id=$1`, id, string(refund))
	if err != nil {
		return fmt.Errorf("returns: update refund status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReturnNotFound
	}
	return nil
}

func (r *txRepository) SetLedgerTx(ctx context.Context, id, txID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_returns SET ledger_tx_id=$2 WHERE id=$1`, id, txID)
	if err != nil {
		return fmt.Errorf("returns: set ledger tx: %w", err)
	}
	return nil
}

const selectReturn = `
SELECT id, return_number, ingredient_id, quantity, unit_cost, supplier, COALESCE(reason, ''),
	status, refund_status, refund_amount, COALESCE(ledger_tx_id, 0), created_by, created_at, closed_at
FROM stock_returns`

// GetReturn reads one return document.
func (r *Repository) GetReturn(ctx context.Context, id int64) (StockReturn, error) {
	row := r.pool.QueryRow(ctx, selectReturn+` WHERE id = $1`, id)
	ret, err := scanReturn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockReturn{}, ErrReturnNotFound
	}
	if err != nil {
		return StockReturn{}, fmt.Errorf("returns: get: %w", err)
	}
	return ret, nil
}

// ListReturns returns documents newest first, optionally by status.
func (r *Repository) ListReturns(ctx context.Context, status ReturnStatus, limit int) ([]StockReturn, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := selectReturn
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("returns: list: %w", err)
	}
	defer rows.Close()

	var out []StockReturn
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("returns: list scan: %w", err)
		}
		out = append(out, ret)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReturn(row rowScanner) (StockReturn, error) {
	var ret StockReturn
	var status, refund string
	err := row.Scan(
		&ret.ID, &ret.ReturnNumber, &ret.IngredientID, &ret.Quantity, &ret.UnitCost, &ret.Supplier, &ret.Reason,
		&status, &refund, &ret.RefundAmount, &ret.LedgerTxID, &ret.CreatedBy, &ret.CreatedAt, &ret.ClosedAt,
	)
	ret.Status = ReturnStatus(status)
	ret.RefundStatus = RefundStatus(refund)
	return ret, err
}
