package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saffron-pos/saffron-pos/internal/platform/db"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// TxRepository is the transactional surface of the reconciliation module.
// It embeds the ledger's transactional operations so approval posts its
// adjustment entries in the same transaction as the status change.
type TxRepository interface {
	stock.TxRepository

	InsertReconciliation(ctx context.Context, rec StockReconciliation) (int64, error)
	InsertItems(ctx context.Context, recID int64, items []ReconciliationItem) error
	GetReconciliationForUpdate(ctx context.Context, id int64) (StockReconciliation, error)
	GetItems(ctx context.Context, recID int64) ([]ReconciliationItem, error)
	UpdateItemCount(ctx context.Context, itemID int64, physicalStock, difference, valueDifference float64, note string) error
	LinkItemAdjustment(ctx context.Context, itemID, txID int64) error
	UpdateStatus(ctx context.Context, id int64, status ReconciliationStatus, actorID int64, at time.Time) error
	UpdateTotals(ctx context.Context, id int64, itemsCounted, discrepancyCount int, totalValueDifference float64) error
	ListAllIngredients(ctx context.Context) ([]stock.Ingredient, error)
}

// Repository is the pgx-backed persistence layer for reconciliations.
// The "one in_progress at a time" rule is enforced by a partial unique
// index on stock_reconciliations(status) WHERE status = 'in_progress', so
// two concurrent starts cannot both commit.
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

func (r *txRepository) InsertReconciliation(ctx context.Context, rec StockReconciliation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO stock_reconciliations (reconciliation_number, location, status, note, started_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		rec.ReconciliationNumber, rec.Location, string(rec.Status), rec.Note, rec.StartedBy, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAlreadyInProgress
		}
		return 0, fmt.Errorf("reconciliation: insert: %w", err)
	}
	return id, nil
}

func (r *txRepository) InsertItems(ctx context.Context, recID int64, items []ReconciliationItem) error {
	for _, item := range items {
		_, err := r.tx.Exec(ctx, `
INSERT INTO stock_reconciliation_items
	(reconciliation_id, ingredient_id, system_stock, physical_stock, unit_cost, difference, value_difference, counted)
VALUES ($1, $2, $3, $3, $4, 0, 0, FALSE)`,
			recID, item.IngredientID, item.SystemStock, item.UnitCost)
		if err != nil {
			return fmt.Errorf("reconciliation: insert item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) GetReconciliationForUpdate(ctx context.Context, id int64) (StockReconciliation, error) {
	row := r.tx.QueryRow(ctx, `
SELECT id, reconciliation_number, COALESCE(location, ''), status, COALESCE(note, ''),
	started_by, COALESCE(approved_by, 0), items_counted, discrepancy_count, total_value_difference,
	created_at, completed_at, approved_at
FROM stock_reconciliations
WHERE id = $1
FOR UPDATE`, id)
	rec, err := scanReconciliation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockReconciliation{}, ErrReconciliationNotFound
	}
	if err != nil {
		return StockReconciliation{}, fmt.Errorf("reconciliation: get for update: %w", err)
	}
	return rec, nil
}

func (r *txRepository) GetItems(ctx context.Context, recID int64) ([]ReconciliationItem, error) {
	return queryItems(ctx, r.tx, recID)
}

func (r *txRepository) UpdateItemCount(ctx context.Context, itemID int64, physicalStock, difference, valueDifference float64, note string) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE stock_reconciliation_items
SET physical_stock=$2, difference=$3, value_difference=$4, note=$5, counted=TRUE
WHERE id=$1`, itemID, physicalStock, difference, valueDifference, note)
	if err != nil {
		return fmt.Errorf("reconciliation: update item count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) LinkItemAdjustment(ctx context.Context, itemID, txID int64) error {
	_, err := r.tx.Exec(ctx, `
UPDATE stock_reconciliation_items SET adjustment_tx_id=$2 WHERE id=$1`, itemID, txID)
	if err != nil {
		return fmt.Errorf("reconciliation: link adjustment: %w", err)
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status ReconciliationStatus, actorID int64, at time.Time) error {
	var query string
	switch status {
	case StatusCompleted:
		query = `UPDATE stock_reconciliations SET status=$2, completed_at=$4 WHERE id=$1`
	case StatusApproved:
		query = `UPDATE stock_reconciliations SET status=$2, approved_by=$3, approved_at=$4 WHERE id=$1`
	default:
		return fmt.Errorf("reconciliation: unsupported status update %s", status)
	}
	tag, err := r.tx.Exec(ctx, query, id, string(status), actorID, at)
	if err != nil {
		return fmt.Errorf("reconciliation: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReconciliationNotFound
	}
	return nil
}

func (r *txRepository) UpdateTotals(ctx context.Context, id int64, itemsCounted, discrepancyCount int, totalValueDifference float64) error {
	_, err := r.tx.Exec(ctx, `
UPDATE stock_reconciliations
SET items_counted=$2, discrepancy_count=$3, total_value_difference=$4
WHERE id=$1`, id, itemsCounted, discrepancyCount, totalValueDifference)
	if err != nil {
		return fmt.Errorf("reconciliation: update totals: %w", err)
	}
	return nil
}

func (r *txRepository) ListAllIngredients(ctx context.Context) ([]stock.Ingredient, error) {
	rows, err := r.tx.Query(ctx, `
SELECT id, name, unit, current_stock, unit_cost, reorder_level, created_at, updated_at
FROM ingredients
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: list ingredients: %w", err)
	}
	defer rows.Close()

	var out []stock.Ingredient
	for rows.Next() {
		var ing stock.Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.CurrentStock, &ing.UnitCost, &ing.ReorderLevel, &ing.CreatedAt, &ing.UpdatedAt); err != nil {
			return nil, fmt.Errorf("reconciliation: list ingredients scan: %w", err)
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// GetReconciliation reads one exercise with its items.
func (r *Repository) GetReconciliation(ctx context.Context, id int64) (StockReconciliation, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, reconciliation_number, COALESCE(location, ''), status, COALESCE(note, ''),
	started_by, COALESCE(approved_by, 0), items_counted, discrepancy_count, total_value_difference,
	created_at, completed_at, approved_at
FROM stock_reconciliations
WHERE id = $1`, id)
	rec, err := scanReconciliation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockReconciliation{}, ErrReconciliationNotFound
	}
	if err != nil {
		return StockReconciliation{}, fmt.Errorf("reconciliation: get: %w", err)
	}
	items, err := queryItems(ctx, r.pool, id)
	if err != nil {
		return StockReconciliation{}, err
	}
	rec.Items = items
	return rec, nil
}

// ListReconciliations returns exercises newest first.
func (r *Repository) ListReconciliations(ctx context.Context, limit int) ([]StockReconciliation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
SELECT id, reconciliation_number, COALESCE(location, ''), status, COALESCE(note, ''),
	started_by, COALESCE(approved_by, 0), items_counted, discrepancy_count, total_value_difference,
	created_at, completed_at, approved_at
FROM stock_reconciliations
ORDER BY created_at DESC, id DESC
LIMIT %d`, limit))
	if err != nil {
		return nil, fmt.Errorf("reconciliation: list: %w", err)
	}
	defer rows.Close()

	var out []StockReconciliation
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, fmt.Errorf("reconciliation: list scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, recID int64) ([]ReconciliationItem, error) {
	rows, err := q.Query(ctx, `
SELECT ri.id, ri.reconciliation_id, ri.ingredient_id, i.name, i.unit,
	ri.system_stock, ri.physical_stock, ri.unit_cost, ri.difference, ri.value_difference,
	COALESCE(ri.note, ''), ri.counted, COALESCE(ri.adjustment_tx_id, 0)
FROM stock_reconciliation_items ri
JOIN ingredients i ON i.id = ri.ingredient_id
WHERE ri.reconciliation_id = $1
ORDER BY ri.id ASC`, recID)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: get items: %w", err)
	}
	defer rows.Close()

	var out []ReconciliationItem
	for rows.Next() {
		var item ReconciliationItem
		if err := rows.Scan(
			&item.ID, &item.ReconciliationID, &item.IngredientID, &item.IngredientName, &item.Unit,
			&item.SystemStock, &item.PhysicalStock, &item.UnitCost, &item.Difference, &item.ValueDifference,
			&item.Note, &item.Counted, &item.AdjustmentTxID,
		); err != nil {
			return nil, fmt.Errorf("reconciliation: get items scan: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReconciliation(row rowScanner) (StockReconciliation, error) {
	var rec StockReconciliation
	var status string
	err := row.Scan(
		&rec.ID, &rec.ReconciliationNumber, &rec.Location, &status, &rec.Note,
		&rec.StartedBy, &rec.ApprovedBy, &rec.ItemsCounted, &rec.DiscrepancyCount, &rec.TotalValueDifference,
		&rec.CreatedAt, &rec.CompletedAt, &rec.ApprovedAt,
	)
	rec.Status = ReconciliationStatus(status)
	return rec, err
}
