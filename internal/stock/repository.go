package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saffron-pos/saffron-pos/internal/platform/db"
)

// TxRepository is the transactional surface of the ledger. Other modules
// obtain one via NewTxRepository over their own pgx.Tx so document writes
// and ledger writes share a single transaction.
type TxRepository interface {
	GetIngredientForUpdate(ctx context.Context, id int64) (Ingredient, error)
	UpdateIngredientStock(ctx context.Context, ingredientID int64, newStock, unitCost float64) error
	InsertTransaction(ctx context.Context, entry StockTransaction) (int64, error)
	NextDocumentNumber(ctx context.Context, doc DocumentType, year int) (string, error)
}

// Repository is the pgx-backed persistence layer for the stock ledger.
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
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository wraps an open transaction with the ledger's
// transactional operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

// GetIngredientForUpdate locks the ingredient row until the transaction
// ends so concurrent movements on the same ingredient serialise.
func (r *txRepository) GetIngredientForUpdate(ctx context.Context, id int64) (Ingredient, error) {
	row := r.tx.QueryRow(ctx, `
SELECT id, name, unit, current_stock, unit_cost, reorder_level, created_at, updated_at
FROM ingredients
WHERE id = $1
FOR UPDATE`, id)
	ing, err := scanIngredient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ingredient{}, ErrIngredientNotFound
	}
	if err != nil {
		return Ingredient{}, fmt.Errorf("stock: get ingredient for update: %w", err)
	}
	return ing, nil
}

func (r *txRepository) UpdateIngredientStock(ctx context.Context, ingredientID int64, newStock, unitCost float64) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE ingredients
SET current_stock = $2, unit_cost = $3, updated_at = NOW()
WHERE id = $1`, ingredientID, newStock, unitCost)
	if err != nil {
		return fmt.Errorf("stock: update ingredient stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIngredientNotFound
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, entry StockTransaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO stock_transactions (
	transaction_number, ingredient_id, transaction_type, quantity,
	previous_stock, new_stock, unit, unit_cost,
	from_location, to_location, reference_kind, reference_id,
	note, performed_by, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,0),$13,$14,$15,$16)
RETURNING id`,
		entry.TransactionNumber, entry.IngredientID, string(entry.Type), entry.Quantity,
		entry.PreviousStock, entry.NewStock, entry.Unit, entry.UnitCost,
		entry.FromLocation, entry.ToLocation, string(entry.ReferenceKind), entry.ReferenceID,
		entry.Note, entry.PerformedBy, string(entry.Status), entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("stock: insert transaction: %w", err)
	}
	return id, nil
}

// NextDocumentNumber draws the next number from a per-type, per-year
// counter row. The upsert increments atomically, so two transactions can
// never observe the same value.
func (r *txRepository) NextDocumentNumber(ctx context.Context, doc DocumentType, year int) (string, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO document_sequences (doc_type, year, seq)
VALUES ($1, $2, 1)
ON CONFLICT (doc_type, year)
DO UPDATE SET seq = document_sequences.seq + 1
RETURNING seq`, string(doc), year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("stock: next document number: %w", err)
	}
	return FormatDocumentNumber(doc, year, seq), nil
}

// GetIngredient reads one ingredient outside any transaction.
func (r *Repository) GetIngredient(ctx context.Context, id int64) (Ingredient, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, name, unit, current_stock, unit_cost, reorder_level, created_at, updated_at
FROM ingredients
WHERE id = $1`, id)
	ing, err := scanIngredient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ingredient{}, ErrIngredientNotFound
	}
	if err != nil {
		return Ingredient{}, fmt.Errorf("stock: get ingredient: %w", err)
	}
	return ing, nil
}

// ListIngredients returns every ingredient ordered by name.
func (r *Repository) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, unit, current_stock, unit_cost, reorder_level, created_at, updated_at
FROM ingredients
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("stock: list ingredients: %w", err)
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, fmt.Errorf("stock: list ingredients scan: %w", err)
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// CreateIngredient inserts an inventory item with its opening stock.
func (r *Repository) CreateIngredient(ctx context.Context, ing Ingredient) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO ingredients (name, unit, current_stock, unit_cost, reorder_level, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
RETURNING id`,
		ing.Name, ing.Unit, ing.CurrentStock, ing.UnitCost, ing.ReorderLevel,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("stock: create ingredient: %w", err)
	}
	return id, nil
}

// BelowReorderLevel returns ingredients at or under their reorder level.
func (r *Repository) BelowReorderLevel(ctx context.Context) ([]Ingredient, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, unit, current_stock, unit_cost, reorder_level, created_at, updated_at
FROM ingredients
WHERE reorder_level > 0 AND current_stock <= reorder_level
ORDER BY current_stock / reorder_level ASC`)
	if err != nil {
		return nil, fmt.Errorf("stock: list below reorder level: %w", err)
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, fmt.Errorf("stock: below reorder scan: %w", err)
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// ListTransactions reads the ledger newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error) {
	query := strings.Builder{}
	query.WriteString(`
SELECT id, transaction_number, ingredient_id, transaction_type, quantity,
	previous_stock, new_stock, unit, unit_cost,
	COALESCE(from_location, ''), COALESCE(to_location, ''),
	COALESCE(reference_kind, ''), COALESCE(reference_id, 0),
	COALESCE(note, ''), performed_by, status, created_at
FROM stock_transactions
WHERE 1=1`)

	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.IngredientID > 0 {
		query.WriteString(" AND ingredient_id = " + arg(filter.IngredientID))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		query.WriteString(" AND transaction_type = ANY(" + arg(types) + ")")
	}
	if !filter.From.IsZero() {
		query.WriteString(" AND created_at >= " + arg(filter.From))
	}
	if !filter.To.IsZero() {
		query.WriteString(" AND created_at < " + arg(filter.To))
	}
	query.WriteString(" ORDER BY created_at DESC, id DESC")
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query.WriteString(" LIMIT " + arg(limit))

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("stock: list transactions: %w", err)
	}
	defer rows.Close()

	var out []StockTransaction
	for rows.Next() {
		var e StockTransaction
		var txType, refKind, status string
		if err := rows.Scan(
			&e.ID, &e.TransactionNumber, &e.IngredientID, &txType, &e.Quantity,
			&e.PreviousStock, &e.NewStock, &e.Unit, &e.UnitCost,
			&e.FromLocation, &e.ToLocation,
			&refKind, &e.ReferenceID,
			&e.Note, &e.PerformedBy, &status, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("stock: list transactions scan: %w", err)
		}
		e.Type = TransactionType(txType)
		e.ReferenceKind = ReferenceKind(refKind)
		e.Status = TransactionStatus(status)
		e.Ref = Reference{Kind: e.ReferenceKind, ID: e.ReferenceID}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SumMovements aggregates signed quantities per ingredient over a window.
// Reports use it for usage and wastage rollups.
func (r *Repository) SumMovements(ctx context.Context, txType TransactionType, from, to time.Time) (map[int64]float64, error) {
	rows, err := r.pool.Query(ctx, `
SELECT ingredient_id, SUM(quantity)
FROM stock_transactions
WHERE transaction_type = $1 AND created_at >= $2 AND created_at < $3
GROUP BY ingredient_id`, string(txType), from, to)
	if err != nil {
		return nil, fmt.Errorf("stock: sum movements: %w", err)
	}
	defer rows.Close()

	out := map[int64]float64{}
	for rows.Next() {
		var id int64
		var sum float64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("stock: sum movements scan: %w", err)
		}
		out[id] = sum
	}
	return out, rows.Err()
}

// LedgerDrift reports ingredients whose projected stock no longer equals
// the replayed ledger. The integrity job alerts on any row returned.
type LedgerDrift struct {
	IngredientID   int64
	Name           string
	ProjectedStock float64
	LedgerStock    float64
}

// FindLedgerDrift replays the ledger per ingredient and compares it with
// the stored projection.
func (r *Repository) FindLedgerDrift(ctx context.Context, tolerance float64) ([]LedgerDrift, error) {
	rows, err := r.pool.Query(ctx, `
SELECT i.id, i.name, i.current_stock, COALESCE(SUM(t.quantity), 0) AS ledger_stock
FROM ingredients i
LEFT JOIN stock_transactions t ON t.ingredient_id = i.id
GROUP BY i.id, i.name, i.current_stock
HAVING ABS(i.current_stock - COALESCE(SUM(t.quantity), 0)) > $1
ORDER BY i.id`, tolerance)
	if err != nil {
		return nil, fmt.Errorf("stock: find ledger drift: %w", err)
	}
	defer rows.Close()

	var out []LedgerDrift
	for rows.Next() {
		var d LedgerDrift
		if err := rows.Scan(&d.IngredientID, &d.Name, &d.ProjectedStock, &d.LedgerStock); err != nil {
			return nil, fmt.Errorf("stock: ledger drift scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIngredient(row rowScanner) (Ingredient, error) {
	var ing Ingredient
	err := row.Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.CurrentStock, &ing.UnitCost, &ing.ReorderLevel, &ing.CreatedAt, &ing.UpdatedAt)
	return ing, err
}
