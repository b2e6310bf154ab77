package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pgx-backed persistence layer for alert workflow rows.
// One row exists per ingredient that has ever tripped its threshold; the
// scan keeps it current, acknowledge/resolve mutate only workflow fields.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertActive marks an ingredient's alert active, reopening it if it was
// previously resolved.
func (r *Repository) UpsertActive(ctx context.Context, ingredientID int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO stock_alerts (ingredient_id, acknowledged, resolved, first_seen_at, last_seen_at)
VALUES ($1, FALSE, FALSE, $2, $2)
ON CONFLICT (ingredient_id)
DO UPDATE SET last_seen_at = $2,
	resolved = FALSE,
	resolved_at = NULL,
	acknowledged = CASE WHEN stock_alerts.resolved THEN FALSE ELSE stock_alerts.acknowledged END`,
		ingredientID, now)
	if err != nil {
		return fmt.Errorf("alerts: upsert active: %w", err)
	}
	return nil
}

// ResolveRecovered closes alerts for ingredients back above threshold.
func (r *Repository) ResolveRecovered(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE stock_alerts a
SET resolved = TRUE, resolved_at = $1
FROM ingredients i
WHERE i.id = a.ingredient_id
	AND a.resolved = FALSE
	AND (i.reorder_level <= 0 OR i.current_stock > i.reorder_level)`, now)
	if err != nil {
		return 0, fmt.Errorf("alerts: resolve recovered: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListActive reads unresolved alerts joined with the live projection.
func (r *Repository) ListActive(ctx context.Context) ([]StockAlert, error) {
	rows, err := r.pool.Query(ctx, `
SELECT a.id, a.ingredient_id, i.name, i.unit, i.current_stock, i.reorder_level,
	a.acknowledged, a.resolved, a.first_seen_at, a.last_seen_at, a.resolved_at
FROM stock_alerts a
JOIN ingredients i ON i.id = a.ingredient_id
WHERE a.resolved = FALSE
ORDER BY i.current_stock / NULLIF(i.reorder_level, 0) ASC NULLS LAST`)
	if err != nil {
		return nil, fmt.Errorf("alerts: list active: %w", err)
	}
	defer rows.Close()

	var out []StockAlert
	for rows.Next() {
		var a StockAlert
		if err := rows.Scan(
			&a.ID, &a.IngredientID, &a.Name, &a.Unit, &a.CurrentStock, &a.ReorderLevel,
			&a.Acknowledged, &a.Resolved, &a.FirstSeenAt, &a.LastSeenAt, &a.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("alerts: list active scan: %w", err)
		}
		a.Severity = GradeSeverity(a.CurrentStock, a.ReorderLevel)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Acknowledge marks an alert as seen by staff.
func (r *Repository) Acknowledge(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_alerts SET acknowledged = TRUE WHERE id = $1 AND resolved = FALSE`, id)
	if err != nil {
		return fmt.Errorf("alerts: acknowledge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Resolve closes an alert manually.
func (r *Repository) Resolve(ctx context.Context, id int64, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_alerts SET resolved = TRUE, resolved_at = $2 WHERE id = $1 AND resolved = FALSE`, id, now)
	if err != nil {
		return fmt.Errorf("alerts: resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}
