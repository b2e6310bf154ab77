package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	UpsertActive(ctx context.Context, ingredientID int64, now time.Time) error
	ResolveRecovered(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context) ([]StockAlert, error)
	Acknowledge(ctx context.Context, id int64) error
	Resolve(ctx context.Context, id int64, now time.Time) error
}

// StockPort reads the projection for threshold checks.
type StockPort interface {
	BelowReorderLevel(ctx context.Context) ([]stock.Ingredient, error)
}

// Service recomputes low-stock alerts from the projection and caches the
// active list. The projection stays the source of truth; alert rows carry
// only the acknowledge/resolve workflow.
type Service struct {
	repo   RepositoryPort
	stock  StockPort
	cache  *Cache
	logger *slog.Logger
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, stockPort StockPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stockPort, cache: cache, logger: logger}
}

// Scan refreshes alert rows against the projection: ingredients at or
// under their reorder level get an active alert, recovered ones are
// resolved. The cache version is bumped so readers see the new state.
func (s *Service) Scan(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	low, err := s.stock.BelowReorderLevel(ctx)
	if err != nil {
		return 0, err
	}
	for _, ing := range low {
		if err := s.repo.UpsertActive(ctx, ing.ID, now); err != nil {
			return 0, err
		}
	}
	resolved, err := s.repo.ResolveRecovered(ctx, now)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("alerts cache bump", slog.Any("error", err))
	}
	s.logger.Info("alert scan finished",
		slog.Int("active", len(low)),
		slog.Int64("recovered", resolved))
	return len(low), nil
}

// ListActive returns unresolved alerts, served from cache when warm.
func (s *Service) ListActive(ctx context.Context) ([]StockAlert, error) {
	key, err := s.cache.BuildKey(ctx, "alerts:active")
	if err != nil {
		return nil, err
	}
	var out []StockAlert
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.ListActive(ctx)
	})
	return out, err
}

// Acknowledge marks an alert as seen.
func (s *Service) Acknowledge(ctx context.Context, id int64) error {
	if err := s.repo.Acknowledge(ctx, id); err != nil {
		return err
	}
	return s.cache.Bump(ctx)
}

// Resolve closes an alert manually, e.g. when a delivery is on the way.
func (s *Service) Resolve(ctx context.Context, id int64) error {
	if err := s.repo.Resolve(ctx, id, time.Now().UTC()); err != nil {
		return err
	}
	return s.cache.Bump(ctx)
}
