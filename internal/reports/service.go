// Package reports builds read-only rollups over the stock ledger. It
// never writes; every figure is derived from ledger entries by date range
// and type.
package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// StockPort is the read-only slice of the ledger the reports need.
type StockPort interface {
	ListIngredients(ctx context.Context) ([]stock.Ingredient, error)
	SumMovements(ctx context.Context, txType stock.TransactionType, from, to time.Time) (map[int64]float64, error)
}

// UsageLine is one ingredient's consumption or wastage over a window.
type UsageLine struct {
	IngredientID int64   `json:"ingredient_id"`
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	Quantity     float64 `json:"quantity"`
	Value        float64 `json:"value"`
}

// DailyReport aggregates one day of stock movement.
type DailyReport struct {
	Date        string      `json:"date"`
	Usage       []UsageLine `json:"usage"`
	Wastage     []UsageLine `json:"wastage"`
	Purchases   []UsageLine `json:"purchases"`
	TopConsumed []UsageLine `json:"top_consumed"`
}

// Service computes reports.
type Service struct {
	stock StockPort
}

// NewService builds Service.
func NewService(stockPort StockPort) *Service {
	return &Service{stock: stockPort}
}

// Daily rolls up consumption, wastage and purchases for one calendar day.
// The three ledger scans run concurrently; any failure fails the report.
func (s *Service) Daily(ctx context.Context, day time.Time) (DailyReport, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	ingredients, err := s.stock.ListIngredients(ctx)
	if err != nil {
		return DailyReport{}, err
	}
	byID := make(map[int64]stock.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing
	}

	var usage, wastage, purchases map[int64]float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		usage, err = s.stock.SumMovements(gctx, stock.TypeSaleConsumption, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		wastage, err = s.stock.SumMovements(gctx, stock.TypeDamage, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		purchases, err = s.stock.SumMovements(gctx, stock.TypePurchase, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return DailyReport{}, fmt.Errorf("reports: daily rollup: %w", err)
	}

	report := DailyReport{
		Date:      from.Format("2006-01-02"),
		Usage:     toLines(usage, byID),
		Wastage:   toLines(wastage, byID),
		Purchases: toLines(purchases, byID),
	}
	report.TopConsumed = topN(report.Usage, 10)
	return report, nil
}

// Range validates and rolls up an arbitrary window of consumption.
func (s *Service) Range(ctx context.Context, from, to time.Time) ([]UsageLine, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: report window must end after it starts", shared.ErrValidation)
	}
	ingredients, err := s.stock.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]stock.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing
	}
	usage, err := s.stock.SumMovements(ctx, stock.TypeSaleConsumption, from, to)
	if err != nil {
		return nil, err
	}
	return toLines(usage, byID), nil
}

// toLines converts signed ledger sums to positive report quantities.
func toLines(sums map[int64]float64, byID map[int64]stock.Ingredient) []UsageLine {
	out := make([]UsageLine, 0, len(sums))
	for id, sum := range sums {
		ing := byID[id]
		qty := sum
		if qty < 0 {
			qty = -qty
		}
		out = append(out, UsageLine{
			IngredientID: id,
			Name:         ing.Name,
			Unit:         ing.Unit,
			Quantity:     qty,
			Value:        qty * ing.UnitCost,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quantity > out[j].Quantity })
	return out
}

func topN(lines []UsageLine, n int) []UsageLine {
	if len(lines) < n {
		n = len(lines)
	}
	return append([]UsageLine(nil), lines[:n]...)
}
