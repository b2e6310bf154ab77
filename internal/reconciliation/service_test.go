package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

type memoryRecRepo struct {
	ingredients     map[int64]stock.Ingredient
	transactions    []stock.StockTransaction
	reconciliations map[int64]StockReconciliation
	items           map[int64][]ReconciliationItem
	sequences       map[string]int64
	nextID          int64
	nextItemID      int64
	nextTxID        int64
}

func newMemoryRecRepo() *memoryRecRepo {
	return &memoryRecRepo{
		ingredients:     make(map[int64]stock.Ingredient),
		reconciliations: make(map[int64]StockReconciliation),
		items:           make(map[int64][]ReconciliationItem),
		sequences:       make(map[string]int64),
	}
}

type memoryRecTx struct {
	repo *memoryRecRepo
}

func (r *memoryRecRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryRecTx{repo: r})
}

func (r *memoryRecRepo) GetReconciliation(ctx context.Context, id int64) (StockReconciliation, error) {
	rec, ok := r.reconciliations[id]
	if !ok {
		return StockReconciliation{}, ErrReconciliationNotFound
	}
	rec.Items = append([]ReconciliationItem(nil), r.items[id]...)
	return rec, nil
}

func (r *memoryRecRepo) ListReconciliations(ctx context.Context, limit int) ([]StockReconciliation, error) {
	var out []StockReconciliation
	for _, rec := range r.reconciliations {
		out = append(out, rec)
	}
	return out, nil
}

func (t *memoryRecTx) GetIngredientForUpdate(ctx context.Context, id int64) (stock.Ingredient, error) {
	ing, ok := t.repo.ingredients[id]
	if !ok {
		return stock.Ingredient{}, stock.ErrIngredientNotFound
	}
	return ing, nil
}

func (t *memoryRecTx) UpdateIngredientStock(ctx context.Context, ingredientID int64, newStock, unitCost float64) error {
	ing := t.repo.ingredients[ingredientID]
	ing.CurrentStock = newStock
	ing.UnitCost = unitCost
	t.repo.ingredients[ingredientID] = ing
	return nil
}

func (t *memoryRecTx) InsertTransaction(ctx context.Context, entry stock.StockTransaction) (int64, error) {
	t.repo.nextTxID++
	entry.ID = t.repo.nextTxID
	t.repo.transactions = append(t.repo.transactions, entry)
	return entry.ID, nil
}

func (t *memoryRecTx) NextDocumentNumber(ctx context.Context, doc stock.DocumentType, year int) (string, error) {
	key := fmt.Sprintf("%s-%d", doc, year)
	t.repo.sequences[key]++
	return stock.FormatDocumentNumber(doc, year, t.repo.sequences[key]), nil
}

func (t *memoryRecTx) InsertReconciliation(ctx context.Context, rec StockReconciliation) (int64, error) {
	for _, existing := range t.repo.reconciliations {
		if existing.Status == StatusInProgress {
			return 0, ErrAlreadyInProgress
		}
	}
	t.repo.nextID++
	rec.ID = t.repo.nextID
	t.repo.reconciliations[rec.ID] = rec
	return rec.ID, nil
}

func (t *memoryRecTx) InsertItems(ctx context.Context, recID int64, items []ReconciliationItem) error {
	for _, item := range items {
		t.repo.nextItemID++
		item.ID = t.repo.nextItemID
		item.ReconciliationID = recID
		item.PhysicalStock = item.SystemStock
		t.repo.items[recID] = append(t.repo.items[recID], item)
	}
	return nil
}

func (t *memoryRecTx) GetReconciliationForUpdate(ctx context.Context, id int64) (StockReconciliation, error) {
	rec, ok := t.repo.reconciliations[id]
	if !ok {
		return StockReconciliation{}, ErrReconciliationNotFound
	}
	return rec, nil
}

func (t *memoryRecTx) GetItems(ctx context.Context, recID int64) ([]ReconciliationItem, error) {
	return append([]ReconciliationItem(nil), t.repo.items[recID]...), nil
}

func (t *memoryRecTx) UpdateItemCount(ctx context.Context, itemID int64, physicalStock, difference, valueDifference float64, note string) error {
	for recID, items := range t.repo.items {
		for i, item := range items {
			if item.ID == itemID {
				items[i].PhysicalStock = physicalStock
				items[i].Difference = difference
				items[i].ValueDifference = valueDifference
				items[i].Note = note
				items[i].Counted = true
				t.repo.items[recID] = items
				return nil
			}
		}
	}
	return ErrItemNotFound
}

func (t *memoryRecTx) LinkItemAdjustment(ctx context.Context, itemID, txID int64) error {
	for recID, items := range t.repo.items {
		for i, item := range items {
			if item.ID == itemID {
				items[i].AdjustmentTxID = txID
				t.repo.items[recID] = items
				return nil
			}
		}
	}
	return ErrItemNotFound
}

func (t *memoryRecTx) UpdateStatus(ctx context.Context, id int64, status ReconciliationStatus, actorID int64, at time.Time) error {
	rec, ok := t.repo.reconciliations[id]
	if !ok {
		return ErrReconciliationNotFound
	}
	rec.Status = status
	switch status {
	case StatusCompleted:
		rec.CompletedAt = &at
	case StatusApproved:
		rec.ApprovedBy = actorID
		rec.ApprovedAt = &at
	}
	t.repo.reconciliations[id] = rec
	return nil
}

func (t *memoryRecTx) UpdateTotals(ctx context.Context, id int64, itemsCounted, discrepancyCount int, totalValueDifference float64) error {
	rec, ok := t.repo.reconciliations[id]
	if !ok {
		return ErrReconciliationNotFound
	}
	rec.ItemsCounted = itemsCounted
	rec.DiscrepancyCount = discrepancyCount
	rec.TotalValueDifference = totalValueDifference
	t.repo.reconciliations[id] = rec
	return nil
}

func (t *memoryRecTx) ListAllIngredients(ctx context.Context) ([]stock.Ingredient, error) {
	var out []stock.Ingredient
	for _, ing := range t.repo.ingredients {
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func seedRecIngredient(repo *memoryRecRepo, id int64, stockQty, cost float64) {
	repo.ingredients[id] = stock.Ingredient{ID: id, Name: fmt.Sprintf("ing-%d", id), Unit: "kg", CurrentStock: stockQty, UnitCost: cost}
}

func TestStartSnapshotsAllIngredients(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)
	seedRecIngredient(repo, 1, 100, 10)
	seedRecIngredient(repo, 2, 50, 4)

	rec, err := svc.Start(context.Background(), "main kitchen", "", 1)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, rec.Status)
	require.Contains(t, rec.ReconciliationNumber, "REC-")
	require.Len(t, rec.Items, 2)
	for _, item := range rec.Items {
		require.Equal(t, item.SystemStock, item.PhysicalStock)
		require.False(t, item.Counted)
		require.Zero(t, item.Difference)
	}
}

func TestStartSingleton(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)
	seedRecIngredient(repo, 1, 100, 10)

	_, err := svc.Start(context.Background(), "", "", 1)
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), "", "", 2)
	require.ErrorIs(t, err, ErrAlreadyInProgress)
	require.True(t, shared.IsConflict(err))
}

func TestStartWithoutIngredients(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Start(context.Background(), "", "", 1)
	require.ErrorIs(t, err, ErrNoIngredients)
}

func TestUpdateItemsKeepsLatestCount(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)
	seedRecIngredient(repo, 1, 100, 10)

	rec, err := svc.Start(context.Background(), "", "", 1)
	require.NoError(t, err)
	itemID := rec.Items[0].ID

	rec, err = svc.UpdateItems(context.Background(), rec.ID, 1, []CountLine{{ItemID: itemID, PhysicalStock: 97}})
	require.NoError(t, err)
	require.Equal(t, -3.0, rec.Items[0].Difference)

	rec, err = svc.UpdateItems(context.Background(), rec.ID, 1, []CountLine{{ItemID: itemID, PhysicalStock: 95, Note: "recount"}})
	require.NoError(t, err)
	require.Equal(t, 95.0, rec.Items[0].PhysicalStock)
	require.Equal(t, -5.0, rec.Items[0].Difference)
	require.Equal(t, -50.0, rec.Items[0].ValueDifference)
	require.True(t, rec.Items[0].Counted)
}

func TestUpdateItemsUnknownItem(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)
	seedRecIngredient(repo, 1, 100, 10)

	rec, err := svc.Start(context.Background(), "", "", 1)
	require.NoError(t, err)

	_, err = svc.UpdateItems(context.Background(), rec.ID, 1, []CountLine{{ItemID: 999, PhysicalStock: 1}})
	require.True(t, shared.IsNotFound(err))
}

func TestSubmitAggregatesTotals(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)
	seedRecIngredient(repo, 1, 100, 10)
	seedRecIngredient(repo, 2, 50, 4)
	seedRecIngredient(repo, 3, 20, 2)

	rec, err := svc.Start(context.Background(), "", "", 1)
	require.NoError(t, err)

	// Count two of three: one short by 5, one exact.
	_, err = svc.UpdateItems(context.Background(), rec.ID, 1, []CountLine{
		{ItemID: rec.Items[0].ID, PhysicalStock: 95},
		{ItemID: rec.Items[1].ID, PhysicalStock: 50},
	})
	require.NoError(t, err)

	rec, err = svc.Submit(context.Background(), rec.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, rec.Status)
	require.Equal(t, 2, rec.ItemsCounted)
	require.Equal(t, 1, rec.DiscrepancyCount)
	require.Equal(t, -50.0, rec.TotalValueDifference)

	// Counts are frozen after submission.
	_, err = svc.UpdateItems(context.Background(), rec.ID, 1, []CountLine{{ItemID: rec.Items[0].ID, PhysicalStock: 90}})
	require.True(t, shared.IsConflict(err))
}

func TestApprovePostsOneAdjustmentPerDiscrepancy(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)
	seedRecIngredient(repo, 1, 100, 10)
	seedRecIngredient(repo, 2, 50, 4)

	rec, err := svc.Start(context.Background(), "", "", 1)
	require.NoError(t, err)
	_, err = svc.UpdateItems(context.Background(), rec.ID, 1, []CountLine{
		{ItemID: rec.Items[0].ID, PhysicalStock: 95},
		{ItemID: rec.Items[1].ID, PhysicalStock: 50},
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), rec.ID, 1)
	require.NoError(t, err)

	rec, err = svc.Approve(context.Background(), rec.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, rec.Status)
	require.Equal(t, int64(9), rec.ApprovedBy)

	// One adjustment for the discrepant item only; stock matches the count.
	require.Len(t, repo.transactions, 1)
	entry := repo.transactions[0]
	require.Equal(t, stock.TypeAdjustment, entry.Type)
	require.Equal(t, -5.0, entry.Quantity)
	require.Equal(t, stock.RefReconciliation, entry.ReferenceKind)
	require.Equal(t, rec.ID, entry.ReferenceID)
	require.Equal(t, 95.0, repo.ingredients[1].CurrentStock)
	require.Equal(t, 50.0, repo.ingredients[2].CurrentStock)
	require.Equal(t, entry.ID, rec.Items[0].AdjustmentTxID)
	require.Zero(t, rec.Items[1].AdjustmentTxID)
}

func TestApproveRequiresCompleted(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)
	seedRecIngredient(repo, 1, 100, 10)

	rec, err := svc.Start(context.Background(), "", "", 1)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), rec.ID, 9)
	require.True(t, shared.IsConflict(err))

	_, err = svc.Submit(context.Background(), rec.ID, 1)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), rec.ID, 9)
	require.NoError(t, err)
	// Approval is terminal.
	_, err = svc.Approve(context.Background(), rec.ID, 9)
	require.True(t, shared.IsConflict(err))
}

func TestNewStartAllowedAfterApproval(t *testing.T) {
	repo := newMemoryRecRepo()
	svc := NewService(repo, nil, nil)
	seedRecIngredient(repo, 1, 100, 10)

	rec, err := svc.Start(context.Background(), "", "", 1)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), rec.ID, 1)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), rec.ID, 1)
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), "", "", 1)
	require.NoError(t, err)
}
