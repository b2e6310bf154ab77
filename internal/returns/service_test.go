package returns

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

type memoryReturnRepo struct {
	ingredients  map[int64]stock.Ingredient
	transactions []stock.StockTransaction
	returns      map[int64]StockReturn
	sequences    map[string]int64
	nextID       int64
	nextTxID     int64
}

func newMemoryReturnRepo() *memoryReturnRepo {
	return &memoryReturnRepo{
		ingredients: make(map[int64]stock.Ingredient),
		returns:     make(map[int64]StockReturn),
		sequences:   make(map[string]int64),
	}
}

type memoryReturnTx struct {
	repo *memoryReturnRepo
}

func (r *memoryReturnRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryReturnTx{repo: r})
}

func (r *memoryReturnRepo) GetReturn(ctx context.Context, id int64) (StockReturn, error) {
	ret, ok := r.returns[id]
	if !ok {
		return StockReturn{}, ErrReturnNotFound
	}
	return ret, nil
}

func (r *memoryReturnRepo) ListReturns(ctx context.Context, status ReturnStatus, limit int) ([]StockReturn, error) {
	var out []StockReturn
	for _, ret := range r.returns {
		if status != "" && ret.Status != status {
			continue
		}
		out = append(out, ret)
	}
	return out, nil
}

func (t *memoryReturnTx) GetIngredientForUpdate(ctx context.Context, id int64) (stock.Ingredient, error) {
	ing, ok := t.repo.ingredients[id]
	if !ok {
		return stock.Ingredient{}, stock.ErrIngredientNotFound
	}
	return ing, nil
}

func (t *memoryReturnTx) UpdateIngredientStock(ctx context.Context, ingredientID int64, newStock, unitCost float64) error {
	ing := t.repo.ingredients[ingredientID]
	ing.CurrentStock = newStock
	ing.UnitCost = unitCost
	t.repo.ingredients[ingredientID] = ing
	return nil
}

func (t *memoryReturnTx) InsertTransaction(ctx context.Context, entry stock.StockTransaction) (int64, error) {
	t.repo.nextTxID++
	entry.ID = t.repo.nextTxID
	t.repo.transactions = append(t.repo.transactions, entry)
	return entry.ID, nil
}

func (t *memoryReturnTx) NextDocumentNumber(ctx context.Context, doc stock.DocumentType, year int) (string, error) {
	key := fmt.Sprintf("%s-%d", doc, year)
	t.repo.sequences[key]++
	return stock.FormatDocumentNumber(doc, year, t.repo.sequences[key]), nil
}

func (t *memoryReturnTx) InsertReturn(ctx context.Context, ret StockReturn) (int64, error) {
	t.repo.nextID++
	ret.ID = t.repo.nextID
	t.repo.returns[ret.ID] = ret
	return ret.ID, nil
}

func (t *memoryReturnTx) GetReturnForUpdate(ctx context.Context, id int64) (StockReturn, error) {
	ret, ok := t.repo.returns[id]
	if !ok {
		return StockReturn{}, ErrReturnNotFound
	}
	return ret, nil
}

func (t *memoryReturnTx) UpdateStatus(ctx context.Context, id int64, status ReturnStatus, at *time.Time) error {
	ret, ok := t.repo.returns[id]
	if !ok {
		return ErrReturnNotFound
	}
	ret.Status = status
	if at != nil {
		ret.ClosedAt = at
	}
	t.repo.returns[id] = ret
	return nil
}

func (t *memoryReturnTx) UpdateRefundStatus(ctx context.Context, id int64, refund RefundStatus) error {
	ret, ok := t.repo.returns[id]
	if !ok {
		return ErrReturnNotFound
	}
	ret.RefundStatus = refund
	t.repo.returns[id] = ret
	return nil
}

func (t *memoryReturnTx) SetLedgerTx(ctx context.Context, id, txID int64) error {
	ret, ok := t.repo.returns[id]
	if !ok {
		return ErrReturnNotFound
	}
	ret.LedgerTxID = txID
	t.repo.returns[id] = ret
	return nil
}

func seedReturnIngredient(repo *memoryReturnRepo, id int64, stockQty, cost float64) {
	repo.ingredients[id] = stock.Ingredient{ID: id, Name: "Olive Oil", Unit: "l", CurrentStock: stockQty, UnitCost: cost}
}

func createReturn(t *testing.T, svc *Service, qty float64) StockReturn {
	t.Helper()
	ret, err := svc.Create(context.Background(), CreateInput{
		IngredientID: 1,
		Quantity:     qty,
		Supplier:     "Acme Foods",
		Reason:       "rancid batch",
		CreatedBy:    1,
	})
	require.NoError(t, err)
	return ret
}

func TestCreateDeductsAndPrices(t *testing.T) {
	repo := newMemoryReturnRepo()
	svc := NewService(repo, nil, nil)
	seedReturnIngredient(repo, 1, 20, 5)

	ret := createReturn(t, svc, 4)
	require.Equal(t, StatusPending, ret.Status)
	require.Equal(t, RefundPending, ret.RefundStatus)
	require.Contains(t, ret.ReturnNumber, "RET-")
	require.Equal(t, 20.0, ret.RefundAmount)
	require.Equal(t, 16.0, repo.ingredients[1].CurrentStock)

	require.Len(t, repo.transactions, 1)
	entry := repo.transactions[0]
	require.Equal(t, stock.TypeReturn, entry.Type)
	require.Equal(t, -4.0, entry.Quantity)
	require.Equal(t, stock.RefReturn, entry.ReferenceKind)
	require.Equal(t, ret.ID, entry.ReferenceID)
	require.Equal(t, entry.ID, ret.LedgerTxID)
}

func TestCreateInsufficientStock(t *testing.T) {
	repo := newMemoryReturnRepo()
	svc := NewService(repo, nil, nil)
	seedReturnIngredient(repo, 1, 2, 5)

	_, err := svc.Create(context.Background(), CreateInput{
		IngredientID: 1, Quantity: 3, Supplier: "Acme Foods", CreatedBy: 1,
	})
	var insufficient *shared.InsufficientStockError
	require.True(t, shared.AsInsufficientStock(err, &insufficient))
}

func TestHappyPathLifecycle(t *testing.T) {
	repo := newMemoryReturnRepo()
	svc := NewService(repo, nil, nil)
	seedReturnIngredient(repo, 1, 20, 5)

	ret := createReturn(t, svc, 4)

	ret, err := svc.Approve(context.Background(), ret.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, ret.Status)

	ret, err = svc.Ship(context.Background(), ret.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusShipped, ret.Status)

	ret, err = svc.Complete(context.Background(), ret.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, ret.Status)
	require.NotNil(t, ret.ClosedAt)

	// Stock never comes back on the happy path.
	require.Equal(t, 16.0, repo.ingredients[1].CurrentStock)
}

func TestTransitionOrderEnforced(t *testing.T) {
	repo := newMemoryReturnRepo()
	svc := NewService(repo, nil, nil)
	seedReturnIngredient(repo, 1, 20, 5)

	ret := createReturn(t, svc, 4)

	_, err := svc.Ship(context.Background(), ret.ID, 2)
	require.True(t, shared.IsConflict(err))
	_, err = svc.Complete(context.Background(), ret.ID, 2)
	require.True(t, shared.IsConflict(err))
}

func TestRejectReversesDeduction(t *testing.T) {
	repo := newMemoryReturnRepo()
	svc := NewService(repo, nil, nil)
	seedReturnIngredient(repo, 1, 20, 5)

	ret := createReturn(t, svc, 4)
	require.Equal(t, 16.0, repo.ingredients[1].CurrentStock)

	ret, err := svc.Reject(context.Background(), ret.ID, 2, "supplier refused")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, ret.Status)
	require.Equal(t, RefundRejected, ret.RefundStatus)
	require.Equal(t, 20.0, repo.ingredients[1].CurrentStock)

	// Reversal is a second entry; the original stays.
	require.Len(t, repo.transactions, 2)
	require.Equal(t, stock.TypeReturn, repo.transactions[0].Type)
	require.Equal(t, stock.TypeAdjustment, repo.transactions[1].Type)
	require.Equal(t, 4.0, repo.transactions[1].Quantity)
}

func TestRejectAfterShipRejected(t *testing.T) {
	repo := newMemoryReturnRepo()
	svc := NewService(repo, nil, nil)
	seedReturnIngredient(repo, 1, 20, 5)

	ret := createReturn(t, svc, 4)
	_, err := svc.Approve(context.Background(), ret.ID, 2)
	require.NoError(t, err)
	_, err = svc.Ship(context.Background(), ret.ID, 2)
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), ret.ID, 2, "")
	require.True(t, shared.IsConflict(err))
}

func TestRefundSubStateIndependent(t *testing.T) {
	repo := newMemoryReturnRepo()
	svc := NewService(repo, nil, nil)
	seedReturnIngredient(repo, 1, 20, 5)

	ret := createReturn(t, svc, 4)

	// Refund can be approved while the goods are still pending.
	ret, err := svc.ApproveRefund(context.Background(), ret.ID, 2)
	require.NoError(t, err)
	require.Equal(t, RefundApproved, ret.RefundStatus)
	require.Equal(t, StatusPending, ret.Status)

	_, err = svc.MarkRefunded(context.Background(), ret.ID, 2)
	require.NoError(t, err)

	// A settled refund cannot be settled again.
	_, err = svc.MarkRefunded(context.Background(), ret.ID, 2)
	require.True(t, shared.IsConflict(err))
}

func TestRefundBlockedOnRejectedReturn(t *testing.T) {
	repo := newMemoryReturnRepo()
	svc := NewService(repo, nil, nil)
	seedReturnIngredient(repo, 1, 20, 5)

	ret := createReturn(t, svc, 4)
	_, err := svc.Reject(context.Background(), ret.ID, 2, "")
	require.NoError(t, err)

	_, err = svc.ApproveRefund(context.Background(), ret.ID, 2)
	require.True(t, shared.IsConflict(err))
}
