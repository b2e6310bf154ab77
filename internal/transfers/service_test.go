package transfers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

type memoryTransferRepo struct {
	ingredients  map[int64]stock.Ingredient
	transactions []stock.StockTransaction
	transfers    map[int64]StockTransfer
	items        map[int64][]TransferItem
	sequences    map[string]int64
	nextID       int64
	nextItemID   int64
	nextTxID     int64
}

func newMemoryTransferRepo() *memoryTransferRepo {
	return &memoryTransferRepo{
		ingredients: make(map[int64]stock.Ingredient),
		transfers:   make(map[int64]StockTransfer),
		items:       make(map[int64][]TransferItem),
		sequences:   make(map[string]int64),
	}
}

type memoryTransferTx struct {
	repo *memoryTransferRepo
}

func (r *memoryTransferRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTransferTx{repo: r})
}

func (r *memoryTransferRepo) GetTransfer(ctx context.Context, id int64) (StockTransfer, error) {
	t, ok := r.transfers[id]
	if !ok {
		return StockTransfer{}, ErrTransferNotFound
	}
	t.Items = append([]TransferItem(nil), r.items[id]...)
	return t, nil
}

func (r *memoryTransferRepo) ListTransfers(ctx context.Context, status TransferStatus, limit int) ([]StockTransfer, error) {
	var out []StockTransfer
	for _, t := range r.transfers {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (t *memoryTransferTx) GetIngredientForUpdate(ctx context.Context, id int64) (stock.Ingredient, error) {
	ing, ok := t.repo.ingredients[id]
	if !ok {
		return stock.Ingredient{}, stock.ErrIngredientNotFound
	}
	return ing, nil
}

func (t *memoryTransferTx) UpdateIngredientStock(ctx context.Context, ingredientID int64, newStock, unitCost float64) error {
	ing := t.repo.ingredients[ingredientID]
	ing.CurrentStock = newStock
	ing.UnitCost = unitCost
	t.repo.ingredients[ingredientID] = ing
	return nil
}

func (t *memoryTransferTx) InsertTransaction(ctx context.Context, entry stock.StockTransaction) (int64, error) {
	t.repo.nextTxID++
	entry.ID = t.repo.nextTxID
	t.repo.transactions = append(t.repo.transactions, entry)
	return entry.ID, nil
}

func (t *memoryTransferTx) NextDocumentNumber(ctx context.Context, doc stock.DocumentType, year int) (string, error) {
	key := fmt.Sprintf("%s-%d", doc, year)
	t.repo.sequences[key]++
	return stock.FormatDocumentNumber(doc, year, t.repo.sequences[key]), nil
}

func (t *memoryTransferTx) InsertTransfer(ctx context.Context, tr StockTransfer) (int64, error) {
	t.repo.nextID++
	tr.ID = t.repo.nextID
	t.repo.transfers[tr.ID] = tr
	return tr.ID, nil
}

func (t *memoryTransferTx) InsertItems(ctx context.Context, transferID int64, items []TransferItem) error {
	for _, item := range items {
		t.repo.nextItemID++
		item.ID = t.repo.nextItemID
		item.TransferID = transferID
		t.repo.items[transferID] = append(t.repo.items[transferID], item)
	}
	return nil
}

func (t *memoryTransferTx) GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error) {
	tr, ok := t.repo.transfers[id]
	if !ok {
		return StockTransfer{}, ErrTransferNotFound
	}
	return tr, nil
}

func (t *memoryTransferTx) GetItems(ctx context.Context, transferID int64) ([]TransferItem, error) {
	return append([]TransferItem(nil), t.repo.items[transferID]...), nil
}

func (t *memoryTransferTx) UpdateStatus(ctx context.Context, id int64, status TransferStatus, actorID int64, at time.Time) error {
	tr, ok := t.repo.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	tr.Status = status
	switch status {
	case StatusInTransit:
		tr.DispatchedBy = actorID
		tr.DispatchedAt = &at
	case StatusReceived, StatusCancelled:
		tr.ReceivedBy = actorID
		tr.ClosedAt = &at
	}
	t.repo.transfers[id] = tr
	return nil
}

func (t *memoryTransferTx) UpdateItemCounts(ctx context.Context, itemID int64, line ReceiptLine, inTxID int64) error {
	for transferID, items := range t.repo.items {
		for i, item := range items {
			if item.ID == itemID {
				items[i].ReceivedQty = line.ReceivedQty
				items[i].DamagedQty = line.DamagedQty
				items[i].DamageReason = line.DamageReason
				items[i].InTxID = inTxID
				t.repo.items[transferID] = items
				return nil
			}
		}
	}
	return fmt.Errorf("item %d %w", itemID, shared.ErrNotFound)
}

func seedTransferIngredient(repo *memoryTransferRepo, id int64, stockQty float64) {
	repo.ingredients[id] = stock.Ingredient{ID: id, Name: fmt.Sprintf("ing-%d", id), Unit: "kg", CurrentStock: stockQty}
}

func initiate(t *testing.T, svc *Service, items []TransferItem) StockTransfer {
	t.Helper()
	tr, err := svc.Initiate(context.Background(), InitiateInput{
		FromLocation: "warehouse",
		ToLocation:   "kitchen",
		Items:        items,
		CreatedBy:    1,
	})
	require.NoError(t, err)
	return tr
}

func TestInitiateValidation(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	_, err := svc.Initiate(context.Background(), InitiateInput{FromLocation: "kitchen", ToLocation: "kitchen", Items: []TransferItem{{IngredientID: 1, QuantitySent: 1}}, CreatedBy: 1})
	require.ErrorIs(t, err, ErrSameLocation)

	_, err = svc.Initiate(context.Background(), InitiateInput{FromLocation: "kitchen", ToLocation: "bar", CreatedBy: 1})
	require.ErrorIs(t, err, ErrNoItems)

	_, err = svc.Initiate(context.Background(), InitiateInput{
		FromLocation: "kitchen", ToLocation: "bar",
		Items:     []TransferItem{{IngredientID: 1, QuantitySent: 1}, {IngredientID: 1, QuantitySent: 2}},
		CreatedBy: 1,
	})
	require.ErrorIs(t, err, ErrDuplicateItem)

	_, err = svc.Initiate(context.Background(), InitiateInput{
		FromLocation: "kitchen", ToLocation: "bar",
		Items:     []TransferItem{{IngredientID: 404, QuantitySent: 1}},
		CreatedBy: 1,
	})
	require.True(t, shared.IsNotFound(err))
}

func TestInitiateDeductsImmediately(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)
	seedTransferIngredient(repo, 2, 5)

	tr := initiate(t, svc, []TransferItem{
		{IngredientID: 1, QuantitySent: 4},
		{IngredientID: 2, QuantitySent: 2},
	})
	require.Equal(t, StatusPending, tr.Status)
	require.Contains(t, tr.TransferNumber, "TRF-")
	require.Equal(t, 6.0, repo.ingredients[1].CurrentStock)
	require.Equal(t, 3.0, repo.ingredients[2].CurrentStock)
	require.Len(t, repo.transactions, 2)
	for _, entry := range repo.transactions {
		require.Equal(t, stock.TypeTransferOut, entry.Type)
		require.Equal(t, stock.RefTransfer, entry.ReferenceKind)
		require.Equal(t, tr.ID, entry.ReferenceID)
	}
}

func TestInitiateInsufficientStock(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 3)

	_, err := svc.Initiate(context.Background(), InitiateInput{
		FromLocation: "warehouse", ToLocation: "kitchen",
		Items:     []TransferItem{{IngredientID: 1, QuantitySent: 5}},
		CreatedBy: 1,
	})
	var insufficient *shared.InsufficientStockError
	require.True(t, shared.AsInsufficientStock(err, &insufficient))
	require.Equal(t, 3.0, insufficient.Available)
	require.Equal(t, 5.0, insufficient.Requested)
}

func TestMarkInTransitIsPureTransition(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	tr := initiate(t, svc, []TransferItem{{IngredientID: 1, QuantitySent: 4}})
	entriesBefore := len(repo.transactions)

	out, err := svc.MarkInTransit(context.Background(), tr.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, out.Status)
	require.Len(t, repo.transactions, entriesBefore)
	require.Equal(t, 6.0, repo.ingredients[1].CurrentStock)

	_, err = svc.MarkInTransit(context.Background(), tr.ID, 7)
	require.True(t, shared.IsConflict(err))
}

func TestReceiveFromPending(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	tr := initiate(t, svc, []TransferItem{{IngredientID: 1, QuantitySent: 4}})
	out, err := svc.Receive(context.Background(), tr.ID, 8, []ReceiptLine{{IngredientID: 1, ReceivedQty: 4}})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, out.Status)
	require.Equal(t, 10.0, repo.ingredients[1].CurrentStock)
}

func TestReceiveWithDamageAndShrinkage(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	tr := initiate(t, svc, []TransferItem{{IngredientID: 1, QuantitySent: 6}})
	_, err := svc.MarkInTransit(context.Background(), tr.ID, 7)
	require.NoError(t, err)

	// 6 sent, 4 arrive intact, 1 damaged, 1 missing.
	out, err := svc.Receive(context.Background(), tr.ID, 8, []ReceiptLine{
		{IngredientID: 1, ReceivedQty: 4, DamagedQty: 1, DamageReason: "crushed in transit"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, out.Status)
	require.Equal(t, 4.0, out.Items[0].ReceivedQty)
	require.Equal(t, 1.0, out.Items[0].DamagedQty)
	require.Equal(t, "crushed in transit", out.Items[0].DamageReason)
	// Only the intact quantity returns to stock: 10 - 6 + 4.
	require.Equal(t, 8.0, repo.ingredients[1].CurrentStock)
}

func TestItemsLinkLedgerEntries(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)
	seedTransferIngredient(repo, 2, 10)

	tr := initiate(t, svc, []TransferItem{
		{IngredientID: 1, QuantitySent: 4},
		{IngredientID: 2, QuantitySent: 3},
	})
	byID := map[int64]stock.StockTransaction{}
	for _, entry := range repo.transactions {
		byID[entry.ID] = entry
	}
	for _, item := range tr.Items {
		require.NotZero(t, item.OutTxID)
		outEntry := byID[item.OutTxID]
		require.Equal(t, stock.TypeTransferOut, outEntry.Type)
		require.Equal(t, item.IngredientID, outEntry.IngredientID)
		require.Equal(t, -item.QuantitySent, outEntry.Quantity)
		require.Zero(t, item.InTxID)
	}

	out, err := svc.Receive(context.Background(), tr.ID, 8, []ReceiptLine{
		{IngredientID: 1, ReceivedQty: 4},
		{IngredientID: 2, ReceivedQty: 0, DamagedQty: 3, DamageReason: "freezer failure"},
	})
	require.NoError(t, err)
	byID = map[int64]stock.StockTransaction{}
	for _, entry := range repo.transactions {
		byID[entry.ID] = entry
	}
	for _, item := range out.Items {
		switch item.IngredientID {
		case 1:
			require.NotZero(t, item.InTxID)
			inEntry := byID[item.InTxID]
			require.Equal(t, stock.TypeTransferIn, inEntry.Type)
			require.Equal(t, 4.0, inEntry.Quantity)
		case 2:
			// Nothing arrived intact, so no inbound entry was posted.
			require.Zero(t, item.InTxID)
			require.Equal(t, "freezer failure", item.DamageReason)
		}
	}
}

func TestReceiveRejectsOverReceipt(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	tr := initiate(t, svc, []TransferItem{{IngredientID: 1, QuantitySent: 3}})
	_, err := svc.Receive(context.Background(), tr.ID, 8, []ReceiptLine{
		{IngredientID: 1, ReceivedQty: 3, DamagedQty: 1},
	})
	require.ErrorIs(t, err, ErrOverReceipt)
}

func TestReceiveRequiresCompleteCount(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)
	seedTransferIngredient(repo, 2, 10)

	tr := initiate(t, svc, []TransferItem{
		{IngredientID: 1, QuantitySent: 2},
		{IngredientID: 2, QuantitySent: 2},
	})
	_, err := svc.Receive(context.Background(), tr.ID, 8, []ReceiptLine{
		{IngredientID: 1, ReceivedQty: 2},
	})
	require.ErrorIs(t, err, ErrIncompleteCount)
}

func TestReceiveTerminalRejected(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	tr := initiate(t, svc, []TransferItem{{IngredientID: 1, QuantitySent: 2}})
	_, err := svc.Receive(context.Background(), tr.ID, 8, []ReceiptLine{{IngredientID: 1, ReceivedQty: 2}})
	require.NoError(t, err)
	_, err = svc.Receive(context.Background(), tr.ID, 8, []ReceiptLine{{IngredientID: 1, ReceivedQty: 2}})
	require.True(t, shared.IsConflict(err))
}

func TestCancelReversesExactly(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	tr := initiate(t, svc, []TransferItem{{IngredientID: 1, QuantitySent: 4}})
	require.Equal(t, 6.0, repo.ingredients[1].CurrentStock)

	out, err := svc.Cancel(context.Background(), tr.ID, 7, "van broke down")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)
	require.Equal(t, 10.0, repo.ingredients[1].CurrentStock)

	// The reversal is a new adjustment entry; the original deduction stays.
	require.Len(t, repo.transactions, 2)
	require.Equal(t, stock.TypeTransferOut, repo.transactions[0].Type)
	require.Equal(t, -4.0, repo.transactions[0].Quantity)
	require.Equal(t, stock.TypeAdjustment, repo.transactions[1].Type)
	require.Equal(t, 4.0, repo.transactions[1].Quantity)
}

func TestCancelInTransitAllowed(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	tr := initiate(t, svc, []TransferItem{{IngredientID: 1, QuantitySent: 4}})
	_, err := svc.MarkInTransit(context.Background(), tr.ID, 7)
	require.NoError(t, err)

	out, err := svc.Cancel(context.Background(), tr.ID, 7, "")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)
	require.Equal(t, 10.0, repo.ingredients[1].CurrentStock)
}

func TestCancelTerminalRejected(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := NewService(repo, nil)
	seedTransferIngredient(repo, 1, 10)

	tr := initiate(t, svc, []TransferItem{{IngredientID: 1, QuantitySent: 2}})
	_, err := svc.Cancel(context.Background(), tr.ID, 7, "")
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), tr.ID, 7, "")
	require.True(t, shared.IsConflict(err))
}
