package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/saffron-pos/saffron-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetIngredient(ctx context.Context, id int64) (Ingredient, error)
	ListIngredients(ctx context.Context) ([]Ingredient, error)
	CreateIngredient(ctx context.Context, ing Ingredient) (int64, error)
	ListTransactions(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives domain counters.
type MetricsPort interface {
	MovementPosted(txType string)
	InsufficientStockRejected()
}

// Service coordinates ledger operations. It is the only component allowed
// to mutate Ingredient.CurrentStock.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	metrics     MetricsPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service. audit, metrics and idem may be nil.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, idempotency: idem}
}

// PostMovement appends one ledger entry and updates the ingredient
// projection inside the caller's transaction. It is the single mutation
// primitive: transfers, reconciliations and returns all route through it
// so their document writes and ledger writes commit or roll back together.
//
// The ingredient row is locked for the duration of the transaction, which
// makes the sufficiency check and the deduction atomic with respect to
// concurrent movements on the same ingredient.
func PostMovement(ctx context.Context, tx TxRepository, input MovementInput, now time.Time) (StockTransaction, error) {
	if err := input.Validate(); err != nil {
		return StockTransaction{}, err
	}

	ing, err := tx.GetIngredientForUpdate(ctx, input.IngredientID)
	if err != nil {
		return StockTransaction{}, err
	}

	// The snapshot keeps the exact arithmetic value so every stored row
	// satisfies newStock = previousStock + quantity; the epsilon applies
	// only to comparisons, never to what gets written.
	newStock := ing.CurrentStock + input.Quantity
	if input.Quantity < 0 && newStock < -Epsilon {
		return StockTransaction{}, &shared.InsufficientStockError{
			IngredientID: ing.ID,
			Available:    ing.CurrentStock,
			Requested:    -input.Quantity,
		}
	}

	unitCost := input.UnitCost
	newAvgCost := ing.UnitCost
	if input.Quantity > 0 && input.UnitCost > 0 {
		totalCost := ing.CurrentStock*ing.UnitCost + input.Quantity*input.UnitCost
		if newStock > 0 {
			newAvgCost = totalCost / newStock
		}
	} else if unitCost == 0 {
		unitCost = ing.UnitCost
	}

	number, err := tx.NextDocumentNumber(ctx, DocTransaction, now.Year())
	if err != nil {
		return StockTransaction{}, fmt.Errorf("stock: next transaction number: %w", err)
	}

	entry := StockTransaction{
		TransactionNumber: number,
		IngredientID:      ing.ID,
		Type:              input.Type,
		Quantity:          input.Quantity,
		PreviousStock:     ing.CurrentStock,
		NewStock:          newStock,
		Unit:              ing.Unit,
		UnitCost:          unitCost,
		FromLocation:      input.FromLocation,
		ToLocation:        input.ToLocation,
		Ref:               input.Ref,
		ReferenceKind:     input.Ref.Kind,
		ReferenceID:       input.Ref.ID,
		Note:              input.Note,
		PerformedBy:       input.PerformedBy,
		Status:            StatusPosted,
		CreatedAt:         now,
	}
	id, err := tx.InsertTransaction(ctx, entry)
	if err != nil {
		return StockTransaction{}, err
	}
	entry.ID = id

	if err := tx.UpdateIngredientStock(ctx, ing.ID, newStock, newAvgCost); err != nil {
		return StockTransaction{}, err
	}
	return entry, nil
}

// RecordMovement posts a single movement in its own transaction.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (StockTransaction, error) {
	if err := input.Validate(); err != nil {
		return StockTransaction{}, err
	}
	now := time.Now().UTC()
	var entry StockTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = PostMovement(ctx, tx, input, now)
		return err
	})
	if err != nil {
		s.observeFailure(err)
		return StockTransaction{}, err
	}
	s.observePosted(entry.Type)
	s.recordAudit(ctx, input.PerformedBy, entry)
	return entry, nil
}

// PurchaseInput describes goods received from a supplier.
type PurchaseInput struct {
	IngredientID int64
	Quantity     float64
	UnitCost     float64
	SupplierRef  string
	PurchaseID   int64
	PerformedBy  int64
}

// ReceivePurchase adds purchased stock and records the receipt cost.
// Repeated deliveries with the same supplier reference are rejected.
func (s *Service) ReceivePurchase(ctx context.Context, input PurchaseInput) (StockTransaction, error) {
	if input.Quantity <= 0 {
		return StockTransaction{}, ErrInvalidQuantity
	}
	ref := Reference{}
	if input.PurchaseID > 0 {
		ref = PurchaseRef(input.PurchaseID)
	}
	key := ""
	if input.SupplierRef != "" {
		key = fmt.Sprintf("purchase:%s:%d", input.SupplierRef, input.IngredientID)
		if err := s.checkIdempotency(ctx, key, "stock.purchase"); err != nil {
			return StockTransaction{}, err
		}
	}
	entry, err := s.RecordMovement(ctx, MovementInput{
		IngredientID: input.IngredientID,
		Quantity:     input.Quantity,
		Type:         TypePurchase,
		UnitCost:     input.UnitCost,
		Ref:          ref,
		Note:         supplierNote(input.SupplierRef),
		PerformedBy:  input.PerformedBy,
	})
	if err != nil && key != "" {
		s.releaseIdempotency(ctx, key)
	}
	return entry, err
}

// SaleLine is one consumed ingredient of a finalised sale.
type SaleLine struct {
	IngredientID int64
	Quantity     float64
}

// SaleConsumptionInput describes consumption for one finalised sale.
type SaleConsumptionInput struct {
	SaleID      int64
	Lines       []SaleLine
	PerformedBy int64
}

// ConsumeForSale deducts every line of a finalised sale in one transaction.
// Any line with insufficient stock aborts the whole sale; no partial
// deduction is ever visible.
func (s *Service) ConsumeForSale(ctx context.Context, input SaleConsumptionInput) ([]StockTransaction, error) {
	if input.SaleID <= 0 {
		return nil, fmt.Errorf("%w: sale id required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one sale line required", shared.ErrValidation)
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	key := fmt.Sprintf("sale:%d", input.SaleID)
	if err := s.checkIdempotency(ctx, key, "stock.sale"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entries := make([]StockTransaction, 0, len(input.Lines))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range input.Lines {
			entry, err := PostMovement(ctx, tx, MovementInput{
				IngredientID: line.IngredientID,
				Quantity:     -line.Quantity,
				Type:         TypeSaleConsumption,
				Ref:          SaleRef(input.SaleID),
				PerformedBy:  input.PerformedBy,
			}, now)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, key)
		s.observeFailure(err)
		return nil, err
	}
	for _, entry := range entries {
		s.observePosted(entry.Type)
		s.recordAudit(ctx, input.PerformedBy, entry)
	}
	return entries, nil
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	IngredientID int64
	Quantity     float64
	Reason       string
	PerformedBy  int64
}

// PostAdjustment records a signed manual correction.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (StockTransaction, error) {
	return s.RecordMovement(ctx, MovementInput{
		IngredientID: input.IngredientID,
		Quantity:     input.Quantity,
		Type:         TypeAdjustment,
		Note:         input.Reason,
		PerformedBy:  input.PerformedBy,
	})
}

// DamageInput describes a damage or waste write-off.
type DamageInput struct {
	IngredientID int64
	Quantity     float64
	Reason       string
	PerformedBy  int64
}

// WriteOffDamage removes damaged or wasted stock.
func (s *Service) WriteOffDamage(ctx context.Context, input DamageInput) (StockTransaction, error) {
	if input.Quantity <= 0 {
		return StockTransaction{}, ErrInvalidQuantity
	}
	return s.RecordMovement(ctx, MovementInput{
		IngredientID: input.IngredientID,
		Quantity:     -input.Quantity,
		Type:         TypeDamage,
		Note:         input.Reason,
		PerformedBy:  input.PerformedBy,
	})
}

// CreateIngredientInput describes inventory setup data.
type CreateIngredientInput struct {
	Name         string
	Unit         string
	InitialStock float64
	UnitCost     float64
	ReorderLevel float64
	PerformedBy  int64
}

// CreateIngredient registers an inventory item. Opening stock goes through
// the ledger like every other quantity so replaying entries always yields
// the projection.
func (s *Service) CreateIngredient(ctx context.Context, input CreateIngredientInput) (Ingredient, error) {
	if input.Name == "" || input.Unit == "" {
		return Ingredient{}, fmt.Errorf("%w: name and unit required", shared.ErrValidation)
	}
	if input.InitialStock < 0 || input.UnitCost < 0 || input.ReorderLevel < 0 {
		return Ingredient{}, fmt.Errorf("%w: stock, cost and reorder level must be >= 0", shared.ErrValidation)
	}
	ing := Ingredient{
		Name:         input.Name,
		Unit:         input.Unit,
		UnitCost:     input.UnitCost,
		ReorderLevel: input.ReorderLevel,
	}
	id, err := s.repo.CreateIngredient(ctx, ing)
	if err != nil {
		return Ingredient{}, err
	}
	ing.ID = id
	if input.InitialStock > 0 {
		entry, err := s.RecordMovement(ctx, MovementInput{
			IngredientID: id,
			Quantity:     input.InitialStock,
			Type:         TypeAdjustment,
			UnitCost:     input.UnitCost,
			Note:         "opening stock",
			PerformedBy:  input.PerformedBy,
		})
		if err != nil {
			return Ingredient{}, err
		}
		ing.CurrentStock = entry.NewStock
	}
	s.recordAuditAction(ctx, input.PerformedBy, "stock:ingredient_create", id, map[string]any{"name": ing.Name})
	return ing, nil
}

// GetIngredient reads one ingredient with its current projection.
func (s *Service) GetIngredient(ctx context.Context, id int64) (Ingredient, error) {
	return s.repo.GetIngredient(ctx, id)
}

// ListIngredients returns all ingredients.
func (s *Service) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	return s.repo.ListIngredients(ctx)
}

// ListTransactions reads the ledger. Reporting callers must never write.
func (s *Service) ListTransactions(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) checkIdempotency(ctx context.Context, key, module string) error {
	if s.idempotency == nil {
		return nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, module); err != nil {
		if err == shared.ErrIdempotencyConflict {
			return fmt.Errorf("%w: %s already processed", shared.ErrConflict, module)
		}
		return err
	}
	return nil
}

func (s *Service) releaseIdempotency(ctx context.Context, key string) {
	if s.idempotency != nil {
		_ = s.idempotency.Delete(ctx, key)
	}
}

func (s *Service) observePosted(txType TransactionType) {
	if s.metrics != nil {
		s.metrics.MovementPosted(string(txType))
	}
}

func (s *Service) observeFailure(err error) {
	var insufficient *shared.InsufficientStockError
	if s.metrics != nil && shared.AsInsufficientStock(err, &insufficient) {
		s.metrics.InsufficientStockRejected()
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, entry StockTransaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("stock:%s", entry.Type),
		Entity:   "stock_transaction",
		EntityID: entry.TransactionNumber,
		Meta: map[string]any{
			"ingredient_id":  entry.IngredientID,
			"quantity":       entry.Quantity,
			"previous_stock": entry.PreviousStock,
			"new_stock":      entry.NewStock,
		},
	})
}

func (s *Service) recordAuditAction(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "ingredient",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func supplierNote(ref string) string {
	if ref == "" {
		return ""
	}
	return fmt.Sprintf("supplier ref %s", ref)
}
