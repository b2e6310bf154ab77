package reconciliation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReconciliation(ctx context.Context, id int64) (StockReconciliation, error)
	ListReconciliations(ctx context.Context, limit int) ([]StockReconciliation, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort persists sign-off history for reconciliation exercises.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service drives the reconciliation workflow. Approval is the only path
// that touches stock, and it does so through the ledger: one adjustment
// entry per item whose counted difference is significant.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	approvals ApprovalPort
}

// NewService builds Service. audit and approvals may be nil.
func NewService(repo RepositoryPort, audit AuditPort, approvals ApprovalPort) *Service {
	return &Service{repo: repo, audit: audit, approvals: approvals}
}

// Start opens a new exercise and snapshots every ingredient. Physical
// stock defaults to the frozen system stock, so an item never counted
// contributes a zero difference. Fails with a conflict if any exercise is
// already in progress, whoever started it.
func (s *Service) Start(ctx context.Context, location, note string, startedBy int64) (StockReconciliation, error) {
	now := time.Now().UTC()
	var recID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ingredients, err := tx.ListAllIngredients(ctx)
		if err != nil {
			return err
		}
		if len(ingredients) == 0 {
			return ErrNoIngredients
		}
		number, err := tx.NextDocumentNumber(ctx, stock.DocReconciliation, now.Year())
		if err != nil {
			return err
		}
		id, err := tx.InsertReconciliation(ctx, StockReconciliation{
			ReconciliationNumber: number,
			Location:             location,
			Status:               StatusInProgress,
			Note:                 note,
			StartedBy:            startedBy,
			CreatedAt:            now,
		})
		if err != nil {
			return err
		}
		items := make([]ReconciliationItem, len(ingredients))
		for i, ing := range ingredients {
			items[i] = ReconciliationItem{
				IngredientID: ing.ID,
				SystemStock:  ing.CurrentStock,
				UnitCost:     ing.UnitCost,
			}
		}
		if err := tx.InsertItems(ctx, id, items); err != nil {
			return err
		}
		recID = id
		return nil
	})
	if err != nil {
		return StockReconciliation{}, err
	}
	rec, err := s.repo.GetReconciliation(ctx, recID)
	if err != nil {
		return StockReconciliation{}, err
	}
	s.recordAudit(ctx, startedBy, "reconciliation:start", rec)
	return rec, nil
}

// UpdateItems enters physical counts. Callable repeatedly while the
// exercise is in progress; each call replaces the named items' counts.
func (s *Service) UpdateItems(ctx context.Context, id, actorID int64, lines []CountLine) (StockReconciliation, error) {
	if len(lines) == 0 {
		return StockReconciliation{}, fmt.Errorf("%w: at least one count required", shared.ErrValidation)
	}
	for _, line := range lines {
		if line.PhysicalStock < 0 {
			return StockReconciliation{}, fmt.Errorf("%w: physical stock must be >= 0", shared.ErrValidation)
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != StatusInProgress {
			return invalidTransition(rec.Status, "update items of")
		}
		items, err := tx.GetItems(ctx, id)
		if err != nil {
			return err
		}
		byID := make(map[int64]ReconciliationItem, len(items))
		for _, item := range items {
			byID[item.ID] = item
		}
		for _, line := range lines {
			item, ok := byID[line.ItemID]
			if !ok {
				return ErrItemNotFound
			}
			difference := line.PhysicalStock - item.SystemStock
			valueDifference := difference * item.UnitCost
			if err := tx.UpdateItemCount(ctx, item.ID, line.PhysicalStock, difference, valueDifference, line.Note); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return StockReconciliation{}, err
	}
	return s.repo.GetReconciliation(ctx, id)
}

// Submit freezes the counts. Totals are aggregated from the items and the
// exercise moves to completed; item edits are rejected from here on.
func (s *Service) Submit(ctx context.Context, id, actorID int64) (StockReconciliation, error) {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != StatusInProgress {
			return invalidTransition(rec.Status, "submit")
		}
		items, err := tx.GetItems(ctx, id)
		if err != nil {
			return err
		}
		counted := 0
		discrepancies := 0
		var totalValue float64
		for _, item := range items {
			if item.Counted {
				counted++
			}
			if math.Abs(item.Difference) > stock.Epsilon {
				discrepancies++
				totalValue += item.ValueDifference
			}
		}
		if err := tx.UpdateTotals(ctx, id, counted, discrepancies, totalValue); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, StatusCompleted, actorID, now)
	})
	if err != nil {
		return StockReconciliation{}, err
	}
	rec, err := s.repo.GetReconciliation(ctx, id)
	if err != nil {
		return StockReconciliation{}, err
	}
	s.recordAudit(ctx, actorID, "reconciliation:submit", rec)
	s.recordApproval(ctx, actorID, shared.ApprovalSubmit, rec.ReconciliationNumber)
	return rec, nil
}

// Approve posts one adjustment per item with a significant difference and
// closes the exercise. Everything happens in one transaction: either all
// variances post or none do. After approval the stock of every adjusted
// ingredient equals its counted physical stock.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (StockReconciliation, error) {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != StatusCompleted {
			return invalidTransition(rec.Status, "approve")
		}
		items, err := tx.GetItems(ctx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if math.Abs(item.Difference) <= stock.Epsilon {
				continue
			}
			entry, err := stock.PostMovement(ctx, tx, stock.MovementInput{
				IngredientID: item.IngredientID,
				Quantity:     item.Difference,
				Type:         stock.TypeAdjustment,
				Ref:          stock.ReconciliationRef(id),
				Note:         fmt.Sprintf("count variance %s", rec.ReconciliationNumber),
				PerformedBy:  actorID,
			}, now)
			if err != nil {
				return err
			}
			if err := tx.LinkItemAdjustment(ctx, item.ID, entry.ID); err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, id, StatusApproved, actorID, now)
	})
	if err != nil {
		return StockReconciliation{}, err
	}
	rec, err := s.repo.GetReconciliation(ctx, id)
	if err != nil {
		return StockReconciliation{}, err
	}
	s.recordAudit(ctx, actorID, "reconciliation:approve", rec)
	s.recordApproval(ctx, actorID, shared.ApprovalApprove, rec.ReconciliationNumber)
	return rec, nil
}

// GetReconciliation reads one exercise with its items.
func (s *Service) GetReconciliation(ctx context.Context, id int64) (StockReconciliation, error) {
	return s.repo.GetReconciliation(ctx, id)
}

// ListReconciliations lists past and current exercises.
func (s *Service) ListReconciliations(ctx context.Context, limit int) ([]StockReconciliation, error) {
	return s.repo.ListReconciliations(ctx, limit)
}

func (s *Service) recordApproval(ctx context.Context, actorID int64, action shared.ApprovalAction, number string) {
	if s.approvals == nil || actorID == 0 {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "reconciliation",
		RefID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(number)),
		ActorID: actorID,
		Action:  action,
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, rec StockReconciliation) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_reconciliation",
		EntityID: rec.ReconciliationNumber,
		Meta: map[string]any{
			"status":            string(rec.Status),
			"discrepancy_count": rec.DiscrepancyCount,
		},
	})
}
