package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReturn(ctx context.Context, id int64) (StockReturn, error)
	ListReturns(ctx context.Context, status ReturnStatus, limit int) ([]StockReturn, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort persists sign-off history for return documents.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service drives the supplier-return lifecycle. The goods and the refund
// move through separate state machines: goods pending, approved, shipped,
// completed or rejected; refund pending, approved, refunded or rejected.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	approvals ApprovalPort
}

// NewService builds Service. audit and approvals may be nil.
func NewService(repo RepositoryPort, audit AuditPort, approvals ApprovalPort) *Service {
	return &Service{repo: repo, audit: audit, approvals: approvals}
}

// CreateInput describes a new supplier return.
type CreateInput struct {
	IngredientID int64
	Quantity     float64
	Supplier     string
	Reason       string
	CreatedBy    int64
}

// Create records the return and posts the ledger deduction in the same
// transaction. The refund amount is priced at the ingredient's current
// average cost.
func (s *Service) Create(ctx context.Context, input CreateInput) (StockReturn, error) {
	if input.Quantity <= 0 {
		return StockReturn{}, fmt.Errorf("%w: quantity must be > 0", shared.ErrValidation)
	}
	if input.Supplier == "" {
		return StockReturn{}, fmt.Errorf("%w: supplier required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	var retID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ing, err := tx.GetIngredientForUpdate(ctx, input.IngredientID)
		if err != nil {
			return err
		}
		number, err := tx.NextDocumentNumber(ctx, stock.DocReturn, now.Year())
		if err != nil {
			return err
		}
		id, err := tx.InsertReturn(ctx, StockReturn{
			ReturnNumber: number,
			IngredientID: input.IngredientID,
			Quantity:     input.Quantity,
			UnitCost:     ing.UnitCost,
			Supplier:     input.Supplier,
			Reason:       input.Reason,
			Status:       StatusPending,
			RefundStatus: RefundPending,
			RefundAmount: input.Quantity * ing.UnitCost,
			CreatedBy:    input.CreatedBy,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		entry, err := stock.PostMovement(ctx, tx, stock.MovementInput{
			IngredientID: input.IngredientID,
			Quantity:     -input.Quantity,
			Type:         stock.TypeReturn,
			Ref:          stock.ReturnRef(id),
			Note:         fmt.Sprintf("return to %s", input.Supplier),
			PerformedBy:  input.CreatedBy,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.SetLedgerTx(ctx, id, entry.ID); err != nil {
			return err
		}
		retID = id
		return nil
	})
	if err != nil {
		return StockReturn{}, err
	}
	ret, err := s.repo.GetReturn(ctx, retID)
	if err != nil {
		return StockReturn{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "returns:create", ret)
	return ret, nil
}

// Approve signs off a pending return.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (StockReturn, error) {
	ret, err := s.transition(ctx, id, actorID, "approve", StatusPending, StatusApproved, false)
	if err != nil {
		return StockReturn{}, err
	}
	s.recordApproval(ctx, actorID, shared.ApprovalApprove, ret.ReturnNumber, "")
	return ret, nil
}

// Ship marks the goods as sent back to the supplier.
func (s *Service) Ship(ctx context.Context, id, actorID int64) (StockReturn, error) {
	return s.transition(ctx, id, actorID, "ship", StatusApproved, StatusShipped, false)
}

// Complete closes a shipped return.
func (s *Service) Complete(ctx context.Context, id, actorID int64) (StockReturn, error) {
	return s.transition(ctx, id, actorID, "complete", StatusShipped, StatusCompleted, true)
}

// Reject aborts a return before shipping. The original deduction is
// reversed with a new adjustment entry and the refund is rejected too.
func (s *Service) Reject(ctx context.Context, id, actorID int64, reason string) (StockReturn, error) {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ret.Status != StatusPending && ret.Status != StatusApproved {
			return invalidTransition(ret.Status, "reject")
		}
		note := reason
		if note == "" {
			note = "return rejected"
		}
		_, err = stock.PostMovement(ctx, tx, stock.MovementInput{
			IngredientID: ret.IngredientID,
			Quantity:     ret.Quantity,
			Type:         stock.TypeAdjustment,
			Ref:          stock.ReturnRef(id),
			Note:         note,
			PerformedBy:  actorID,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateRefundStatus(ctx, id, RefundRejected); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, StatusRejected, &now)
	})
	if err != nil {
		return StockReturn{}, err
	}
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return StockReturn{}, err
	}
	s.recordAudit(ctx, actorID, "returns:reject", ret)
	s.recordApproval(ctx, actorID, shared.ApprovalReject, ret.ReturnNumber, reason)
	return ret, nil
}

// ApproveRefund moves the refund to approved. The goods machine must not
// have been rejected.
func (s *Service) ApproveRefund(ctx context.Context, id, actorID int64) (StockReturn, error) {
	return s.refundTransition(ctx, id, actorID, "approve refund of", RefundPending, RefundApproved)
}

// MarkRefunded records the supplier's payment.
func (s *Service) MarkRefunded(ctx context.Context, id, actorID int64) (StockReturn, error) {
	return s.refundTransition(ctx, id, actorID, "settle", RefundApproved, RefundRefunded)
}

// GetReturn reads one return document.
func (s *Service) GetReturn(ctx context.Context, id int64) (StockReturn, error) {
	return s.repo.GetReturn(ctx, id)
}

// ListReturns lists return documents, optionally by status.
func (s *Service) ListReturns(ctx context.Context, status ReturnStatus, limit int) ([]StockReturn, error) {
	return s.repo.ListReturns(ctx, status, limit)
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action string, from, to ReturnStatus, closes bool) (StockReturn, error) {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ret.Status != from {
			return invalidTransition(ret.Status, action)
		}
		var at *time.Time
		if closes {
			at = &now
		}
		return tx.UpdateStatus(ctx, id, to, at)
	})
	if err != nil {
		return StockReturn{}, err
	}
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return StockReturn{}, err
	}
	s.recordAudit(ctx, actorID, "returns:"+action, ret)
	return ret, nil
}

func (s *Service) refundTransition(ctx context.Context, id, actorID int64, action string, from, to RefundStatus) (StockReturn, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ret.Status == StatusRejected {
			return invalidTransition(ret.Status, action)
		}
		if ret.RefundStatus != from {
			return invalidRefundTransition(ret.RefundStatus, action)
		}
		return tx.UpdateRefundStatus(ctx, id, to)
	})
	if err != nil {
		return StockReturn{}, err
	}
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return StockReturn{}, err
	}
	s.recordAudit(ctx, actorID, "returns:refund", ret)
	return ret, nil
}

func (s *Service) recordApproval(ctx context.Context, actorID int64, action shared.ApprovalAction, number, note string) {
	if s.approvals == nil || actorID == 0 {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "returns",
		RefID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(number)),
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, ret StockReturn) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_return",
		EntityID: ret.ReturnNumber,
		Meta: map[string]any{
			"supplier":      ret.Supplier,
			"status":        string(ret.Status),
			"refund_status": string(ret.RefundStatus),
		},
	})
}
