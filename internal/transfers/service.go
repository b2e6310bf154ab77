package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/saffron-pos/saffron-pos/internal/shared"
	"github.com/saffron-pos/saffron-pos/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, id int64) (StockTransfer, error)
	ListTransfers(ctx context.Context, status TransferStatus, limit int) ([]StockTransfer, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the transfer state machine. Stock leaves the source when
// the transfer is initiated; it re-enters only at receipt, and only the
// intact quantity. Cancellation before receipt reverses the deduction
// with new offsetting entries.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// InitiateInput describes a new transfer.
type InitiateInput struct {
	FromLocation string
	ToLocation   string
	Items        []TransferItem
	Note         string
	CreatedBy    int64
}

// Initiate creates a pending transfer and posts the outbound deduction
// for every item in the same transaction. Any invalid item or shortfall
// aborts the whole transfer; no partial document is ever created.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (StockTransfer, error) {
	if input.FromLocation == "" || input.ToLocation == "" {
		return StockTransfer{}, fmt.Errorf("%w: both locations required", shared.ErrValidation)
	}
	if input.FromLocation == input.ToLocation {
		return StockTransfer{}, ErrSameLocation
	}
	if len(input.Items) == 0 {
		return StockTransfer{}, ErrNoItems
	}
	seen := map[int64]bool{}
	for _, item := range input.Items {
		if item.IngredientID <= 0 || item.QuantitySent <= 0 {
			return StockTransfer{}, fmt.Errorf("%w: every item needs an ingredient and a positive quantity", shared.ErrValidation)
		}
		if seen[item.IngredientID] {
			return StockTransfer{}, ErrDuplicateItem
		}
		seen[item.IngredientID] = true
	}

	now := time.Now().UTC()
	var transferID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocumentNumber(ctx, stock.DocTransfer, now.Year())
		if err != nil {
			return err
		}
		id, err := tx.InsertTransfer(ctx, StockTransfer{
			TransferNumber: number,
			FromLocation:   input.FromLocation,
			ToLocation:     input.ToLocation,
			Status:         StatusPending,
			Note:           input.Note,
			CreatedBy:      input.CreatedBy,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		items := append([]TransferItem(nil), input.Items...)
		for i := range items {
			entry, err := stock.PostMovement(ctx, tx, stock.MovementInput{
				IngredientID: items[i].IngredientID,
				Quantity:     -items[i].QuantitySent,
				Type:         stock.TypeTransferOut,
				FromLocation: input.FromLocation,
				ToLocation:   input.ToLocation,
				Ref:          stock.TransferRef(id),
				PerformedBy:  input.CreatedBy,
			}, now)
			if err != nil {
				return err
			}
			items[i].OutTxID = entry.ID
		}
		if err := tx.InsertItems(ctx, id, items); err != nil {
			return err
		}
		transferID = id
		return nil
	})
	if err != nil {
		return StockTransfer{}, err
	}
	t, err := s.repo.GetTransfer(ctx, transferID)
	if err != nil {
		return StockTransfer{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "transfers:initiate", t)
	return t, nil
}

// MarkInTransit records that the goods left the source. Pure status
// transition; the deduction already happened at initiation.
func (s *Service) MarkInTransit(ctx context.Context, id, actorID int64) (StockTransfer, error) {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != StatusPending {
			return invalidTransition(t.Status, "mark in transit")
		}
		return tx.UpdateStatus(ctx, id, StatusInTransit, actorID, now)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	t, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return StockTransfer{}, err
	}
	s.recordAudit(ctx, actorID, "transfers:in_transit", t)
	return t, nil
}

// Receive closes the transfer with the counted quantities. Receipt is
// all-items-at-once: the count must cover every item exactly once, and
// received plus damaged may not exceed what was sent. Only the intact
// quantity returns to stock; damaged and missing units stay written off
// and remain visible on the items.
func (s *Service) Receive(ctx context.Context, id, actorID int64, lines []ReceiptLine) (StockTransfer, error) {
	if len(lines) == 0 {
		return StockTransfer{}, ErrIncompleteCount
	}
	counted := map[int64]ReceiptLine{}
	for _, line := range lines {
		if line.ReceivedQty < 0 || line.DamagedQty < 0 {
			return StockTransfer{}, fmt.Errorf("%w: counted quantities must be >= 0", shared.ErrValidation)
		}
		if _, dup := counted[line.IngredientID]; dup {
			return StockTransfer{}, ErrDuplicateItem
		}
		counted[line.IngredientID] = line
	}

	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != StatusPending && t.Status != StatusInTransit {
			return invalidTransition(t.Status, "receive")
		}
		items, err := tx.GetItems(ctx, id)
		if err != nil {
			return err
		}
		if len(counted) != len(items) {
			return ErrIncompleteCount
		}
		for _, item := range items {
			line, ok := counted[item.IngredientID]
			if !ok {
				return ErrIncompleteCount
			}
			if line.ReceivedQty+line.DamagedQty > item.QuantitySent+stock.Epsilon {
				return ErrOverReceipt
			}
			var inTxID int64
			if line.ReceivedQty > 0 {
				entry, err := stock.PostMovement(ctx, tx, stock.MovementInput{
					IngredientID: item.IngredientID,
					Quantity:     line.ReceivedQty,
					Type:         stock.TypeTransferIn,
					FromLocation: t.FromLocation,
					ToLocation:   t.ToLocation,
					Ref:          stock.TransferRef(id),
					PerformedBy:  actorID,
				}, now)
				if err != nil {
					return err
				}
				inTxID = entry.ID
			}
			if err := tx.UpdateItemCounts(ctx, item.ID, line, inTxID); err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, id, StatusReceived, actorID, now)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	t, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return StockTransfer{}, err
	}
	s.recordAudit(ctx, actorID, "transfers:receive", t)
	return t, nil
}

// Cancel aborts a transfer before receipt. The outbound deduction is
// reversed with new adjustment entries restoring the sent quantities; the
// original entries stay untouched in the ledger.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, reason string) (StockTransfer, error) {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return invalidTransition(t.Status, "cancel")
		}
		items, err := tx.GetItems(ctx, id)
		if err != nil {
			return err
		}
		note := reason
		if note == "" {
			note = "transfer cancelled"
		}
		for _, item := range items {
			_, err := stock.PostMovement(ctx, tx, stock.MovementInput{
				IngredientID: item.IngredientID,
				Quantity:     item.QuantitySent,
				Type:         stock.TypeAdjustment,
				Ref:          stock.TransferRef(id),
				Note:         note,
				PerformedBy:  actorID,
			}, now)
			if err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, id, StatusCancelled, actorID, now)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	t, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return StockTransfer{}, err
	}
	s.recordAudit(ctx, actorID, "transfers:cancel", t)
	return t, nil
}

// GetTransfer reads one transfer with items.
func (s *Service) GetTransfer(ctx context.Context, id int64) (StockTransfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// ListTransfers lists transfers, optionally filtered by status.
func (s *Service) ListTransfers(ctx context.Context, status TransferStatus, limit int) ([]StockTransfer, error) {
	return s.repo.ListTransfers(ctx, status, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, t StockTransfer) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_transfer",
		EntityID: t.TransferNumber,
		Meta: map[string]any{
			"from": t.FromLocation,
			"to":   t.ToLocation,
		},
	})
}
