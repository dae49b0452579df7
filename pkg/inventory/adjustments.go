package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AdjustmentInput describes one multi-line manual correction.
type AdjustmentInput struct {
	StoreID    StoreID
	ReasonCode string
	Note       string
	Lines      []AdjustmentLineInput
	Actor      string

	// RefType and RefID override where the postings point. Left empty,
	// postings reference the adjustment itself; count finalize points
	// them at the session instead.
	RefType RefType
	RefID   string
}

// AdjustmentLineInput is one signed delta within an adjustment.
type AdjustmentLineInput struct {
	VariantID VariantID
	Delta     int64
}

func (input AdjustmentInput) validate() error {
	if input.StoreID <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidStoreID)
	}
	if input.ReasonCode == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidReasonCode)
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: no lines", ErrEmptyAdjustment)
	}
	for _, line := range input.Lines {
		if line.VariantID <= 0 {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidVariantID)
		}
		if line.Delta == 0 {
			return fmt.Errorf("%w: zero delta for variant %d", ErrInvalidDelta, line.VariantID)
		}
	}
	return nil
}

func (input AdjustmentInput) keys() []string {
	keys := make([]string, 0, len(input.Lines))
	for _, line := range input.Lines {
		keys = append(keys, LineKey{StoreID: input.StoreID, VariantID: line.VariantID}.String())
	}
	return keys
}

// CreateAdjustment applies every line as an atomic set: if any single
// line would fold on-hand below zero, the whole adjustment rolls back
// and no posting survives.
func (service *Service) CreateAdjustment(ctx context.Context, input AdjustmentInput) (Adjustment, error) {
	var adjustment Adjustment
	operationError := func() error {
		if err := input.validate(); err != nil {
			return err
		}
		release, err := service.locks.AcquireAll(ctx, input.keys(), service.lockWait)
		if err != nil {
			return err
		}
		defer release()
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			applied, err := service.applyAdjustment(ctx, txStore, input)
			if err != nil {
				return err
			}
			adjustment = applied
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:    operationAdjust,
		StoreID:      input.StoreID,
		AdjustmentID: adjustment.AdjustmentID,
		Quantity:     int64(len(input.Lines)),
		Error:        operationError,
	})
	if operationError != nil {
		return Adjustment{}, operationError
	}
	return adjustment, nil
}

// applyAdjustment posts every line inside an already-held lock set and
// transaction. Count finalize reuses this so reconciliation follows the
// same all-or-nothing rule.
func (service *Service) applyAdjustment(ctx context.Context, txStore Store, input AdjustmentInput) (Adjustment, error) {
	adjustment := Adjustment{
		AdjustmentID:   uuid.NewString(),
		StoreID:        input.StoreID,
		ReasonCode:     input.ReasonCode,
		Note:           input.Note,
		Lines:          make([]AdjustmentLine, 0, len(input.Lines)),
		CreatedBy:      input.Actor,
		CreatedUnixUTC: service.nowFn(),
	}
	refType := input.RefType
	refID := input.RefID
	if refType == "" {
		refType = RefTypeAdjustment
		refID = adjustment.AdjustmentID
	}
	for _, line := range input.Lines {
		posting, err := service.postLocked(ctx, txStore, PostInput{
			StoreID:     input.StoreID,
			VariantID:   line.VariantID,
			DeltaOnHand: line.Delta,
			ReasonCode:  input.ReasonCode,
			RefType:     refType,
			RefID:       refID,
			Actor:       input.Actor,
		})
		if err != nil {
			return Adjustment{}, err
		}
		adjustment.Lines = append(adjustment.Lines, AdjustmentLine{
			VariantID:    line.VariantID,
			Delta:        line.Delta,
			BalanceAfter: posting.BalanceAfter,
		})
	}
	if err := txStore.CreateAdjustment(ctx, adjustment); err != nil {
		return Adjustment{}, err
	}
	return adjustment, nil
}

// ReceiveInput describes a purchase-order receipt.
type ReceiveInput struct {
	StoreID   StoreID
	VariantID VariantID
	Quantity  Quantity
	RefID     string
	Actor     string
}

// Receive books received stock into on-hand and burns down the open
// in-transit quantity. Over-receipt clamps in-transit at zero instead
// of failing; stock on the dock beats paperwork.
func (service *Service) Receive(ctx context.Context, input ReceiveInput) (LedgerPosting, error) {
	var posting LedgerPosting
	operationError := func() error {
		if input.Quantity <= 0 {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
		}
		key := LineKey{StoreID: input.StoreID, VariantID: input.VariantID}
		release, err := service.locks.Acquire(ctx, key.String(), service.lockWait)
		if err != nil {
			return err
		}
		defer release()
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			line, err := txStore.LockStockLine(ctx, input.StoreID, input.VariantID)
			if err != nil {
				return err
			}
			deltaInTransit := -input.Quantity.Int64()
			if line.InTransit < input.Quantity.Int64() {
				deltaInTransit = -line.InTransit
			}
			applied, err := service.postLocked(ctx, txStore, PostInput{
				StoreID:        input.StoreID,
				VariantID:      input.VariantID,
				DeltaOnHand:    input.Quantity.Int64(),
				DeltaInTransit: deltaInTransit,
				ReasonCode:     ReasonReceiving,
				RefType:        RefTypePurchaseOrder,
				RefID:          input.RefID,
				Actor:          input.Actor,
			})
			if err != nil {
				return err
			}
			posting = applied
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationReceive,
		StoreID:   input.StoreID,
		VariantID: input.VariantID,
		Quantity:  input.Quantity.Int64(),
		Error:     operationError,
	})
	if operationError != nil {
		return LedgerPosting{}, operationError
	}
	return posting, nil
}

// AddInTransit registers quantity ordered on an open purchase order.
func (service *Service) AddInTransit(ctx context.Context, storeID StoreID, variantID VariantID, quantity Quantity, refID string, actor string) (LedgerPosting, error) {
	if quantity <= 0 {
		return LedgerPosting{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	return service.Post(ctx, PostInput{
		StoreID:        storeID,
		VariantID:      variantID,
		DeltaInTransit: quantity.Int64(),
		ReasonCode:     ReasonInTransitOpen,
		RefType:        RefTypePurchaseOrder,
		RefID:          refID,
		Actor:          actor,
	})
}

// ListReasons returns the adjustment reason catalog.
func (service *Service) ListReasons(ctx context.Context) ([]AdjustmentReason, error) {
	return service.store.ListReasons(ctx)
}
