package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockWait = 2 * time.Second

// Service contains the domain logic over a Store. All quantity
// mutations funnel through the single posting primitive so the posting
// log stays the system of record and the stock line its derived cache.
type Service struct {
	store    Store
	nowFn    func() int64
	locks    *keyLockManager
	lockWait time.Duration
	policy   ChannelPolicy
	resolver VariantResolver
	logger   OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:    store,
		nowFn:    now,
		locks:    newKeyLockManager(),
		lockWait: defaultLockWait,
		policy:   DefaultChannelPolicy(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// PostInput describes one atomic posting against a stock line.
type PostInput struct {
	StoreID        StoreID
	VariantID      VariantID
	DeltaOnHand    int64
	DeltaReserved  int64
	DeltaInTransit int64
	ReasonCode     string
	RefType        RefType
	RefID          string
	MetadataJSON   string
	Actor          string
}

func (input PostInput) key() LineKey {
	return LineKey{StoreID: input.StoreID, VariantID: input.VariantID}
}

func (input PostInput) validate() error {
	if input.StoreID <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidStoreID)
	}
	if input.VariantID <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidVariantID)
	}
	if input.DeltaOnHand == 0 && input.DeltaReserved == 0 && input.DeltaInTransit == 0 {
		return fmt.Errorf("%w: all deltas are zero", ErrInvalidDelta)
	}
	if input.ReasonCode == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidReasonCode)
	}
	return nil
}

// Post applies the deltas to the stock line in one serialized
// transaction and appends the audit posting. The resulting on-hand must
// stay non-negative; reserved and in-transit likewise never fold below
// zero.
func (service *Service) Post(ctx context.Context, input PostInput) (LedgerPosting, error) {
	var posting LedgerPosting
	operationError := func() error {
		if err := input.validate(); err != nil {
			return err
		}
		release, err := service.locks.Acquire(ctx, input.key().String(), service.lockWait)
		if err != nil {
			return err
		}
		defer release()
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			applied, err := service.postLocked(ctx, txStore, input)
			if err != nil {
				return err
			}
			posting = applied
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationPost,
		StoreID:   input.StoreID,
		VariantID: input.VariantID,
		Quantity:  input.DeltaOnHand,
		Error:     operationError,
	})
	if operationError != nil {
		return LedgerPosting{}, operationError
	}
	return posting, nil
}

// postLocked applies one posting inside an already-held per-key lock
// and transaction. Every caller that mutates quantities goes through
// here; there is no other write path to a stock line.
func (service *Service) postLocked(ctx context.Context, txStore Store, input PostInput) (LedgerPosting, error) {
	line, err := txStore.LockStockLine(ctx, input.StoreID, input.VariantID)
	if err != nil {
		return LedgerPosting{}, err
	}
	newOnHand := line.OnHand + input.DeltaOnHand
	if newOnHand < 0 {
		return LedgerPosting{}, fmt.Errorf("%w: on-hand %d%+d would go negative", ErrInvalidDelta, line.OnHand, input.DeltaOnHand)
	}
	newReserved := line.Reserved + input.DeltaReserved
	if newReserved < 0 {
		return LedgerPosting{}, fmt.Errorf("%w: reserved %d%+d would go negative", ErrInvalidDelta, line.Reserved, input.DeltaReserved)
	}
	newInTransit := line.InTransit + input.DeltaInTransit
	if newInTransit < 0 {
		return LedgerPosting{}, fmt.Errorf("%w: in-transit %d%+d would go negative", ErrInvalidDelta, line.InTransit, input.DeltaInTransit)
	}
	line.OnHand = newOnHand
	line.Reserved = newReserved
	line.InTransit = newInTransit
	if err := txStore.SaveStockLine(ctx, line); err != nil {
		return LedgerPosting{}, err
	}
	posting := LedgerPosting{
		PostingID:      uuid.NewString(),
		StoreID:        input.StoreID,
		VariantID:      input.VariantID,
		DeltaOnHand:    input.DeltaOnHand,
		DeltaReserved:  input.DeltaReserved,
		DeltaInTransit: input.DeltaInTransit,
		ReasonCode:     input.ReasonCode,
		RefType:        input.RefType,
		RefID:          input.RefID,
		BalanceAfter:   newOnHand,
		MetadataJSON:   input.MetadataJSON,
		CreatedBy:      input.Actor,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := txStore.InsertPosting(ctx, posting); err != nil {
		return LedgerPosting{}, err
	}
	return posting, nil
}

// Availability returns the quantity view for one store and variant.
// Lines never posted to read as all zeros.
func (service *Service) Availability(ctx context.Context, storeID StoreID, variantID VariantID) (Availability, error) {
	if storeID <= 0 {
		return Availability{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidStoreID)
	}
	if variantID <= 0 {
		return Availability{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidVariantID)
	}
	line, err := service.store.GetStockLine(ctx, storeID, variantID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		StoreID:   storeID,
		VariantID: variantID,
		OnHand:    line.OnHand,
		Reserved:  line.Reserved,
		InTransit: line.InTransit,
		Available: line.OnHand - line.Reserved,
	}, nil
}

// Postings lists the audit trail for one stock line, newest first.
func (service *Service) Postings(ctx context.Context, storeID StoreID, variantID VariantID, limit int) ([]LedgerPosting, error) {
	if limit <= 0 {
		limit = 50
	}
	return service.store.ListPostings(ctx, storeID, variantID, limit)
}

// ReplayStockLine folds every posting for the key and compares the
// result against the cached aggregate. A mismatch means the cache has
// drifted from the system of record.
func (service *Service) ReplayStockLine(ctx context.Context, storeID StoreID, variantID VariantID) (StockLine, error) {
	fold, err := service.store.FoldPostings(ctx, storeID, variantID)
	if err != nil {
		return StockLine{}, err
	}
	replayed := StockLine{
		StoreID:   storeID,
		VariantID: variantID,
		OnHand:    fold.OnHand,
		Reserved:  fold.Reserved,
		InTransit: fold.InTransit,
	}
	cached, err := service.store.GetStockLine(ctx, storeID, variantID)
	if err != nil {
		return StockLine{}, err
	}
	if cached.OnHand != replayed.OnHand || cached.Reserved != replayed.Reserved || cached.InTransit != replayed.InTransit {
		return replayed, WrapError("ledger", "stock_line", "replay_mismatch",
			fmt.Errorf("cached %+v diverges from replayed %+v", cached, replayed))
	}
	return replayed, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
