package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// CreateCountInput describes a new physical count session.
type CreateCountInput struct {
	StoreID  StoreID
	Scope    CountScope
	ZoneName string
	Code     string
	Note     string
	Actor    string
}

func (input CreateCountInput) validate() error {
	if input.StoreID <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidStoreID)
	}
	if _, err := ParseCountScope(input.Scope.String()); err != nil {
		return err
	}
	zone := strings.TrimSpace(input.ZoneName)
	if input.Scope == CountScopeZone && zone == "" {
		return fmt.Errorf("%w: zone scope requires a zone name", ErrInvalidZoneName)
	}
	if input.Scope == CountScopeFullStore && zone != "" {
		return fmt.Errorf("%w: full-store scope takes no zone name", ErrInvalidZoneName)
	}
	return nil
}

func countSessionLockKey(sessionID string) string {
	return "count/" + sessionID
}

func countStoreLockKey(storeID StoreID) string {
	return fmt.Sprintf("countstore/%d", storeID)
}

// CreateCountSession opens a count in DRAFT. At most one non-finalized
// FULL_STORE session may exist per store; concurrent creation attempts
// are serialized on a per-store lock so at most one survives.
func (service *Service) CreateCountSession(ctx context.Context, input CreateCountInput) (CountSession, error) {
	var session CountSession
	operationError := func() error {
		if err := input.validate(); err != nil {
			return err
		}
		release, err := service.locks.Acquire(ctx, countStoreLockKey(input.StoreID), service.lockWait)
		if err != nil {
			return err
		}
		defer release()
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			if input.Scope == CountScopeFullStore {
				open, exists, err := txStore.FindOpenFullStoreSession(ctx, input.StoreID)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("%w: session %s is still open", ErrConflictingSession, open.SessionID)
				}
			}
			code := strings.TrimSpace(input.Code)
			if code == "" {
				code = "CNT-" + strings.ToUpper(uuid.NewString()[:8])
			}
			session = CountSession{
				SessionID:      uuid.NewString(),
				Code:           code,
				StoreID:        input.StoreID,
				Scope:          input.Scope,
				ZoneName:       strings.TrimSpace(input.ZoneName),
				Status:         CountStatusDraft,
				Note:           input.Note,
				CreatedBy:      input.Actor,
				CreatedUnixUTC: service.nowFn(),
			}
			return txStore.CreateCountSession(ctx, session)
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationCount,
		StoreID:   input.StoreID,
		SessionID: session.SessionID,
		Error:     operationError,
	})
	if operationError != nil {
		return CountSession{}, operationError
	}
	return session, nil
}

// GetCountSession fetches one session by id.
func (service *Service) GetCountSession(ctx context.Context, sessionID string) (CountSession, error) {
	return service.store.GetCountSession(ctx, sessionID)
}

// ListCountSessions lists sessions matching the filter.
func (service *Service) ListCountSessions(ctx context.Context, filter CountSessionFilter) ([]CountSession, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return service.store.ListCountSessions(ctx, filter)
}

// DeleteCountSession removes a session and its lines. Finalized
// sessions already posted to the ledger and cannot be deleted.
func (service *Service) DeleteCountSession(ctx context.Context, sessionID string) error {
	release, err := service.locks.Acquire(ctx, countSessionLockKey(sessionID), service.lockWait)
	if err != nil {
		return err
	}
	defer release()
	return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		session, err := txStore.GetCountSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == CountStatusFinalized {
			return fmt.Errorf("%w: session is finalized", ErrInvalidState)
		}
		return txStore.DeleteCountSession(ctx, sessionID)
	})
}

// ScanInput describes one scan event against a count session.
type ScanInput struct {
	SessionID string
	Locator   Locator
	Qty       Quantity
	Location  string
	Actor     string
}

// Scan resolves the locator and adds the quantity to the matching count
// line. Repeated scans accumulate. The first touch of a DRAFT session
// moves it to IN_PROGRESS.
func (service *Service) Scan(ctx context.Context, input ScanInput) (CountLine, error) {
	qty := input.Qty
	if qty == 0 {
		qty = 1
	}
	var line CountLine
	operationError := func() error {
		if qty < 0 {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
		}
		variant, err := service.resolveLocator(ctx, input.Locator)
		if err != nil {
			return err
		}
		line, err = service.mutateCountLine(ctx, input.SessionID, variant.VariantID, input.Location, func(current *CountLine) {
			current.CountedQty += qty.Int64()
			current.Method = CountMethodScan
		})
		return err
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationCount,
		SessionID: input.SessionID,
		VariantID: line.VariantID,
		Quantity:  qty.Int64(),
		Error:     operationError,
	})
	if operationError != nil {
		return CountLine{}, operationError
	}
	return line, nil
}

// SetQtyInput describes one keyed-entry overwrite.
type SetQtyInput struct {
	SessionID  string
	VariantID  VariantID
	CountedQty int64
	Location   string
	Actor      string
}

// SetCountedQty overwrites the counted quantity for a variant and
// location. Unlike Scan it does not accumulate; this is the keyed-entry
// path.
func (service *Service) SetCountedQty(ctx context.Context, input SetQtyInput) (CountLine, error) {
	var line CountLine
	operationError := func() error {
		if input.VariantID <= 0 {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidVariantID)
		}
		if input.CountedQty < 0 {
			return fmt.Errorf("%w: counted quantity cannot be negative", ErrInvalidQuantity)
		}
		var err error
		line, err = service.mutateCountLine(ctx, input.SessionID, input.VariantID, input.Location, func(current *CountLine) {
			current.CountedQty = input.CountedQty
			current.Method = CountMethodKeyed
		})
		return err
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationCount,
		SessionID: input.SessionID,
		VariantID: input.VariantID,
		Quantity:  input.CountedQty,
		Error:     operationError,
	})
	if operationError != nil {
		return CountLine{}, operationError
	}
	return line, nil
}

// mutateCountLine runs the shared guard-and-upsert path for scan and
// keyed entry: session must not be finalized, a DRAFT session starts,
// and the line snapshots expected quantity from the ledger on creation.
func (service *Service) mutateCountLine(ctx context.Context, sessionID string, variantID VariantID, location string, mutate func(*CountLine)) (CountLine, error) {
	var result CountLine
	release, err := service.locks.Acquire(ctx, countSessionLockKey(sessionID), service.lockWait)
	if err != nil {
		return CountLine{}, err
	}
	defer release()
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		session, err := txStore.GetCountSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == CountStatusFinalized {
			return fmt.Errorf("%w: no further entries accepted", ErrSessionFinalized)
		}
		if session.Status == CountStatusDraft {
			if err := txStore.UpdateCountSessionStatus(ctx, sessionID, []CountStatus{CountStatusDraft}, CountStatusInProgress, service.nowFn()); err != nil {
				return err
			}
		}
		line, found, err := txStore.GetCountLine(ctx, sessionID, variantID, location)
		if err != nil {
			return err
		}
		if !found {
			stock, err := txStore.GetStockLine(ctx, session.StoreID, variantID)
			if err != nil {
				return err
			}
			expected := stock.OnHand
			line = CountLine{
				LineID:      uuid.NewString(),
				SessionID:   sessionID,
				VariantID:   variantID,
				Location:    location,
				ExpectedQty: &expected,
			}
		}
		mutate(&line)
		line.UpdatedUnixUTC = service.nowFn()
		if err := txStore.SaveCountLine(ctx, line); err != nil {
			return err
		}
		result = line
		return nil
	})
	if err != nil {
		return CountLine{}, err
	}
	return result, nil
}

func (service *Service) resolveLocator(ctx context.Context, locator Locator) (VariantRef, error) {
	if locator.Empty() {
		return VariantRef{}, fmt.Errorf("%w: no locator supplied", ErrUnresolvedLocator)
	}
	if locator.VariantID > 0 {
		return VariantRef{VariantID: locator.VariantID}, nil
	}
	if service.resolver == nil {
		return VariantRef{}, fmt.Errorf("%w: no catalog resolver configured", ErrUnresolvedLocator)
	}
	return service.resolver.ResolveVariant(ctx, locator)
}

// Variance compares every count line against live on-hand at query
// time. Lines for the same variant in different locations merge into
// one comparison.
func (service *Service) Variance(ctx context.Context, sessionID string) (VarianceReport, error) {
	session, err := service.store.GetCountSession(ctx, sessionID)
	if err != nil {
		return VarianceReport{}, err
	}
	lines, err := service.store.ListCountLines(ctx, sessionID)
	if err != nil {
		return VarianceReport{}, err
	}
	counted := groupCountedByVariant(lines)
	report := VarianceReport{SessionID: sessionID, TotalLines: len(counted)}
	for _, variantID := range sortedVariants(counted) {
		stock, err := service.store.GetStockLine(ctx, session.StoreID, variantID)
		if err != nil {
			return VarianceReport{}, err
		}
		variance := counted[variantID] - stock.OnHand
		report.Lines = append(report.Lines, VarianceLine{
			VariantID:   variantID,
			ExpectedQty: stock.OnHand,
			CountedQty:  counted[variantID],
			Variance:    variance,
		})
		if variance != 0 {
			report.NonZeroLines++
		}
		report.NetVariance += variance
	}
	return report, nil
}

// FinalizeCountSession posts the session's variance as one atomic
// reconciliation adjustment and closes the session. The status
// compare-and-swap makes a second finalize fail with ErrInvalidState
// instead of double-posting.
func (service *Service) FinalizeCountSession(ctx context.Context, sessionID string, actor string) (FinalizeSummary, error) {
	var summary FinalizeSummary
	operationError := func() error {
		session, err := service.store.GetCountSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == CountStatusFinalized {
			return fmt.Errorf("%w: session already finalized", ErrInvalidState)
		}
		releaseSession, err := service.locks.Acquire(ctx, countSessionLockKey(sessionID), service.lockWait)
		if err != nil {
			return err
		}
		defer releaseSession()
		// Scans contend on the same session lock, so the line set read
		// here is the set that gets reconciled.
		lines, err := service.store.ListCountLines(ctx, sessionID)
		if err != nil {
			return err
		}
		counted := groupCountedByVariant(lines)
		keys := make([]string, 0, len(counted))
		for variantID := range counted {
			keys = append(keys, LineKey{StoreID: session.StoreID, VariantID: variantID}.String())
		}
		releaseStock, err := service.locks.AcquireAll(ctx, keys, service.lockWait)
		if err != nil {
			return err
		}
		defer releaseStock()
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			now := service.nowFn()
			err := txStore.UpdateCountSessionStatus(ctx, sessionID,
				[]CountStatus{CountStatusDraft, CountStatusInProgress}, CountStatusFinalized, now)
			if err != nil {
				return err
			}
			adjustmentLines := make([]AdjustmentLineInput, 0, len(counted))
			for _, variantID := range sortedVariants(counted) {
				stock, err := txStore.LockStockLine(ctx, session.StoreID, variantID)
				if err != nil {
					return err
				}
				delta := counted[variantID] - stock.OnHand
				if delta == 0 {
					summary.Zero++
					continue
				}
				adjustmentLines = append(adjustmentLines, AdjustmentLineInput{VariantID: variantID, Delta: delta})
				summary.Adjusted += delta
			}
			summary.Created = len(adjustmentLines)
			if len(adjustmentLines) == 0 {
				return nil
			}
			_, err = service.applyAdjustment(ctx, txStore, AdjustmentInput{
				StoreID:    session.StoreID,
				ReasonCode: ReasonCountReconcile,
				Note:       fmt.Sprintf("count %s reconciliation", session.Code),
				Lines:      adjustmentLines,
				Actor:      actor,
				RefType:    RefTypeCountSession,
				RefID:      sessionID,
			})
			return err
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationFinalize,
		SessionID: sessionID,
		Quantity:  summary.Adjusted,
		Error:     operationError,
	})
	if operationError != nil {
		return FinalizeSummary{}, operationError
	}
	return summary, nil
}

func groupCountedByVariant(lines []CountLine) map[VariantID]int64 {
	counted := make(map[VariantID]int64, len(lines))
	for _, line := range lines {
		counted[line.VariantID] += line.CountedQty
	}
	return counted
}

func sortedVariants(counted map[VariantID]int64) []VariantID {
	variants := make([]VariantID, 0, len(counted))
	for variantID := range counted {
		variants = append(variants, variantID)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })
	return variants
}
