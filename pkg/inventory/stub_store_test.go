package inventory

import (
	"context"
	"fmt"
	"sort"
	"testing"
)

// stubState is the in-memory backing for stubStore. WithTx runs against
// a deep copy and only publishes it on success, mirroring transactional
// rollback.
type stubState struct {
	lines        map[LineKey]StockLine
	postings     []LedgerPosting
	reservations map[string]Reservation
	adjustments  []Adjustment
	reasons      []AdjustmentReason
	sessions     map[string]CountSession
	countLines   map[string]CountLine
}

func newStubState() *stubState {
	return &stubState{
		lines:        make(map[LineKey]StockLine),
		reservations: make(map[string]Reservation),
		sessions:     make(map[string]CountSession),
		countLines:   make(map[string]CountLine),
	}
}

func (state *stubState) clone() *stubState {
	copied := newStubState()
	for key, line := range state.lines {
		copied.lines[key] = line
	}
	copied.postings = append([]LedgerPosting(nil), state.postings...)
	for id, reservation := range state.reservations {
		copied.reservations[id] = reservation
	}
	copied.adjustments = append([]Adjustment(nil), state.adjustments...)
	copied.reasons = append([]AdjustmentReason(nil), state.reasons...)
	for id, session := range state.sessions {
		copied.sessions[id] = session
	}
	for key, line := range state.countLines {
		copied.countLines[key] = line
	}
	return copied
}

type stubStore struct {
	state *stubState
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{state: newStubState()}
}

func countLineKey(sessionID string, variantID VariantID, location string) string {
	return fmt.Sprintf("%s/%d/%s", sessionID, variantID, location)
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	snapshot := store.state.clone()
	txStore := &stubStore{state: snapshot}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	store.state = snapshot
	return nil
}

func (store *stubStore) GetStockLine(ctx context.Context, storeID StoreID, variantID VariantID) (StockLine, error) {
	key := LineKey{StoreID: storeID, VariantID: variantID}
	line, ok := store.state.lines[key]
	if !ok {
		return StockLine{StoreID: storeID, VariantID: variantID}, nil
	}
	return line, nil
}

func (store *stubStore) LockStockLine(ctx context.Context, storeID StoreID, variantID VariantID) (StockLine, error) {
	return store.GetStockLine(ctx, storeID, variantID)
}

func (store *stubStore) SaveStockLine(ctx context.Context, line StockLine) error {
	store.state.lines[line.Key()] = line
	return nil
}

func (store *stubStore) InsertPosting(ctx context.Context, posting LedgerPosting) error {
	store.state.postings = append(store.state.postings, posting)
	return nil
}

func (store *stubStore) ListPostings(ctx context.Context, storeID StoreID, variantID VariantID, limit int) ([]LedgerPosting, error) {
	matched := make([]LedgerPosting, 0)
	for i := len(store.state.postings) - 1; i >= 0 && len(matched) < limit; i-- {
		posting := store.state.postings[i]
		if posting.StoreID == storeID && posting.VariantID == variantID {
			matched = append(matched, posting)
		}
	}
	return matched, nil
}

func (store *stubStore) FoldPostings(ctx context.Context, storeID StoreID, variantID VariantID) (PostingFold, error) {
	fold := PostingFold{}
	for _, posting := range store.state.postings {
		if posting.StoreID != storeID || posting.VariantID != variantID {
			continue
		}
		fold.OnHand += posting.DeltaOnHand
		fold.Reserved += posting.DeltaReserved
		fold.InTransit += posting.DeltaInTransit
		fold.Postings++
	}
	return fold, nil
}

func (store *stubStore) CreateReservation(ctx context.Context, reservation Reservation) error {
	if _, exists := store.state.reservations[reservation.ReservationID]; exists {
		return ErrInvalidState
	}
	store.state.reservations[reservation.ReservationID] = reservation
	return nil
}

func (store *stubStore) GetReservation(ctx context.Context, reservationID string) (Reservation, error) {
	reservation, ok := store.state.reservations[reservationID]
	if !ok {
		return Reservation{}, ErrUnknownReservation
	}
	return reservation, nil
}

func (store *stubStore) UpdateReservationStatus(ctx context.Context, reservationID string, from ReservationStatus, to ReservationStatus) error {
	reservation, ok := store.state.reservations[reservationID]
	if !ok {
		return ErrUnknownReservation
	}
	if reservation.Status != from {
		return ErrInvalidState
	}
	reservation.Status = to
	store.state.reservations[reservationID] = reservation
	return nil
}

func (store *stubStore) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	matched := make([]Reservation, 0)
	for _, reservation := range store.state.reservations {
		if filter.StoreID > 0 && reservation.StoreID != filter.StoreID {
			continue
		}
		if filter.VariantID > 0 && reservation.VariantID != filter.VariantID {
			continue
		}
		if filter.Status != "" && reservation.Status != filter.Status {
			continue
		}
		matched = append(matched, reservation)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ReservationID < matched[j].ReservationID })
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (store *stubStore) ListExpiredReservations(ctx context.Context, nowUnixUTC int64, limit int) ([]Reservation, error) {
	matched := make([]Reservation, 0)
	for _, reservation := range store.state.reservations {
		if reservation.Status != ReservationStatusActive {
			continue
		}
		if !reservation.ExpiredAt(nowUnixUTC) {
			continue
		}
		matched = append(matched, reservation)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ReservationID < matched[j].ReservationID })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *stubStore) CreateAdjustment(ctx context.Context, adjustment Adjustment) error {
	store.state.adjustments = append(store.state.adjustments, adjustment)
	return nil
}

func (store *stubStore) ListReasons(ctx context.Context) ([]AdjustmentReason, error) {
	return append([]AdjustmentReason(nil), store.state.reasons...), nil
}

func (store *stubStore) CreateCountSession(ctx context.Context, session CountSession) error {
	if _, exists := store.state.sessions[session.SessionID]; exists {
		return ErrConflictingSession
	}
	store.state.sessions[session.SessionID] = session
	return nil
}

func (store *stubStore) GetCountSession(ctx context.Context, sessionID string) (CountSession, error) {
	session, ok := store.state.sessions[sessionID]
	if !ok {
		return CountSession{}, ErrUnknownSession
	}
	return session, nil
}

func (store *stubStore) FindOpenFullStoreSession(ctx context.Context, storeID StoreID) (CountSession, bool, error) {
	for _, session := range store.state.sessions {
		if session.StoreID != storeID || session.Scope != CountScopeFullStore {
			continue
		}
		if session.Status == CountStatusFinalized {
			continue
		}
		return session, true, nil
	}
	return CountSession{}, false, nil
}

func (store *stubStore) UpdateCountSessionStatus(ctx context.Context, sessionID string, from []CountStatus, to CountStatus, atUnixUTC int64) error {
	session, ok := store.state.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	allowed := false
	for _, status := range from {
		if session.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidState
	}
	session.Status = to
	switch to {
	case CountStatusInProgress:
		session.StartedUnixUTC = atUnixUTC
	case CountStatusFinalized:
		session.FinalizedUnixUTC = atUnixUTC
	}
	store.state.sessions[sessionID] = session
	return nil
}

func (store *stubStore) DeleteCountSession(ctx context.Context, sessionID string) error {
	delete(store.state.sessions, sessionID)
	for key, line := range store.state.countLines {
		if line.SessionID == sessionID {
			delete(store.state.countLines, key)
		}
	}
	return nil
}

func (store *stubStore) ListCountSessions(ctx context.Context, filter CountSessionFilter) ([]CountSession, error) {
	matched := make([]CountSession, 0)
	for _, session := range store.state.sessions {
		if filter.StoreID > 0 && session.StoreID != filter.StoreID {
			continue
		}
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		matched = append(matched, session)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].SessionID < matched[j].SessionID })
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (store *stubStore) GetCountLine(ctx context.Context, sessionID string, variantID VariantID, location string) (CountLine, bool, error) {
	line, ok := store.state.countLines[countLineKey(sessionID, variantID, location)]
	return line, ok, nil
}

func (store *stubStore) SaveCountLine(ctx context.Context, line CountLine) error {
	store.state.countLines[countLineKey(line.SessionID, line.VariantID, line.Location)] = line
	return nil
}

func (store *stubStore) ListCountLines(ctx context.Context, sessionID string) ([]CountLine, error) {
	matched := make([]CountLine, 0)
	for _, line := range store.state.countLines {
		if line.SessionID == sessionID {
			matched = append(matched, line)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].LineID < matched[j].LineID })
	return matched, nil
}

// stubResolver resolves barcodes against a fixed map.
type stubResolver struct {
	byBarcode map[string]VariantID
}

func (resolver *stubResolver) ResolveVariant(ctx context.Context, locator Locator) (VariantRef, error) {
	if locator.VariantID > 0 {
		return VariantRef{VariantID: locator.VariantID}, nil
	}
	variantID, ok := resolver.byBarcode[locator.Barcode]
	if !ok {
		return VariantRef{}, ErrUnresolvedLocator
	}
	return VariantRef{VariantID: variantID, Barcode: locator.Barcode}, nil
}

// fakeClock is a mutable test clock.
type fakeClock struct {
	now int64
}

func (clock *fakeClock) Now() int64 {
	return clock.now
}

func mustNewService(test *testing.T, store Store, clock *fakeClock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, clock.Now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustSeedOnHand(test *testing.T, service *Service, storeID StoreID, variantID VariantID, qty int64) {
	test.Helper()
	_, err := service.Post(context.Background(), PostInput{
		StoreID:     storeID,
		VariantID:   variantID,
		DeltaOnHand: qty,
		ReasonCode:  ReasonReceiving,
		RefType:     RefTypePurchaseOrder,
		RefID:       "seed",
		Actor:       "seeder",
	})
	if err != nil {
		test.Fatalf("seed stock: %v", err)
	}
}

func mustStockLine(test *testing.T, store *stubStore, storeID StoreID, variantID VariantID) StockLine {
	test.Helper()
	line, err := store.GetStockLine(context.Background(), storeID, variantID)
	if err != nil {
		test.Fatalf("stock line: %v", err)
	}
	return line
}
