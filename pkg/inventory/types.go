package inventory

import (
	"context"
	"fmt"
	"strings"
)

// StoreID identifies a physical store location.
type StoreID int64

// VariantID identifies a product variant in the catalog.
type VariantID int64

// Quantity is a strictly positive unit count.
type Quantity int64

// NewStoreID validates a store identifier.
func NewStoreID(raw int64) (StoreID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidStoreID)
	}
	return StoreID(raw), nil
}

// Int64 returns the raw identifier.
func (id StoreID) Int64() int64 {
	return int64(id)
}

// NewVariantID validates a variant identifier.
func NewVariantID(raw int64) (VariantID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidVariantID)
	}
	return VariantID(raw), nil
}

// Int64 returns the raw identifier.
func (id VariantID) Int64() int64 {
	return int64(id)
}

// NewQuantity validates a unit count and ensures it is strictly positive.
func NewQuantity(raw int64) (Quantity, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	return Quantity(raw), nil
}

// Int64 returns the raw count.
func (quantity Quantity) Int64() int64 {
	return int64(quantity)
}

// LineKey is the serialization key for a stock line.
type LineKey struct {
	StoreID   StoreID
	VariantID VariantID
}

// String renders the key for lock maps and logs.
func (key LineKey) String() string {
	return fmt.Sprintf("stock/%d/%d", key.StoreID, key.VariantID)
}

// Channel enumerates the sales channels that place reservations.
type Channel string

const (
	ChannelPOS         Channel = "POS"
	ChannelWeb         Channel = "WEB"
	ChannelMarketplace Channel = "MARKETPLACE"
	ChannelOther       Channel = "OTHER"
)

// ParseChannel validates and normalizes a channel name.
func ParseChannel(raw string) (Channel, error) {
	switch Channel(strings.ToUpper(strings.TrimSpace(raw))) {
	case ChannelPOS:
		return ChannelPOS, nil
	case ChannelWeb:
		return ChannelWeb, nil
	case ChannelMarketplace:
		return ChannelMarketplace, nil
	case ChannelOther:
		return ChannelOther, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChannel, raw)
}

// String returns the normalized channel name.
func (channel Channel) String() string {
	return string(channel)
}

// RefType enumerates what a reservation or posting refers back to.
type RefType string

const (
	RefTypePOSCart          RefType = "POS_CART"
	RefTypeWebOrder         RefType = "WEB_ORDER"
	RefTypeMarketplaceOrder RefType = "MARKETPLACE_ORDER"
	RefTypeReservation      RefType = "RESERVATION"
	RefTypeAdjustment       RefType = "ADJUSTMENT"
	RefTypeCountSession     RefType = "COUNT_SESSION"
	RefTypePurchaseOrder    RefType = "PURCHASE_ORDER"
	RefTypeOther            RefType = "OTHER"
)

// ParseRefType validates and normalizes a reference type.
func ParseRefType(raw string) (RefType, error) {
	switch RefType(strings.ToUpper(strings.TrimSpace(raw))) {
	case RefTypePOSCart:
		return RefTypePOSCart, nil
	case RefTypeWebOrder:
		return RefTypeWebOrder, nil
	case RefTypeMarketplaceOrder:
		return RefTypeMarketplaceOrder, nil
	case RefTypeReservation:
		return RefTypeReservation, nil
	case RefTypeAdjustment:
		return RefTypeAdjustment, nil
	case RefTypeCountSession:
		return RefTypeCountSession, nil
	case RefTypePurchaseOrder:
		return RefTypePurchaseOrder, nil
	case RefTypeOther:
		return RefTypeOther, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRefType, raw)
}

// String returns the normalized reference type.
func (refType RefType) String() string {
	return string(refType)
}

// ReservationStatus defines the reservation lifecycle.
// ACTIVE is the only state that permits transitions; the rest are terminal.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusCommitted ReservationStatus = "COMMITTED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

// ParseReservationStatus validates a stored reservation status.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	switch ReservationStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case ReservationStatusActive:
		return ReservationStatusActive, nil
	case ReservationStatusCommitted:
		return ReservationStatusCommitted, nil
	case ReservationStatusReleased:
		return ReservationStatusReleased, nil
	case ReservationStatusExpired:
		return ReservationStatusExpired, nil
	}
	return "", fmt.Errorf("%w: unknown reservation status %q", ErrInvalidState, raw)
}

// String returns the normalized status.
func (status ReservationStatus) String() string {
	return string(status)
}

// Terminal reports whether the status permits no further transitions.
func (status ReservationStatus) Terminal() bool {
	return status != ReservationStatusActive
}

// CountScope defines how much of a store a count session covers.
type CountScope string

const (
	CountScopeFullStore CountScope = "FULL_STORE"
	CountScopeZone      CountScope = "ZONE"
)

// ParseCountScope validates a count scope.
func ParseCountScope(raw string) (CountScope, error) {
	switch CountScope(strings.ToUpper(strings.TrimSpace(raw))) {
	case CountScopeFullStore:
		return CountScopeFullStore, nil
	case CountScopeZone:
		return CountScopeZone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, raw)
}

// String returns the normalized scope.
func (scope CountScope) String() string {
	return string(scope)
}

// CountStatus defines the count session lifecycle.
type CountStatus string

const (
	CountStatusDraft      CountStatus = "DRAFT"
	CountStatusInProgress CountStatus = "IN_PROGRESS"
	CountStatusFinalized  CountStatus = "FINALIZED"
)

// ParseCountStatus validates a stored count session status.
func ParseCountStatus(raw string) (CountStatus, error) {
	switch CountStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case CountStatusDraft:
		return CountStatusDraft, nil
	case CountStatusInProgress:
		return CountStatusInProgress, nil
	case CountStatusFinalized:
		return CountStatusFinalized, nil
	}
	return "", fmt.Errorf("%w: unknown count status %q", ErrInvalidState, raw)
}

// String returns the normalized status.
func (status CountStatus) String() string {
	return string(status)
}

// CountMethod records how a count line quantity was produced.
type CountMethod string

const (
	CountMethodScan  CountMethod = "SCAN"
	CountMethodKeyed CountMethod = "KEYED"
)

// String returns the normalized method.
func (method CountMethod) String() string {
	return string(method)
}

// StockLine is the derived quantity aggregate for one store and variant.
// It is a cache over the posting log and must always equal the fold of
// postings for its key.
type StockLine struct {
	StoreID   StoreID
	VariantID VariantID
	OnHand    int64
	Reserved  int64
	InTransit int64
}

// Key returns the serialization key for the line.
func (line StockLine) Key() LineKey {
	return LineKey{StoreID: line.StoreID, VariantID: line.VariantID}
}

// Availability is the read view over a stock line.
// Available may be negative; that is the backorder signal.
type Availability struct {
	StoreID   StoreID
	VariantID VariantID
	OnHand    int64
	Reserved  int64
	InTransit int64
	Available int64
}

// LedgerPosting is one immutable, audited mutation to a stock line.
type LedgerPosting struct {
	PostingID      string
	StoreID        StoreID
	VariantID      VariantID
	DeltaOnHand    int64
	DeltaReserved  int64
	DeltaInTransit int64
	ReasonCode     string
	RefType        RefType
	RefID          string
	BalanceAfter   int64
	MetadataJSON   string
	CreatedBy      string
	CreatedUnixUTC int64
}

// Reservation is a per-channel hold against available stock.
type Reservation struct {
	ReservationID    string
	StoreID          StoreID
	VariantID        VariantID
	Channel          Channel
	Quantity         Quantity
	RefType          RefType
	RefID            string
	Status           ReservationStatus
	ExpiresAtUnixUTC int64
	Note             string
	CreatedBy        string
	CreatedUnixUTC   int64
}

// ExpiredAt reports whether the reservation is past its expiry at the
// supplied instant. Reservations without an expiry never expire.
func (reservation Reservation) ExpiredAt(nowUnixUTC int64) bool {
	return reservation.ExpiresAtUnixUTC != 0 && reservation.ExpiresAtUnixUTC < nowUnixUTC
}

// AdjustmentReason is a catalog entry for adjustment reason codes.
type AdjustmentReason struct {
	Code string
	Name string
}

// AdjustmentLine is one signed correction within an adjustment.
type AdjustmentLine struct {
	VariantID    VariantID
	Delta        int64
	BalanceAfter int64
}

// Adjustment groups the ledger postings created by a single user action.
type Adjustment struct {
	AdjustmentID   string
	StoreID        StoreID
	ReasonCode     string
	Note           string
	Lines          []AdjustmentLine
	CreatedBy      string
	CreatedUnixUTC int64
}

// CountSession is the lifecycle record for one physical count.
type CountSession struct {
	SessionID        string
	Code             string
	StoreID          StoreID
	Scope            CountScope
	ZoneName         string
	Status           CountStatus
	Note             string
	CreatedBy        string
	CreatedUnixUTC   int64
	StartedUnixUTC   int64
	FinalizedUnixUTC int64
}

// CountLine accumulates counted quantity for one variant and location
// within a session. ExpectedQty is nil until the first scan or keyed
// entry snapshots on-hand from the ledger.
type CountLine struct {
	LineID         string
	SessionID      string
	VariantID      VariantID
	Location       string
	ExpectedQty    *int64
	CountedQty     int64
	Method         CountMethod
	UpdatedUnixUTC int64
}

// VarianceLine is the per-variant comparison between counted and
// expected quantity, expected being live on-hand at query time.
type VarianceLine struct {
	VariantID   VariantID
	ExpectedQty int64
	CountedQty  int64
	Variance    int64
}

// VarianceReport aggregates a session's variance preview. TotalLines
// counts the merged per-variant comparisons, matching len(Lines).
type VarianceReport struct {
	SessionID    string
	Lines        []VarianceLine
	TotalLines   int
	NonZeroLines int
	NetVariance  int64
}

// FinalizeSummary reports what finalizing a count session produced:
// Created adjustment lines, Zero variance lines skipped, and the net
// Adjusted quantity posted.
type FinalizeSummary struct {
	Created  int
	Zero     int
	Adjusted int64
}

// Locator identifies a variant by one of barcode, SKU, or variant id.
type Locator struct {
	Barcode   string
	SKU       string
	VariantID VariantID
}

// Empty reports whether no locator field is set.
func (locator Locator) Empty() bool {
	return locator.Barcode == "" && locator.SKU == "" && locator.VariantID == 0
}

// VariantRef is the catalog's answer to a locator.
type VariantRef struct {
	VariantID VariantID
	SKU       string
	Barcode   string
	Name      string
}

// VariantResolver resolves scan locators against the product catalog.
// The catalog itself is an external collaborator of the engine.
type VariantResolver interface {
	ResolveVariant(ctx context.Context, locator Locator) (VariantRef, error)
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	StoreID   StoreID
	VariantID VariantID
	Status    ReservationStatus
	Limit     int
}

// CountSessionFilter narrows count session listings.
type CountSessionFilter struct {
	StoreID StoreID
	Status  CountStatus
	Limit   int
}

// PostingFold is the sum of all posting deltas for one key.
type PostingFold struct {
	OnHand    int64
	Reserved  int64
	InTransit int64
	Postings  int
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetStockLine(ctx context.Context, storeID StoreID, variantID VariantID) (StockLine, error)
	LockStockLine(ctx context.Context, storeID StoreID, variantID VariantID) (StockLine, error)
	SaveStockLine(ctx context.Context, line StockLine) error
	InsertPosting(ctx context.Context, posting LedgerPosting) error
	ListPostings(ctx context.Context, storeID StoreID, variantID VariantID, limit int) ([]LedgerPosting, error)
	FoldPostings(ctx context.Context, storeID StoreID, variantID VariantID) (PostingFold, error)

	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, reservationID string) (Reservation, error)
	UpdateReservationStatus(ctx context.Context, reservationID string, from ReservationStatus, to ReservationStatus) error
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	ListExpiredReservations(ctx context.Context, nowUnixUTC int64, limit int) ([]Reservation, error)

	CreateAdjustment(ctx context.Context, adjustment Adjustment) error
	ListReasons(ctx context.Context) ([]AdjustmentReason, error)

	CreateCountSession(ctx context.Context, session CountSession) error
	GetCountSession(ctx context.Context, sessionID string) (CountSession, error)
	FindOpenFullStoreSession(ctx context.Context, storeID StoreID) (CountSession, bool, error)
	UpdateCountSessionStatus(ctx context.Context, sessionID string, from []CountStatus, to CountStatus, atUnixUTC int64) error
	DeleteCountSession(ctx context.Context, sessionID string) error
	ListCountSessions(ctx context.Context, filter CountSessionFilter) ([]CountSession, error)

	GetCountLine(ctx context.Context, sessionID string, variantID VariantID, location string) (CountLine, bool, error)
	SaveCountLine(ctx context.Context, line CountLine) error
	ListCountLines(ctx context.Context, sessionID string) ([]CountLine, error)
}
