package inventory

const (
	operationPost      = "post"
	operationReserve   = "reserve"
	operationCommit    = "commit"
	operationRelease   = "release"
	operationExpire    = "expire"
	operationAdjust    = "adjust"
	operationReceive   = "receive"
	operationCount     = "count"
	operationFinalize  = "finalize"
	operationAvailable = "availability"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)

// Reason codes written by the engine itself. Manual adjustments carry
// caller-supplied codes from the reason catalog.
const (
	ReasonReservationHold    = "RESERVATION_HOLD"
	ReasonReservationCommit  = "RESERVATION_COMMIT"
	ReasonReservationRelease = "RESERVATION_RELEASE"
	ReasonReservationExpiry  = "RESERVATION_EXPIRY"
	ReasonCountReconcile     = "COUNT_RECONCILIATION"
	ReasonReceiving          = "RECEIVING"
	ReasonInTransitOpen      = "IN_TRANSIT_OPEN"
)

// DefaultReasons seeds the adjustment reason catalog.
func DefaultReasons() []AdjustmentReason {
	return []AdjustmentReason{
		{Code: "MANUAL_CORRECTION", Name: "Manual correction"},
		{Code: "DAMAGE", Name: "Damaged stock"},
		{Code: "SHRINKAGE", Name: "Shrinkage / loss"},
		{Code: "FOUND", Name: "Found stock"},
		{Code: ReasonReceiving, Name: "Purchase order receipt"},
		{Code: ReasonCountReconcile, Name: "Cycle count reconciliation"},
	}
}
