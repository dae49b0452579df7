package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kiranmghub/pos-stack-sub004/pkg/inventory"
	"go.uber.org/zap"
)

const (
	actorHeader  = "X-Actor"
	defaultActor = "anonymous"
)

type httpHandler struct {
	logger *zap.Logger
	engine Engine
	cfg    Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func actorFrom(ctx *gin.Context) string {
	actor := ctx.GetHeader(actorHeader)
	if actor == "" {
		return defaultActor
	}
	return actor
}

func errorResponse(code string, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

// respondError translates domain sentinels into HTTP statuses. Anything
// unrecognized is a 500 and gets logged.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, inventory.ErrInvalidStoreID),
		errors.Is(err, inventory.ErrInvalidVariantID),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidChannel),
		errors.Is(err, inventory.ErrInvalidRefType),
		errors.Is(err, inventory.ErrInvalidReasonCode),
		errors.Is(err, inventory.ErrInvalidScope),
		errors.Is(err, inventory.ErrInvalidZoneName),
		errors.Is(err, inventory.ErrEmptyAdjustment):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
	case errors.Is(err, inventory.ErrInvalidDelta):
		ctx.JSON(http.StatusUnprocessableEntity, errorResponse("negative_balance", err.Error()))
	case errors.Is(err, inventory.ErrInsufficientAvailability):
		ctx.JSON(http.StatusConflict, errorResponse("insufficient_availability", err.Error()))
	case errors.Is(err, inventory.ErrReservationExpired):
		ctx.JSON(http.StatusConflict, errorResponse("reservation_expired", err.Error()))
	case errors.Is(err, inventory.ErrSessionFinalized):
		ctx.JSON(http.StatusConflict, errorResponse("session_finalized", err.Error()))
	case errors.Is(err, inventory.ErrConflictingSession):
		ctx.JSON(http.StatusConflict, errorResponse("conflicting_session", err.Error()))
	case errors.Is(err, inventory.ErrInvalidState):
		ctx.JSON(http.StatusConflict, errorResponse("invalid_state", err.Error()))
	case errors.Is(err, inventory.ErrUnknownReservation),
		errors.Is(err, inventory.ErrUnknownSession),
		errors.Is(err, inventory.ErrUnknownStockLine),
		errors.Is(err, inventory.ErrUnresolvedLocator):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, inventory.ErrBusy):
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("busy", err.Error()))
	default:
		handler.logger.Error("request failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "internal error"))
	}
}

func queryInt64(ctx *gin.Context, name string) (int64, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func (handler *httpHandler) lineKeyFromQuery(ctx *gin.Context) (inventory.StoreID, inventory.VariantID, bool) {
	rawStore, ok := queryInt64(ctx, "store_id")
	if !ok {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", "store_id is required"))
		return 0, 0, false
	}
	rawVariant, ok := queryInt64(ctx, "variant_id")
	if !ok {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", "variant_id is required"))
		return 0, 0, false
	}
	storeID, err := inventory.NewStoreID(rawStore)
	if err != nil {
		handler.respondError(ctx, err)
		return 0, 0, false
	}
	variantID, err := inventory.NewVariantID(rawVariant)
	if err != nil {
		handler.respondError(ctx, err)
		return 0, 0, false
	}
	return storeID, variantID, true
}

func (handler *httpHandler) handleAvailability(ctx *gin.Context) {
	storeID, variantID, ok := handler.lineKeyFromQuery(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	availability, err := handler.engine.Availability(requestCtx, storeID, variantID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, availabilityPayload(availability))
}

func (handler *httpHandler) handlePostings(ctx *gin.Context) {
	storeID, variantID, ok := handler.lineKeyFromQuery(ctx)
	if !ok {
		return
	}
	limit := defaultRequestLimit
	if raw, present := queryInt64(ctx, "limit"); present && raw > 0 {
		limit = int(raw)
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	postings, err := handler.engine.Postings(requestCtx, storeID, variantID, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(postings))
	for _, posting := range postings {
		payload = append(payload, postingPayload(posting))
	}
	ctx.JSON(http.StatusOK, gin.H{"postings": payload})
}

type reserveRequest struct {
	StoreID          int64  `json:"store_id"`
	VariantID        int64  `json:"variant_id"`
	Quantity         int64  `json:"quantity"`
	RefType          string `json:"ref_type"`
	RefID            string `json:"ref_id"`
	ExpiresAtUnixUTC int64  `json:"expires_at"`
	Note             string `json:"note"`
}

func (handler *httpHandler) handleReserve(ctx *gin.Context) {
	channel, err := inventory.ParseChannel(ctx.Param("channel"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request reserveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	refType := inventory.RefTypeOther
	if request.RefType != "" {
		refType, err = inventory.ParseRefType(request.RefType)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	reservation, err := handler.engine.Reserve(requestCtx, inventory.ReserveInput{
		StoreID:          inventory.StoreID(request.StoreID),
		VariantID:        inventory.VariantID(request.VariantID),
		Channel:          channel,
		Quantity:         inventory.Quantity(request.Quantity),
		RefType:          refType,
		RefID:            request.RefID,
		ExpiresAtUnixUTC: request.ExpiresAtUnixUTC,
		Note:             request.Note,
		Actor:            actorFrom(ctx),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, reservationPayload(reservation))
}

func (handler *httpHandler) handleGetReservation(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	reservation, err := handler.engine.GetReservation(requestCtx, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reservationPayload(reservation))
}

func (handler *httpHandler) handleListReservations(ctx *gin.Context) {
	filter := inventory.ReservationFilter{}
	if raw, ok := queryInt64(ctx, "store_id"); ok {
		filter.StoreID = inventory.StoreID(raw)
	}
	if raw, ok := queryInt64(ctx, "variant_id"); ok {
		filter.VariantID = inventory.VariantID(raw)
	}
	if raw := ctx.Query("status"); raw != "" {
		status, err := inventory.ParseReservationStatus(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = status
	}
	if raw, ok := queryInt64(ctx, "limit"); ok && raw > 0 {
		filter.Limit = int(raw)
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	reservations, err := handler.engine.ListReservations(requestCtx, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(reservations))
	for _, reservation := range reservations {
		payload = append(payload, reservationPayload(reservation))
	}
	ctx.JSON(http.StatusOK, gin.H{"reservations": payload})
}

func (handler *httpHandler) handleCommitReservation(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	reservation, err := handler.engine.CommitReservation(requestCtx, ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reservationPayload(reservation))
}

func (handler *httpHandler) handleReleaseReservation(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	reservation, err := handler.engine.ReleaseReservation(requestCtx, ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reservationPayload(reservation))
}

func (handler *httpHandler) handleListReasons(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	reasons, err := handler.engine.ListReasons(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(reasons))
	for _, reason := range reasons {
		payload = append(payload, gin.H{"code": reason.Code, "name": reason.Name})
	}
	ctx.JSON(http.StatusOK, gin.H{"reasons": payload})
}

type adjustmentRequest struct {
	StoreID    int64  `json:"store_id"`
	ReasonCode string `json:"reason_code"`
	Note       string `json:"note"`
	Lines      []struct {
		VariantID int64 `json:"variant_id"`
		Delta     int64 `json:"delta"`
	} `json:"lines"`
}

func (handler *httpHandler) handleCreateAdjustment(ctx *gin.Context) {
	var request adjustmentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	lines := make([]inventory.AdjustmentLineInput, 0, len(request.Lines))
	for _, line := range request.Lines {
		lines = append(lines, inventory.AdjustmentLineInput{
			VariantID: inventory.VariantID(line.VariantID),
			Delta:     line.Delta,
		})
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	adjustment, err := handler.engine.CreateAdjustment(requestCtx, inventory.AdjustmentInput{
		StoreID:    inventory.StoreID(request.StoreID),
		ReasonCode: request.ReasonCode,
		Note:       request.Note,
		Lines:      lines,
		Actor:      actorFrom(ctx),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, adjustmentPayload(adjustment))
}

type receiveRequest struct {
	StoreID   int64  `json:"store_id"`
	VariantID int64  `json:"variant_id"`
	Qty       int64  `json:"qty"`
	RefID     string `json:"ref_id"`
}

func (handler *httpHandler) handleReceive(ctx *gin.Context) {
	var request receiveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	posting, err := handler.engine.Receive(requestCtx, inventory.ReceiveInput{
		StoreID:   inventory.StoreID(request.StoreID),
		VariantID: inventory.VariantID(request.VariantID),
		Quantity:  inventory.Quantity(request.Qty),
		RefID:     request.RefID,
		Actor:     actorFrom(ctx),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, postingPayload(posting))
}

func (handler *httpHandler) handleAddInTransit(ctx *gin.Context) {
	var request receiveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	posting, err := handler.engine.AddInTransit(requestCtx,
		inventory.StoreID(request.StoreID),
		inventory.VariantID(request.VariantID),
		inventory.Quantity(request.Qty),
		request.RefID,
		actorFrom(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, postingPayload(posting))
}

type createCountRequest struct {
	StoreID  int64  `json:"store_id"`
	Scope    string `json:"scope"`
	ZoneName string `json:"zone_name"`
	Code     string `json:"code"`
	Note     string `json:"note"`
}

func (handler *httpHandler) handleCreateCount(ctx *gin.Context) {
	var request createCountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	scope, err := inventory.ParseCountScope(request.Scope)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	session, err := handler.engine.CreateCountSession(requestCtx, inventory.CreateCountInput{
		StoreID:  inventory.StoreID(request.StoreID),
		Scope:    scope,
		ZoneName: request.ZoneName,
		Code:     request.Code,
		Note:     request.Note,
		Actor:    actorFrom(ctx),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, countSessionPayload(session))
}

func (handler *httpHandler) handleListCounts(ctx *gin.Context) {
	filter := inventory.CountSessionFilter{}
	if raw, ok := queryInt64(ctx, "store_id"); ok {
		filter.StoreID = inventory.StoreID(raw)
	}
	if raw := ctx.Query("status"); raw != "" {
		status, err := inventory.ParseCountStatus(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = status
	}
	if raw, ok := queryInt64(ctx, "limit"); ok && raw > 0 {
		filter.Limit = int(raw)
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	sessions, err := handler.engine.ListCountSessions(requestCtx, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(sessions))
	for _, session := range sessions {
		payload = append(payload, countSessionPayload(session))
	}
	ctx.JSON(http.StatusOK, gin.H{"sessions": payload})
}

func (handler *httpHandler) handleGetCount(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	session, err := handler.engine.GetCountSession(requestCtx, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, countSessionPayload(session))
}

func (handler *httpHandler) handleDeleteCount(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.engine.DeleteCountSession(requestCtx, ctx.Param("id")); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type scanRequest struct {
	Barcode   string `json:"barcode"`
	SKU       string `json:"sku"`
	VariantID int64  `json:"variant_id"`
	Qty       int64  `json:"qty"`
	Location  string `json:"location"`
}

func (handler *httpHandler) handleScan(ctx *gin.Context) {
	var request scanRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	line, err := handler.engine.Scan(requestCtx, inventory.ScanInput{
		SessionID: ctx.Param("id"),
		Locator: inventory.Locator{
			Barcode:   request.Barcode,
			SKU:       request.SKU,
			VariantID: inventory.VariantID(request.VariantID),
		},
		Qty:      inventory.Quantity(request.Qty),
		Location: request.Location,
		Actor:    actorFrom(ctx),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, countLinePayload(line))
}

type setQtyRequest struct {
	VariantID  int64  `json:"variant_id"`
	CountedQty int64  `json:"counted_qty"`
	Location   string `json:"location"`
}

func (handler *httpHandler) handleSetQty(ctx *gin.Context) {
	var request setQtyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	line, err := handler.engine.SetCountedQty(requestCtx, inventory.SetQtyInput{
		SessionID:  ctx.Param("id"),
		VariantID:  inventory.VariantID(request.VariantID),
		CountedQty: request.CountedQty,
		Location:   request.Location,
		Actor:      actorFrom(ctx),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, countLinePayload(line))
}

func (handler *httpHandler) handleVariance(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	report, err := handler.engine.Variance(requestCtx, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	lines := make([]gin.H, 0, len(report.Lines))
	for _, line := range report.Lines {
		lines = append(lines, gin.H{
			"variant_id":   line.VariantID.Int64(),
			"expected_qty": line.ExpectedQty,
			"counted_qty":  line.CountedQty,
			"variance":     line.Variance,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"session_id":     report.SessionID,
		"lines":          lines,
		"total_lines":    report.TotalLines,
		"non_zero_lines": report.NonZeroLines,
		"net_variance":   report.NetVariance,
	})
}

func (handler *httpHandler) handleFinalizeCount(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	summary, err := handler.engine.FinalizeCountSession(requestCtx, ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"created":  summary.Created,
		"zero":     summary.Zero,
		"adjusted": summary.Adjusted,
	})
}

func availabilityPayload(availability inventory.Availability) gin.H {
	return gin.H{
		"store_id":   availability.StoreID.Int64(),
		"variant_id": availability.VariantID.Int64(),
		"on_hand":    availability.OnHand,
		"reserved":   availability.Reserved,
		"in_transit": availability.InTransit,
		"available":  availability.Available,
	}
}

func postingPayload(posting inventory.LedgerPosting) gin.H {
	return gin.H{
		"posting_id":       posting.PostingID,
		"store_id":         posting.StoreID.Int64(),
		"variant_id":       posting.VariantID.Int64(),
		"delta_on_hand":    posting.DeltaOnHand,
		"delta_reserved":   posting.DeltaReserved,
		"delta_in_transit": posting.DeltaInTransit,
		"reason_code":      posting.ReasonCode,
		"ref_type":         posting.RefType.String(),
		"ref_id":           posting.RefID,
		"balance_after":    posting.BalanceAfter,
		"created_by":       posting.CreatedBy,
		"created_at":       posting.CreatedUnixUTC,
	}
}

func reservationPayload(reservation inventory.Reservation) gin.H {
	return gin.H{
		"reservation_id": reservation.ReservationID,
		"store_id":       reservation.StoreID.Int64(),
		"variant_id":     reservation.VariantID.Int64(),
		"channel":        reservation.Channel.String(),
		"qty":            reservation.Quantity.Int64(),
		"ref_type":       reservation.RefType.String(),
		"ref_id":         reservation.RefID,
		"status":         reservation.Status.String(),
		"expires_at":     reservation.ExpiresAtUnixUTC,
		"note":           reservation.Note,
		"created_by":     reservation.CreatedBy,
		"created_at":     reservation.CreatedUnixUTC,
	}
}

func adjustmentPayload(adjustment inventory.Adjustment) gin.H {
	lines := make([]gin.H, 0, len(adjustment.Lines))
	for _, line := range adjustment.Lines {
		lines = append(lines, gin.H{
			"variant_id":    line.VariantID.Int64(),
			"delta":         line.Delta,
			"balance_after": line.BalanceAfter,
		})
	}
	return gin.H{
		"adjustment_id": adjustment.AdjustmentID,
		"store_id":      adjustment.StoreID.Int64(),
		"reason_code":   adjustment.ReasonCode,
		"note":          adjustment.Note,
		"lines":         lines,
		"created_by":    adjustment.CreatedBy,
		"created_at":    adjustment.CreatedUnixUTC,
	}
}

func countSessionPayload(session inventory.CountSession) gin.H {
	return gin.H{
		"session_id":   session.SessionID,
		"code":         session.Code,
		"store_id":     session.StoreID.Int64(),
		"scope":        session.Scope.String(),
		"zone_name":    session.ZoneName,
		"status":       session.Status.String(),
		"note":         session.Note,
		"created_by":   session.CreatedBy,
		"created_at":   session.CreatedUnixUTC,
		"started_at":   session.StartedUnixUTC,
		"finalized_at": session.FinalizedUnixUTC,
	}
}

func countLinePayload(line inventory.CountLine) gin.H {
	payload := gin.H{
		"line_id":     line.LineID,
		"session_id":  line.SessionID,
		"variant_id":  line.VariantID.Int64(),
		"location":    line.Location,
		"counted_qty": line.CountedQty,
		"method":      line.Method.String(),
		"updated_at":  line.UpdatedUnixUTC,
	}
	if line.ExpectedQty != nil {
		payload["expected_qty"] = *line.ExpectedQty
	}
	return payload
}
