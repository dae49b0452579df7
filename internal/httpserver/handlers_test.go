package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranmghub/pos-stack-sub004/pkg/inventory"
	"go.uber.org/zap"
)

// stubEngine returns canned answers and records the last inputs it saw.
type stubEngine struct {
	availability inventory.Availability
	reservation  inventory.Reservation
	session      inventory.CountSession
	line         inventory.CountLine
	summary      inventory.FinalizeSummary
	err          error

	lastReserve inventory.ReserveInput
	lastAdjust  inventory.AdjustmentInput
	lastScan    inventory.ScanInput
	lastActor   string
}

func (engine *stubEngine) Availability(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID) (inventory.Availability, error) {
	if engine.err != nil {
		return inventory.Availability{}, engine.err
	}
	return engine.availability, nil
}

func (engine *stubEngine) Postings(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID, limit int) ([]inventory.LedgerPosting, error) {
	return nil, engine.err
}

func (engine *stubEngine) Reserve(ctx context.Context, input inventory.ReserveInput) (inventory.Reservation, error) {
	engine.lastReserve = input
	if engine.err != nil {
		return inventory.Reservation{}, engine.err
	}
	return engine.reservation, nil
}

func (engine *stubEngine) CommitReservation(ctx context.Context, reservationID string, actor string) (inventory.Reservation, error) {
	engine.lastActor = actor
	if engine.err != nil {
		return inventory.Reservation{}, engine.err
	}
	return engine.reservation, nil
}

func (engine *stubEngine) ReleaseReservation(ctx context.Context, reservationID string, actor string) (inventory.Reservation, error) {
	engine.lastActor = actor
	if engine.err != nil {
		return inventory.Reservation{}, engine.err
	}
	return engine.reservation, nil
}

func (engine *stubEngine) GetReservation(ctx context.Context, reservationID string) (inventory.Reservation, error) {
	if engine.err != nil {
		return inventory.Reservation{}, engine.err
	}
	return engine.reservation, nil
}

func (engine *stubEngine) ListReservations(ctx context.Context, filter inventory.ReservationFilter) ([]inventory.Reservation, error) {
	return []inventory.Reservation{engine.reservation}, engine.err
}

func (engine *stubEngine) CreateAdjustment(ctx context.Context, input inventory.AdjustmentInput) (inventory.Adjustment, error) {
	engine.lastAdjust = input
	if engine.err != nil {
		return inventory.Adjustment{}, engine.err
	}
	return inventory.Adjustment{AdjustmentID: "adj-1", StoreID: input.StoreID, ReasonCode: input.ReasonCode}, nil
}

func (engine *stubEngine) Receive(ctx context.Context, input inventory.ReceiveInput) (inventory.LedgerPosting, error) {
	return inventory.LedgerPosting{}, engine.err
}

func (engine *stubEngine) AddInTransit(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID, quantity inventory.Quantity, refID string, actor string) (inventory.LedgerPosting, error) {
	return inventory.LedgerPosting{}, engine.err
}

func (engine *stubEngine) ListReasons(ctx context.Context) ([]inventory.AdjustmentReason, error) {
	return inventory.DefaultReasons(), engine.err
}

func (engine *stubEngine) CreateCountSession(ctx context.Context, input inventory.CreateCountInput) (inventory.CountSession, error) {
	if engine.err != nil {
		return inventory.CountSession{}, engine.err
	}
	return engine.session, nil
}

func (engine *stubEngine) GetCountSession(ctx context.Context, sessionID string) (inventory.CountSession, error) {
	if engine.err != nil {
		return inventory.CountSession{}, engine.err
	}
	return engine.session, nil
}

func (engine *stubEngine) ListCountSessions(ctx context.Context, filter inventory.CountSessionFilter) ([]inventory.CountSession, error) {
	return []inventory.CountSession{engine.session}, engine.err
}

func (engine *stubEngine) DeleteCountSession(ctx context.Context, sessionID string) error {
	return engine.err
}

func (engine *stubEngine) Scan(ctx context.Context, input inventory.ScanInput) (inventory.CountLine, error) {
	engine.lastScan = input
	if engine.err != nil {
		return inventory.CountLine{}, engine.err
	}
	return engine.line, nil
}

func (engine *stubEngine) SetCountedQty(ctx context.Context, input inventory.SetQtyInput) (inventory.CountLine, error) {
	if engine.err != nil {
		return inventory.CountLine{}, engine.err
	}
	return engine.line, nil
}

func (engine *stubEngine) Variance(ctx context.Context, sessionID string) (inventory.VarianceReport, error) {
	if engine.err != nil {
		return inventory.VarianceReport{}, engine.err
	}
	return inventory.VarianceReport{SessionID: sessionID}, nil
}

func (engine *stubEngine) FinalizeCountSession(ctx context.Context, sessionID string, actor string) (inventory.FinalizeSummary, error) {
	engine.lastActor = actor
	if engine.err != nil {
		return inventory.FinalizeSummary{}, engine.err
	}
	return engine.summary, nil
}

func startTestServer(t *testing.T, engine *stubEngine) *httptest.Server {
	t.Helper()
	cfg := Config{
		ListenAddr:     ":0",
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 2 * time.Second,
	}
	handler := &httpHandler{
		logger: zap.NewNop(),
		engine: engine,
		cfg:    cfg,
	}
	server := httptest.NewServer(setupRouter(cfg, handler))
	t.Cleanup(server.Close)
	return server
}

func execJSON(t *testing.T, server *httptest.Server, method string, path string, body any, actor string) (*http.Response, map[string]any) {
	t.Helper()
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, server.URL+path, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if actor != "" {
		request.Header.Set("X-Actor", actor)
	}
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	t.Cleanup(func() { _ = response.Body.Close() })
	decoded := map[string]any{}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil && err != io.EOF {
		t.Fatalf("decode response: %v", err)
	}
	return response, decoded
}

func TestHealthz(t *testing.T) {
	server := startTestServer(t, &stubEngine{})
	response, body := execJSON(t, server, http.MethodGet, "/healthz", nil, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	engine := &stubEngine{availability: inventory.Availability{
		StoreID: 1, VariantID: 10, OnHand: 20, Reserved: 8, Available: 12,
	}}
	server := startTestServer(t, engine)

	response, body := execJSON(t, server, http.MethodGet, "/api/v1/availability?store_id=1&variant_id=10", nil, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	if body["available"] != float64(12) {
		t.Fatalf("expected available 12, got %v", body["available"])
	}
}

func TestAvailabilityRequiresLineKey(t *testing.T) {
	server := startTestServer(t, &stubEngine{})
	response, _ := execJSON(t, server, http.MethodGet, "/api/v1/availability?store_id=1", nil, "")
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

func TestReserveEndpointPassesChannelAndActor(t *testing.T) {
	engine := &stubEngine{reservation: inventory.Reservation{
		ReservationID: "res-1",
		Status:        inventory.ReservationStatusActive,
		Channel:       inventory.ChannelWeb,
	}}
	server := startTestServer(t, engine)

	response, body := execJSON(t, server, http.MethodPost, "/api/v1/channels/web/reserve", map[string]any{
		"store_id":   1,
		"variant_id": 10,
		"quantity":   3,
		"ref_type":   "WEB_ORDER",
		"ref_id":     "ord-1",
		"expires_at": 1900,
	}, "webstore")
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", response.StatusCode)
	}
	if body["reservation_id"] != "res-1" {
		t.Fatalf("unexpected body: %v", body)
	}
	if engine.lastReserve.Channel != inventory.ChannelWeb {
		t.Fatalf("expected WEB channel, got %s", engine.lastReserve.Channel)
	}
	if engine.lastReserve.Quantity != 3 {
		t.Fatalf("quantity field must bind, got %d", engine.lastReserve.Quantity)
	}
	if engine.lastReserve.ExpiresAtUnixUTC != 1900 {
		t.Fatalf("expires_at field must bind, got %d", engine.lastReserve.ExpiresAtUnixUTC)
	}
	if engine.lastReserve.Actor != "webstore" {
		t.Fatalf("expected actor from header, got %q", engine.lastReserve.Actor)
	}
}

func TestReserveRejectsUnknownChannel(t *testing.T) {
	server := startTestServer(t, &stubEngine{})
	response, body := execJSON(t, server, http.MethodPost, "/api/v1/channels/phone/reserve", map[string]any{
		"store_id": 1, "variant_id": 10, "quantity": 1,
	}, "")
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
	errorBody, _ := body["error"].(map[string]any)
	if errorBody["code"] != "invalid_argument" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestInsufficientAvailabilityMapsToConflict(t *testing.T) {
	engine := &stubEngine{err: inventory.ErrInsufficientAvailability}
	server := startTestServer(t, engine)

	response, body := execJSON(t, server, http.MethodPost, "/api/v1/channels/web/reserve", map[string]any{
		"store_id": 1, "variant_id": 10, "quantity": 99, "ref_type": "WEB_ORDER",
	}, "")
	if response.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", response.StatusCode)
	}
	errorBody, _ := body["error"].(map[string]any)
	if errorBody["code"] != "insufficient_availability" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestUnknownReservationMapsToNotFound(t *testing.T) {
	engine := &stubEngine{err: inventory.ErrUnknownReservation}
	server := startTestServer(t, engine)

	response, _ := execJSON(t, server, http.MethodPost, "/api/v1/reservations/missing/commit", nil, "")
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", response.StatusCode)
	}
}

func TestBusyMapsToServiceUnavailable(t *testing.T) {
	engine := &stubEngine{err: inventory.ErrBusy}
	server := startTestServer(t, engine)

	response, _ := execJSON(t, server, http.MethodPost, "/api/v1/reservations/res-1/release", nil, "")
	if response.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", response.StatusCode)
	}
}

func TestAdjustmentEndpoint(t *testing.T) {
	engine := &stubEngine{}
	server := startTestServer(t, engine)

	response, body := execJSON(t, server, http.MethodPost, "/api/v1/adjustments", map[string]any{
		"store_id":    1,
		"reason_code": "DAMAGE",
		"lines": []map[string]any{
			{"variant_id": 10, "delta": -4},
			{"variant_id": 11, "delta": 2},
		},
	}, "manager")
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", response.StatusCode)
	}
	if body["adjustment_id"] != "adj-1" {
		t.Fatalf("unexpected body: %v", body)
	}
	if len(engine.lastAdjust.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(engine.lastAdjust.Lines))
	}
	if engine.lastAdjust.Actor != "manager" {
		t.Fatalf("expected actor manager, got %q", engine.lastAdjust.Actor)
	}
}

func TestScanEndpoint(t *testing.T) {
	engine := &stubEngine{line: inventory.CountLine{LineID: "line-1", SessionID: "sess-1", VariantID: 10, CountedQty: 4}}
	server := startTestServer(t, engine)

	response, body := execJSON(t, server, http.MethodPost, "/api/v1/counts/sess-1/scan", map[string]any{
		"barcode": "888001",
		"qty":     2,
	}, "counter")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	if body["counted_qty"] != float64(4) {
		t.Fatalf("unexpected body: %v", body)
	}
	if engine.lastScan.SessionID != "sess-1" {
		t.Fatalf("expected session from path, got %q", engine.lastScan.SessionID)
	}
	if engine.lastScan.Locator.Barcode != "888001" {
		t.Fatalf("expected barcode locator, got %+v", engine.lastScan.Locator)
	}
}

func TestSessionFinalizedMapsToConflict(t *testing.T) {
	engine := &stubEngine{err: inventory.ErrSessionFinalized}
	server := startTestServer(t, engine)

	response, body := execJSON(t, server, http.MethodPost, "/api/v1/counts/sess-1/scan", map[string]any{
		"variant_id": 10,
	}, "")
	if response.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", response.StatusCode)
	}
	errorBody, _ := body["error"].(map[string]any)
	if errorBody["code"] != "session_finalized" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestFinalizeEndpointReturnsSummary(t *testing.T) {
	engine := &stubEngine{summary: inventory.FinalizeSummary{Created: 2, Zero: 1, Adjusted: -3}}
	server := startTestServer(t, engine)

	response, body := execJSON(t, server, http.MethodPost, "/api/v1/counts/sess-1/finalize", nil, "manager")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	if body["created"] != float64(2) || body["zero"] != float64(1) || body["adjusted"] != float64(-3) {
		t.Fatalf("unexpected summary body: %v", body)
	}
	if engine.lastActor != "manager" {
		t.Fatalf("expected actor manager, got %q", engine.lastActor)
	}
}

func TestDeleteFinalizedCountMapsToConflict(t *testing.T) {
	engine := &stubEngine{err: inventory.ErrInvalidState}
	server := startTestServer(t, engine)

	request, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/counts/sess-1", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", response.StatusCode)
	}
}

func TestReasonsEndpoint(t *testing.T) {
	server := startTestServer(t, &stubEngine{})
	response, body := execJSON(t, server, http.MethodGet, "/api/v1/reasons", nil, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	reasons, _ := body["reasons"].([]any)
	if len(reasons) != len(inventory.DefaultReasons()) {
		t.Fatalf("expected %d reasons, got %d", len(inventory.DefaultReasons()), len(reasons))
	}
}
