package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/internal/usecase"
	xhttp "TradeSentinel/pkg/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type stubConn struct{ state models.ConnectionState }

func (s stubConn) State() models.ConnectionState { return s.state }
func (s stubConn) Failures() int                 { return 2 }

type stubScanner struct {
	gotLimit int
	gotInst  string
}

func (s *stubScanner) LastScan() usecase.ScanSummary {
	return usecase.ScanSummary{CycleID: "c1", Scanned: 7, Signals: 1}
}

func (s *stubScanner) RecentSignals(limit int, instrument string) []models.Signal {
	s.gotLimit, s.gotInst = limit, instrument
	return []models.Signal{{ID: "s1", Instrument: "EURUSD-OTC", Direction: models.DirectionPut}}
}

type stubTrades struct{ gotLimit int }

func (s *stubTrades) InFlight() int { return 3 }
func (s *stubTrades) RecentOutcomes(limit int) []models.TradeOutcome {
	s.gotLimit = limit
	return nil
}

type stubBot struct{}

func (stubBot) Running() bool        { return true }
func (stubBot) Cycles() int64        { return 12 }
func (stubBot) StartedAt() time.Time { return time.Unix(1_700_000_000, 0) }

func newTestServer(t *testing.T, state models.ConnectionState) (*echo.Echo, *stubScanner, *stubTrades) {
	t.Helper()
	sc, tr := &stubScanner{}, &stubTrades{}
	h := NewStatusEchoHandler(nil, stubConn{state: state}, sc, tr, stubBot{}, StatusInfo{
		Service:     "tradesentinel",
		Environment: "test",
		AccountMode: "PRACTICE",
		Debug:       map[string]interface{}{"telegram_set": true, "broker_password": "***"},
	})
	reg := prometheus.NewRegistry()
	srv := xhttp.NewServer(h, nil, xhttp.WithMetrics("/metrics", reg, reg))
	return srv.Echo(), sc, tr
}

func do(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestHomeAndPing(t *testing.T) {
	e, _, _ := newTestServer(t, models.StateConnected)

	rec := do(e, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("/ code=%d", rec.Code)
	}
	m := decode(t, rec)
	if m["status"] != "online" || m["environment"] != "test" {
		t.Fatalf("/ body=%v", m)
	}

	if m := decode(t, do(e, "/ping")); m["status"] != "pong" {
		t.Fatalf("/ping body=%v", m)
	}
}

func TestDebugShowsMaskedFlags(t *testing.T) {
	e, _, _ := newTestServer(t, models.StateConnected)
	m := decode(t, do(e, "/debug"))
	if m["telegram_set"] != true || m["broker_password"] != "***" {
		t.Fatalf("body=%v", m)
	}
}

func TestStatus(t *testing.T) {
	e, _, _ := newTestServer(t, models.StateConnected)
	rec := do(e, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	data := decode(t, rec)["data"].(map[string]interface{})
	if data["connection"] != models.StateConnected.String() || data["monitors_in_flight"].(float64) != 3 {
		t.Fatalf("data=%v", data)
	}
	if data["last_scan"].(map[string]interface{})["cycle_id"] != "c1" {
		t.Fatalf("last_scan=%v", data["last_scan"])
	}
}

func TestStatusFatalIs503(t *testing.T) {
	e, _, _ := newTestServer(t, models.StateFatal)
	if rec := do(e, "/api/status"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d want 503", rec.Code)
	}
}

func TestSignalsDefaultsAndFilter(t *testing.T) {
	e, sc, _ := newTestServer(t, models.StateConnected)

	rec := do(e, "/api/signals")
	if rec.Code != http.StatusOK || sc.gotLimit != 20 {
		t.Fatalf("code=%d limit=%d", rec.Code, sc.gotLimit)
	}
	data := decode(t, rec)["data"].(map[string]interface{})
	if data["total"].(float64) != 1 {
		t.Fatalf("data=%v", data)
	}

	do(e, "/api/signals?limit=5&instrument=EURUSD-OTC")
	if sc.gotLimit != 5 || sc.gotInst != "EURUSD-OTC" {
		t.Fatalf("limit=%d inst=%q", sc.gotLimit, sc.gotInst)
	}
}

func TestSignalsRejectsBadLimit(t *testing.T) {
	e, _, _ := newTestServer(t, models.StateConnected)
	rec := do(e, "/api/signals?limit=500")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d want 400", rec.Code)
	}
	errs := decode(t, rec)["data"].([]interface{})
	first := errs[0].(map[string]interface{})
	if first["code"] != "ERR_LTE" || first["field"] != "limit" {
		t.Fatalf("errs=%v", errs)
	}
}

func TestTrades(t *testing.T) {
	e, _, tr := newTestServer(t, models.StateConnected)
	if rec := do(e, "/api/trades?limit=3"); rec.Code != http.StatusOK || tr.gotLimit != 3 {
		t.Fatalf("code=%d limit=%d", rec.Code, tr.gotLimit)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e, _, _ := newTestServer(t, models.StateConnected)
	do(e, "/ping")
	rec := do(e, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "tradesentinel_http_requests_total") {
		t.Fatalf("metrics body missing request counter")
	}
}

func TestAPIRateLimit(t *testing.T) {
	e, _, _ := newTestServer(t, models.StateConnected)
	var last int
	for i := 0; i < 40; i++ {
		last = do(e, "/api/status").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("code=%d want 429 after burst", last)
	}
}
