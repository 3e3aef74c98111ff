package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// fakeGateway answers each request via handle; a nil return means no reply.
func fakeGateway(t *testing.T, handle func(name string, msg json.RawMessage) *response) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			var req struct {
				RequestID string          `json:"request_id"`
				Name      string          `json:"name"`
				Msg       json.RawMessage `json:"msg"`
			}
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			resp := handle(req.Name, req.Msg)
			if resp == nil {
				continue
			}
			resp.RequestID = req.RequestID
			resp.Name = req.Name
			if err := c.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func okMsg(v interface{}) *response {
	b, _ := json.Marshal(v)
	return &response{OK: true, Msg: b}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGatewayRoundTrip(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	srv := fakeGateway(t, func(name string, msg json.RawMessage) *response {
		switch name {
		case "login", "change_balance":
			return okMsg(nil)
		case "server_time":
			return okMsg(map[string]int64{"timestamp": now.UnixMilli()})
		case "get_balance":
			return okMsg(map[string]string{"balance": "1000.50"})
		case "get_candles":
			return okMsg(map[string]interface{}{"candles": []map[string]interface{}{
				{"from": now.Unix() - 60, "open": 1.1, "close": 1.2, "min": 1.0, "max": 1.3},
				{"from": now.Unix(), "open": 1.2, "close": 1.15, "min": 1.1, "max": 1.25},
			}})
		case "buy":
			return &response{OK: false, Error: "active is suspended"}
		case "buy_digital_spot":
			var m map[string]interface{}
			_ = json.Unmarshal(msg, &m)
			if m["direction"] != "put" {
				return &response{OK: false, Error: "bad direction"}
			}
			return okMsg(map[string]interface{}{"accepted": true, "id": "123"})
		}
		return &response{OK: false, Error: "unknown"}
	})

	g := NewGateway(GatewayConfig{URL: wsURL(srv), RequestTimeout: 2 * time.Second}, logger.Nop())
	ctx := context.Background()
	if err := g.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer g.Close()

	if !g.IsHealthy(ctx) {
		t.Fatalf("expected healthy")
	}
	if err := g.SelectAccountMode(ctx, "practice"); err != nil {
		t.Fatalf("select mode: %v", err)
	}
	st, err := g.ServerTime(ctx)
	if err != nil || !st.Equal(now) {
		t.Fatalf("server time %v %v", st, err)
	}
	bal, err := g.Balance(ctx)
	if err != nil || !bal.Equal(decimal.RequireFromString("1000.50")) {
		t.Fatalf("balance %v %v", bal, err)
	}
	bars, err := g.FetchCandles(ctx, "EURUSD-OTC", repository.TF1m, 2, now)
	if err != nil || len(bars) != 2 {
		t.Fatalf("candles %v %v", bars, err)
	}
	if bars[0].High != 1.3 || bars[0].Low != 1.0 {
		t.Fatalf("min/max not mapped: %+v", bars[0])
	}

	req := models.OrderRequest{Instrument: "EURUSD-OTC", Direction: models.DirectionPut, Amount: decimal.NewFromInt(1), Duration: 1}
	id, ok, err := g.PlaceOrder(ctx, models.OrderClassPrimary, req)
	if err != nil || ok || id != "" {
		t.Fatalf("primary should be rejected without error: %q %v %v", id, ok, err)
	}
	id, ok, err = g.PlaceOrder(ctx, models.OrderClassFallback, req)
	if err != nil || !ok || id != "123" {
		t.Fatalf("fallback: %q %v %v", id, ok, err)
	}
}

func TestGatewayLoginRejected(t *testing.T) {
	srv := fakeGateway(t, func(string, json.RawMessage) *response {
		return &response{OK: false, Error: "invalid credentials"}
	})
	g := NewGateway(GatewayConfig{URL: wsURL(srv), RequestTimeout: time.Second}, logger.Nop())
	if err := g.Connect(context.Background()); err == nil {
		t.Fatalf("expected login error")
	}
	if g.IsHealthy(context.Background()) {
		t.Fatalf("closed gateway must not be healthy")
	}
}

func TestGatewayRequestTimeout(t *testing.T) {
	srv := fakeGateway(t, func(name string, _ json.RawMessage) *response {
		if name == "login" {
			return okMsg(nil)
		}
		return nil
	})
	g := NewGateway(GatewayConfig{URL: wsURL(srv), RequestTimeout: 100 * time.Millisecond}, logger.Nop())
	ctx := context.Background()
	if err := g.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer g.Close()
	if _, err := g.ServerTime(ctx); err == nil {
		t.Fatalf("expected timeout")
	}
}

func TestGatewayServerGoneIsUnhealthy(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var req request
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		_ = c.WriteJSON(response{RequestID: req.RequestID, Name: req.Name, OK: true})
		// drop the session right after login
		_ = c.Close()
	}))
	defer srv.Close()

	g := NewGateway(GatewayConfig{URL: wsURL(srv), RequestTimeout: 200 * time.Millisecond}, logger.Nop())
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer g.Close()
	deadline := time.Now().Add(2 * time.Second)
	for g.IsHealthy(context.Background()) {
		if time.Now().After(deadline) {
			t.Fatalf("gateway stayed healthy after server closed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
