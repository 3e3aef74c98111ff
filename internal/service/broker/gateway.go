package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"TradeSentinel/internal/domain/models"
	drepo "TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/logger"
	"TradeSentinel/pkg/util"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var errClosed = errors.New("gateway: connection closed")

// GatewayConfig holds connection settings for the brokerage gateway.
type GatewayConfig struct {
	URL            string
	Email          string
	Password       string
	RequestTimeout time.Duration
	PingInterval   time.Duration
}

type request struct {
	RequestID string      `json:"request_id"`
	Name      string      `json:"name"`
	Msg       interface{} `json:"msg,omitempty"`
}

type response struct {
	RequestID string          `json:"request_id"`
	Name      string          `json:"name"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	Msg       json.RawMessage `json:"msg,omitempty"`
}

// Gateway is a BrokerSession over a JSON request/response websocket.
// Responses are matched to requests by request_id.
type Gateway struct {
	cfg    GatewayConfig
	log    *logger.Logger
	dialer *websocket.Dialer

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan response

	alive     atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewGateway creates an unconnected gateway session.
func NewGateway(cfg GatewayConfig, log *logger.Logger) *Gateway {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &Gateway{
		cfg:     cfg,
		log:     log.Component("gateway"),
		dialer:  websocket.DefaultDialer,
		pending: make(map[string]chan response),
		done:    make(chan struct{}),
	}
}

// Connect dials the gateway, starts the read and ping loops and logs in.
func (g *Gateway) Connect(ctx context.Context) error {
	conn, _, err := g.dialer.DialContext(ctx, g.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("gateway dial: %w", err)
	}
	g.conn = conn
	g.alive.Store(true)

	loopCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	go g.readLoop()
	go g.pingLoop(loopCtx)

	login := map[string]string{"email": g.cfg.Email, "password": g.cfg.Password}
	if err := g.call(ctx, "login", login, nil); err != nil {
		_ = g.Close()
		return fmt.Errorf("gateway login: %w", err)
	}
	g.log.Info("gateway session established", logger.String("url", g.cfg.URL))
	return nil
}

// IsHealthy probes with a server-time request.
func (g *Gateway) IsHealthy(ctx context.Context) bool {
	if !g.alive.Load() {
		return false
	}
	_, err := g.ServerTime(ctx)
	return err == nil
}

func (g *Gateway) SelectAccountMode(ctx context.Context, mode string) error {
	return g.call(ctx, "change_balance", map[string]string{"type": strings.ToUpper(mode)}, nil)
}

func (g *Gateway) Balance(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := g.call(ctx, "get_balance", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

func (g *Gateway) ServerTime(ctx context.Context) (time.Time, error) {
	var out struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := g.call(ctx, "server_time", nil, &out); err != nil {
		return time.Time{}, err
	}
	return util.FromUnix(out.Timestamp), nil
}

type gwCandle struct {
	From   int64   `json:"from"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Volume float64 `json:"volume"`
}

func (g *Gateway) FetchCandles(ctx context.Context, instrument string, tf drepo.Timeframe, count int, asOf time.Time) ([]models.Candle, error) {
	req := map[string]interface{}{
		"active": instrument,
		"size":   int(tf),
		"count":  count,
		"to":     asOf.Unix(),
	}
	var out struct {
		Candles []gwCandle `json:"candles"`
	}
	if err := g.call(ctx, "get_candles", req, &out); err != nil {
		return nil, err
	}
	bars := make([]models.Candle, 0, len(out.Candles))
	for _, c := range out.Candles {
		bars = append(bars, models.Candle{
			Time:   util.FromUnix(c.From),
			Open:   c.Open,
			High:   c.Max,
			Low:    c.Min,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return bars, nil
}

// PlaceOrder sends buy (binary) for Primary and buy_digital_spot for Fallback.
// A gateway-side rejection is reported as accepted=false with a nil error.
func (g *Gateway) PlaceOrder(ctx context.Context, class models.OrderClass, req models.OrderRequest) (string, bool, error) {
	name := "buy"
	if class == models.OrderClassFallback {
		name = "buy_digital_spot"
	}
	msg := map[string]interface{}{
		"active":     req.Instrument,
		"price":      req.Amount,
		"direction":  strings.ToLower(string(req.Direction)),
		"expiration": req.Duration,
	}
	var out struct {
		Accepted bool   `json:"accepted"`
		ID       string `json:"id"`
	}
	if err := g.call(ctx, name, msg, &out); err != nil {
		var rej *rejectedError
		if errors.As(err, &rej) {
			g.log.Warn("order rejected", logger.Instrument(req.Instrument),
				logger.String("class", string(class)), logger.String("reason", rej.reason))
			return "", false, nil
		}
		return "", false, err
	}
	if !out.Accepted || out.ID == "" {
		return "", false, nil
	}
	return out.ID, true, nil
}

// Close stops the loops and closes the socket. Safe to call more than once.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.alive.Store(false)
		if g.cancel != nil {
			g.cancel()
		}
		close(g.done)
		if g.conn != nil {
			g.writeMu.Lock()
			_ = g.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			g.writeMu.Unlock()
			err = g.conn.Close()
		}
	})
	return err
}

type rejectedError struct {
	name   string
	reason string
}

func (e *rejectedError) Error() string { return fmt.Sprintf("%s rejected: %s", e.name, e.reason) }

func (g *Gateway) call(ctx context.Context, name string, msg interface{}, out interface{}) error {
	if !g.alive.Load() {
		return errClosed
	}
	id := uuid.NewString()
	ch := make(chan response, 1)
	g.mu.Lock()
	g.pending[id] = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
	}()
	if !g.alive.Load() {
		return errClosed
	}

	g.writeMu.Lock()
	_ = g.conn.SetWriteDeadline(time.Now().Add(g.cfg.RequestTimeout))
	err := g.conn.WriteJSON(request{RequestID: id, Name: name, Msg: msg})
	g.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s write: %w", name, err)
	}

	timer := time.NewTimer(g.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%s: timeout after %s", name, g.cfg.RequestTimeout)
	case <-g.done:
		return errClosed
	case resp, ok := <-ch:
		if !ok {
			return errClosed
		}
		if !resp.OK {
			return &rejectedError{name: name, reason: resp.Error}
		}
		if out != nil && len(resp.Msg) > 0 {
			if err := json.Unmarshal(resp.Msg, out); err != nil {
				return fmt.Errorf("%s decode: %w", name, err)
			}
		}
		return nil
	}
}

func (g *Gateway) readLoop() {
	defer g.failPending()
	for {
		_, b, err := g.conn.ReadMessage()
		if err != nil {
			if g.alive.Swap(false) {
				g.log.Warn("gateway read failed", logger.Error(err))
			}
			return
		}
		var resp response
		if err := json.Unmarshal(b, &resp); err != nil || resp.RequestID == "" {
			// unsolicited frames (quotes, heartbeats) are ignored
			continue
		}
		g.mu.Lock()
		ch, ok := g.pending[resp.RequestID]
		g.mu.Unlock()
		if ok {
			select {
			case ch <- resp:
			default:
			}
		}
	}
}

func (g *Gateway) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.writeMu.Lock()
			err := g.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			g.writeMu.Unlock()
			if err != nil {
				g.log.Warn("gateway ping failed", logger.Error(err))
				g.alive.Store(false)
				return
			}
		}
	}
}

func (g *Gateway) failPending() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, ch := range g.pending {
		close(ch)
		delete(g.pending, id)
	}
}
