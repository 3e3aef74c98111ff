package api

import (
	"net/http"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/internal/service/ratelimit"
	"TradeSentinel/internal/usecase"
	xhttp "TradeSentinel/pkg/http"
	xlogger "TradeSentinel/pkg/logger"

	"github.com/labstack/echo/v4"
)

type ConnectionStatus interface {
	State() models.ConnectionState
	Failures() int
}

type ScanStatus interface {
	LastScan() usecase.ScanSummary
	RecentSignals(limit int, instrument string) []models.Signal
}

type TradeStatus interface {
	InFlight() int
	RecentOutcomes(limit int) []models.TradeOutcome
}

type BotStatus interface {
	Running() bool
	Cycles() int64
	StartedAt() time.Time
}

// StatusInfo is static process metadata shown on / and /debug.
type StatusInfo struct {
	Service     string
	Environment string
	AccountMode string
	// Debug lists which settings are present; values must already be masked.
	Debug map[string]interface{}
}

// StatusEchoHandler serves the read-only operator surface.
type StatusEchoHandler struct {
	logger  *xlogger.Logger
	conn    ConnectionStatus
	scanner ScanStatus
	trades  TradeStatus
	bot     BotStatus
	info    StatusInfo
	rl      *ratelimit.Limiter
	now     func() time.Time
	started time.Time
}

func NewStatusEchoHandler(logger *xlogger.Logger, conn ConnectionStatus, scanner ScanStatus, trades TradeStatus, bot BotStatus, info StatusInfo) *StatusEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &StatusEchoHandler{
		logger:  logger.Component("status_api"),
		conn:    conn,
		scanner: scanner,
		trades:  trades,
		bot:     bot,
		info:    info,
		rl:      ratelimit.New(),
		now:     time.Now,
		started: time.Now(),
	}
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Home)
	e.GET("/ping", h.Ping)
	e.GET("/debug", h.Debug)

	g := e.Group("/api", h.throttle)
	g.GET("/status", h.Status)
	g.GET("/signals", h.Signals)
	g.GET("/trades", h.Trades)
}

// throttle allows 30 requests per client with one token per second.
func (h *StatusEchoHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.rl.Allow(c.RealIP(), 30, 1) {
			return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}

func (h *StatusEchoHandler) Home(c echo.Context) error {
	now := h.now()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "online",
		"service":     h.info.Service,
		"uptime":      int64(now.Sub(h.started).Seconds()),
		"timestamp":   now.UTC().Format("2006-01-02 15:04:05"),
		"environment": h.info.Environment,
	})
}

func (h *StatusEchoHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "pong",
		"timestamp": float64(h.now().UnixMilli()) / 1000,
	})
}

func (h *StatusEchoHandler) Debug(c echo.Context) error {
	out := map[string]interface{}{"environment": h.info.Environment}
	for k, v := range h.info.Debug {
		out[k] = v
	}
	return c.JSON(http.StatusOK, out)
}

type statusResponse struct {
	Connection  string              `json:"connection"`
	Failures    int                 `json:"consecutive_failures"`
	Running     bool                `json:"running"`
	Cycles      int64               `json:"cycles"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	InFlight    int                 `json:"monitors_in_flight"`
	AccountMode string              `json:"account_mode"`
	LastScan    usecase.ScanSummary `json:"last_scan"`
}

func (h *StatusEchoHandler) Status(c echo.Context) error {
	res := statusResponse{
		Connection:  h.conn.State().String(),
		Failures:    h.conn.Failures(),
		Running:     h.bot.Running(),
		Cycles:      h.bot.Cycles(),
		InFlight:    h.trades.InFlight(),
		AccountMode: h.info.AccountMode,
		LastScan:    h.scanner.LastScan(),
	}
	if t := h.bot.StartedAt(); !t.IsZero() {
		res.StartedAt = &t
	}
	if h.conn.State() == models.StateFatal {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StatusEchoHandler) Signals(c echo.Context) error {
	req := &models.RecentSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.scanner.RecentSignals(req.Limit, req.Instrument)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StatusEchoHandler) Trades(c echo.Context) error {
	req := &models.RecentTradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.trades.RecentOutcomes(req.Limit)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
