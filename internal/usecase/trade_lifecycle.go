package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeSentinel/internal/domain/models"
	drepo "TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/logger"
	"TradeSentinel/pkg/util"

	"github.com/shopspring/decimal"
)

// LifecycleConfig holds trade sizing and the outcome observation schedule.
type LifecycleConfig struct {
	Investment        decimal.Decimal
	DurationMinutes   int
	SettlementBuffer  time.Duration
	BalanceRetries    int
	BalanceRetryDelay time.Duration
	RecentSize        int
}

// TradeLifecycle places orders and watches each one until its outcome is known.
type TradeLifecycle struct {
	conn     drepo.SessionProvider
	notifier drepo.Notifier
	metrics  drepo.Metrics
	log      *logger.Logger
	cfg      LifecycleConfig
	sleep    util.Sleeper
	now      func() time.Time

	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight int
	recent   []models.TradeOutcome
}

// LifecycleOption configures a TradeLifecycle.
type LifecycleOption func(*TradeLifecycle)

// WithLifecycleSleeper replaces the wall-clock sleeper.
func WithLifecycleSleeper(s util.Sleeper) LifecycleOption {
	return func(l *TradeLifecycle) { l.sleep = s }
}

// WithLifecycleClock overrides the clock used for timestamps.
func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *TradeLifecycle) { l.now = now }
}

func NewTradeLifecycle(
	conn drepo.SessionProvider,
	notifier drepo.Notifier,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg LifecycleConfig,
	opts ...LifecycleOption,
) *TradeLifecycle {
	if cfg.BalanceRetries <= 0 {
		cfg.BalanceRetries = 3
	}
	if cfg.BalanceRetryDelay <= 0 {
		cfg.BalanceRetryDelay = 5 * time.Second
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 50
	}
	l := &TradeLifecycle{
		conn:     conn,
		notifier: notifier,
		metrics:  metrics,
		log:      log.Component("trade"),
		cfg:      cfg,
		sleep:    util.SleepContext,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Execute samples the balance, then tries the Primary order class and, if that
// is not accepted, exactly one Fallback. On success a monitor is started and
// Execute returns without waiting for it.
func (l *TradeLifecycle) Execute(ctx context.Context, sig models.Signal) (*models.TradeOrder, error) {
	sess := l.conn.Session()
	if sess == nil {
		return nil, fmt.Errorf("%s: no session: %w", sig.Instrument, models.ErrOrderPlacement)
	}
	before, err := sess.Balance(ctx)
	if err != nil {
		l.metrics.RecordError("balance")
		return nil, fmt.Errorf("%s: balance before: %v: %w", sig.Instrument, err, models.ErrOrderPlacement)
	}

	req := models.OrderRequest{
		Instrument: sig.Instrument,
		Direction:  sig.Direction,
		Amount:     l.cfg.Investment,
		Duration:   l.cfg.DurationMinutes,
	}
	for _, class := range []models.OrderClass{models.OrderClassPrimary, models.OrderClassFallback} {
		start := time.Now()
		id, accepted, err := sess.PlaceOrder(ctx, class, req)
		l.metrics.RecordLatency("place_order", time.Since(start).Seconds())
		if err != nil {
			l.metrics.RecordError("place_order")
			l.log.Warn("order attempt failed", logger.Instrument(sig.Instrument),
				logger.String("class", string(class)), logger.Error(err))
			continue
		}
		if !accepted || id == "" {
			l.log.Info("order class unavailable", logger.Instrument(sig.Instrument), logger.String("class", string(class)))
			continue
		}

		order := models.TradeOrder{
			SignalID:      sig.ID,
			Instrument:    sig.Instrument,
			Direction:     sig.Direction,
			Investment:    l.cfg.Investment,
			Duration:      l.cfg.DurationMinutes,
			OrderID:       id,
			OrderClass:    class,
			BalanceBefore: before,
			PlacedAt:      l.now().UTC(),
		}
		l.log.Info("order placed", logger.Instrument(order.Instrument), logger.String("order_id", id),
			logger.String("class", string(class)), logger.String("direction", order.Direction.String()))
		l.metrics.RecordTrade(order.Instrument, string(class))
		l.notify(ctx, tradeNotification(order))
		l.Monitor(ctx, order)
		return &order, nil
	}
	return nil, fmt.Errorf("%s %s: %w", sig.Instrument, sig.Direction, models.ErrOrderPlacement)
}

// Monitor starts a detached task that reports the order's outcome after expiry.
// The task ignores cancellation of ctx; on shutdown it is abandoned in place.
func (l *TradeLifecycle) Monitor(ctx context.Context, order models.TradeOrder) {
	mctx := context.WithoutCancel(ctx)
	l.wg.Add(1)
	l.track(1)
	go func() {
		defer l.wg.Done()
		defer l.track(-1)
		out := l.observe(mctx, order)
		l.remember(out)
		l.metrics.RecordOutcome(out.Order.Instrument, string(out.Result), out.Profit.InexactFloat64())
		l.notify(mctx, outcomeNotification(out))
	}()
}

func (l *TradeLifecycle) observe(ctx context.Context, order models.TradeOrder) models.TradeOutcome {
	wait := time.Duration(order.Duration)*time.Minute + l.cfg.SettlementBuffer
	log := l.log.With(logger.Instrument(order.Instrument), logger.String("order_id", order.OrderID))
	log.Info("monitoring order", logger.Duration("wait_ms", wait))
	_ = l.sleep(ctx, wait)

	out := models.TradeOutcome{Order: order, Result: models.ResultUnknown}
	after, err := l.sampleBalance(ctx)
	out.ObservedAt = l.now().UTC()
	if err != nil {
		log.Error("outcome unknown", logger.Error(err))
		l.metrics.RecordError("outcome_balance")
		return out
	}
	out.BalanceAfter = after
	out.Profit = after.Sub(order.BalanceBefore)
	out.Result = models.ClassifyProfit(out.Profit)
	log.Info("order settled", logger.String("result", string(out.Result)), logger.String("profit", out.Profit.StringFixed(2)))
	return out
}

func (l *TradeLifecycle) sampleBalance(ctx context.Context) (decimal.Decimal, error) {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.BalanceRetries; attempt++ {
		if attempt > 1 {
			if err := l.sleep(ctx, l.cfg.BalanceRetryDelay); err != nil {
				return decimal.Zero, err
			}
		}
		if !l.conn.EnsureConnected(ctx) {
			lastErr = fmt.Errorf("session unavailable (%s)", l.conn.State())
			continue
		}
		sess := l.conn.Session()
		if sess == nil {
			lastErr = fmt.Errorf("session closed (%s)", l.conn.State())
			continue
		}
		bal, err := sess.Balance(ctx)
		if err == nil {
			return bal, nil
		}
		lastErr = err
	}
	return decimal.Zero, fmt.Errorf("balance after %d attempts: %w", l.cfg.BalanceRetries, lastErr)
}

func (l *TradeLifecycle) notify(ctx context.Context, n models.Notification) {
	if err := l.notifier.Notify(ctx, n); err != nil {
		l.log.Warn("notification dropped", logger.String("kind", string(n.Kind)), logger.Error(err))
	}
}

func (l *TradeLifecycle) track(delta int) {
	l.mu.Lock()
	l.inFlight += delta
	n := l.inFlight
	l.mu.Unlock()
	l.metrics.SetMonitorsInFlight(n)
}

func (l *TradeLifecycle) remember(out models.TradeOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recent = append(l.recent, out)
	if over := len(l.recent) - l.cfg.RecentSize; over > 0 {
		l.recent = append([]models.TradeOutcome(nil), l.recent[over:]...)
	}
}

// InFlight returns the number of monitors still waiting for an outcome.
func (l *TradeLifecycle) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (l *TradeLifecycle) RecentOutcomes(limit int) []models.TradeOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.recent) {
		limit = len(l.recent)
	}
	out := make([]models.TradeOutcome, 0, limit)
	for i := len(l.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.recent[i])
	}
	return out
}

// Wait blocks until every started monitor has finished.
func (l *TradeLifecycle) Wait() {
	l.wg.Wait()
}
