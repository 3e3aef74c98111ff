package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeSentinel/internal/domain/models"
	drepo "TradeSentinel/internal/domain/repository"
	domsvc "TradeSentinel/internal/domain/service"
	"TradeSentinel/pkg/logger"
	"TradeSentinel/pkg/util"

	"github.com/google/uuid"
)

// ScannerConfig controls one scan cycle.
type ScannerConfig struct {
	Instruments       []string
	Timeframe         drepo.Timeframe
	CandleCount       int
	CompletenessRatio float64
	FetchRetries      int
	FetchRetryDelay   time.Duration
	RecentSize        int
	Location          *time.Location
}

// ScanSummary describes the most recent cycle.
type ScanSummary struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Scanned    int           `json:"scanned"`
	Signals    int           `json:"signals"`
	Suppressed int           `json:"suppressed"`
	DataErrors int           `json:"data_errors"`
	Aborted    bool          `json:"aborted"`
}

// MarketScanner runs the per-instrument pipeline sequentially against the shared session.
type MarketScanner struct {
	conn      drepo.SessionProvider
	engine    domsvc.IndicatorEngine
	evaluator domsvc.SignalEvaluator
	dedup     domsvc.Deduplicator
	trader    domsvc.TradeExecutor
	notifier  drepo.Notifier
	metrics   drepo.Metrics
	log       *logger.Logger
	cfg       ScannerConfig
	sleep     util.Sleeper
	now       func() time.Time

	mu     sync.RWMutex
	recent []models.Signal
	last   ScanSummary
}

// ScannerOption configures a MarketScanner.
type ScannerOption func(*MarketScanner)

// WithScannerSleeper replaces the wall-clock sleeper used between fetch retries.
func WithScannerSleeper(s util.Sleeper) ScannerOption {
	return func(m *MarketScanner) { m.sleep = s }
}

// WithScannerClock overrides the clock used for signal timestamps and asOf.
func WithScannerClock(now func() time.Time) ScannerOption {
	return func(m *MarketScanner) { m.now = now }
}

func NewMarketScanner(
	conn drepo.SessionProvider,
	engine domsvc.IndicatorEngine,
	evaluator domsvc.SignalEvaluator,
	dedup domsvc.Deduplicator,
	trader domsvc.TradeExecutor,
	notifier drepo.Notifier,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg ScannerConfig,
	opts ...ScannerOption,
) *MarketScanner {
	if cfg.FetchRetries <= 0 {
		cfg.FetchRetries = 3
	}
	if cfg.CompletenessRatio <= 0 {
		cfg.CompletenessRatio = 0.5
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 100
	}
	if cfg.Timeframe == 0 {
		cfg.Timeframe = drepo.DefaultTimeframe()
	}
	m := &MarketScanner{
		conn:      conn,
		engine:    engine,
		evaluator: evaluator,
		dedup:     dedup,
		trader:    trader,
		notifier:  notifier,
		metrics:   metrics,
		log:       log.Component("scanner"),
		cfg:       cfg,
		sleep:     util.SleepContext,
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ScanOnce scans every configured instrument in order and returns the number of
// signals that passed deduplication. It returns models.ErrReconnectExhausted when
// the connection is Fatal; any other connection loss just ends the cycle early.
func (m *MarketScanner) ScanOnce(ctx context.Context) (int, error) {
	sum := ScanSummary{CycleID: uuid.NewString(), StartedAt: m.now().UTC()}
	start := time.Now()
	log := m.log.With(logger.String("cycle_id", sum.CycleID))
	log.Debug("scan started", logger.Int("instruments", len(m.cfg.Instruments)))

	var cycleErr error
	for _, inst := range m.cfg.Instruments {
		if ctx.Err() != nil {
			sum.Aborted = true
			break
		}
		if !m.conn.EnsureConnected(ctx) {
			sum.Aborted = true
			if m.conn.State() == models.StateFatal {
				cycleErr = models.ErrReconnectExhausted
			}
			log.Warn("session unavailable, aborting cycle", logger.Instrument(inst), logger.String("state", m.conn.State().String()))
			break
		}
		sum.Scanned++
		m.scanInstrument(ctx, log, inst, &sum)
	}

	sum.Duration = time.Since(start)
	m.metrics.RecordScan(sum.Signals, sum.Duration.Seconds())
	m.mu.Lock()
	m.last = sum
	m.mu.Unlock()

	if sum.Signals > 0 {
		log.Info("scan finished", logger.Int("signals", sum.Signals), logger.Int("suppressed", sum.Suppressed),
			logger.Duration("took_ms", sum.Duration))
	} else {
		log.Debug("scan finished", logger.Int("data_errors", sum.DataErrors), logger.Duration("took_ms", sum.Duration))
	}
	return sum.Signals, cycleErr
}

func (m *MarketScanner) scanInstrument(ctx context.Context, log *logger.Logger, inst string, sum *ScanSummary) {
	log = log.With(logger.Instrument(inst))

	w, err := m.fetchWindow(ctx, inst)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		sum.DataErrors++
		m.conn.ReportFailure()
		m.metrics.RecordError("data_unavailable")
		log.Warn("candles unavailable", logger.Error(err))
		return
	}
	m.conn.ReportSuccess()
	if bar, ok := w.Last(); ok {
		m.metrics.RecordLastPrice(inst, bar.Close)
	}

	snap, err := m.engine.Compute(w)
	if err != nil {
		if !errors.Is(err, models.ErrIndicatorInsufficient) {
			m.metrics.RecordError("indicator")
		}
		log.Debug("indicators skipped", logger.Error(err))
		return
	}

	dir, err := m.evaluator.Evaluate(snap)
	if err != nil {
		m.metrics.RecordError("malformed_snapshot")
		log.Warn("snapshot rejected", logger.Error(err))
		return
	}
	if dir == models.DirectionNone {
		log.Debug("no signal", logger.Float64("rsi", snap.RSI), logger.Float64("price", snap.LastPrice))
		return
	}

	now := m.now().UTC()
	if !m.dedup.ShouldFire(ctx, inst, dir, now) {
		sum.Suppressed++
		m.metrics.RecordSuppressed(inst)
		log.Info("signal suppressed by cooldown", logger.String("direction", dir.String()))
		return
	}
	// recorded before any I/O so a slow order cannot let a duplicate through
	if err := m.dedup.Record(ctx, inst, dir, now); err != nil {
		m.metrics.RecordError("dedup")
		log.Error("cooldown record failed, dropping signal", logger.Error(err))
		return
	}

	sig := models.Signal{ID: uuid.NewString(), Instrument: inst, Direction: dir, Snapshot: snap, FiredAt: now}
	sum.Signals++
	m.remember(sig)
	m.metrics.RecordSignal(inst, string(dir))
	log.Info("signal confirmed", logger.String("signal_id", sig.ID), logger.String("direction", dir.String()),
		logger.Float64("price", snap.LastPrice), logger.Float64("ema", snap.EMA), logger.Float64("rsi", snap.RSI),
		logger.Int("streak", max(snap.ConsecutiveGreen, snap.ConsecutiveRed)))
	m.notify(ctx, signalNotification(sig, m.cfg.Location))

	if _, err := m.trader.Execute(ctx, sig); err != nil {
		log.Warn("not tradable", logger.Error(err))
		m.notify(ctx, notTradableNotification(sig, m.now().UTC()))
	}
}

// fetchWindow retries the candle fetch and returns the first window that meets
// the completeness threshold.
func (m *MarketScanner) fetchWindow(ctx context.Context, inst string) (models.CandleWindow, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.FetchRetries; attempt++ {
		if attempt > 1 {
			if err := m.sleep(ctx, m.cfg.FetchRetryDelay); err != nil {
				return models.CandleWindow{}, err
			}
		}
		sess := m.conn.Session()
		if sess == nil {
			lastErr = errors.New("no session")
			continue
		}
		start := time.Now()
		bars, err := sess.FetchCandles(ctx, inst, m.cfg.Timeframe, m.cfg.CandleCount, m.now())
		m.metrics.RecordLatency("fetch_candles", time.Since(start).Seconds())
		if err != nil {
			lastErr = err
			continue
		}
		w := models.NewCandleWindow(inst, m.cfg.CandleCount, bars)
		if !w.Complete(m.cfg.CompletenessRatio) {
			lastErr = fmt.Errorf("%d of %d bars", w.Len(), m.cfg.CandleCount)
			continue
		}
		return w, nil
	}
	return models.CandleWindow{}, fmt.Errorf("%s after %d attempts: %v: %w", inst, m.cfg.FetchRetries, lastErr, models.ErrDataUnavailable)
}

func (m *MarketScanner) notify(ctx context.Context, n models.Notification) {
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.log.Warn("notification dropped", logger.String("kind", string(n.Kind)), logger.Error(err))
	}
}

func (m *MarketScanner) remember(sig models.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append(m.recent, sig)
	if over := len(m.recent) - m.cfg.RecentSize; over > 0 {
		m.recent = append([]models.Signal(nil), m.recent[over:]...)
	}
}

// RecentSignals returns up to limit signals, newest first, optionally filtered by instrument.
func (m *MarketScanner) RecentSignals(limit int, instrument string) []models.Signal {
	if limit <= 0 {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Signal, 0, min(limit, len(m.recent)))
	for i := len(m.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if instrument != "" && m.recent[i].Instrument != instrument {
			continue
		}
		out = append(out, m.recent[i])
	}
	return out
}

// LastScan returns the summary of the latest cycle.
func (m *MarketScanner) LastScan() ScanSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
