package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/logger"
	"TradeSentinel/pkg/util"

	"golang.org/x/sync/singleflight"
)

// Options tune the connection state machine.
type Options struct {
	AccountMode        string
	StabilizationDelay time.Duration
	FailureThreshold   int
	ClockSkewWarn      time.Duration
	Policy             Policy
}

// Manager owns the broker session. It is the only code that creates or replaces it.
type Manager struct {
	factory repository.SessionFactory
	opts    Options
	log     *logger.Logger
	metrics repository.Metrics
	sleep   util.Sleeper
	now     func() time.Time

	mu       sync.RWMutex
	session  repository.BrokerSession
	state    models.ConnectionState
	failures int
	closed   bool

	reconnects singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithSleeper replaces the wall-clock sleeper used for stabilization and backoff.
func WithSleeper(s util.Sleeper) Option {
	return func(m *Manager) { m.sleep = s }
}

// WithClock overrides the local clock used for skew checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(factory repository.SessionFactory, opts Options, log *logger.Logger, metrics repository.Metrics, options ...Option) *Manager {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultPolicy()
	}
	m := &Manager{
		factory: factory,
		opts:    opts,
		log:     log.Component("connection"),
		metrics: metrics,
		sleep:   util.SleepContext,
		now:     time.Now,
		state:   models.StateDisconnected,
	}
	for _, o := range options {
		o(m)
	}
	m.metrics.SetConnectionState(m.state.String())
	return m
}

// Session returns the current session handle, nil before the first connect.
func (m *Manager) Session() repository.BrokerSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *Manager) State() models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Closed reports whether Close has been called. A closed manager opens no new sessions.
func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Failures returns the consecutive failure count.
func (m *Manager) Failures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures
}

// Connect opens a fresh session, waits for it to stabilise and verifies it.
// Only a verified session replaces the current one.
func (m *Manager) Connect(ctx context.Context) models.ConnectionState {
	if m.State() == models.StateFatal {
		return models.StateFatal
	}
	if m.Closed() {
		return models.StateDisconnected
	}
	m.setState(models.StateConnecting)

	sess := m.factory.NewSession()
	if err := m.establish(ctx, sess); err != nil {
		_ = sess.Close()
		m.log.Warn("connect failed", logger.Error(err))
		m.metrics.RecordError("connect")
		m.setState(models.StateDisconnected)
		return models.StateDisconnected
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = sess.Close()
		return models.StateDisconnected
	}
	old := m.session
	m.session = sess
	m.failures = 0
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	m.afterConnect(ctx, sess)
	m.setState(models.StateConnected)
	return models.StateConnected
}

func (m *Manager) establish(ctx context.Context, sess repository.BrokerSession) error {
	start := time.Now()
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("session connect: %w: %v", models.ErrTransientConnection, err)
	}
	if err := m.sleep(ctx, m.opts.StabilizationDelay); err != nil {
		return err
	}
	if !sess.IsHealthy(ctx) {
		return fmt.Errorf("stabilization probe: %w", models.ErrTransientConnection)
	}
	if m.opts.AccountMode != "" {
		if err := sess.SelectAccountMode(ctx, m.opts.AccountMode); err != nil {
			return fmt.Errorf("select account %s: %w", m.opts.AccountMode, err)
		}
	}
	m.metrics.RecordLatency("connect", time.Since(start).Seconds())
	return nil
}

// afterConnect logs the balance and warns on server clock drift. Neither is fatal.
func (m *Manager) afterConnect(ctx context.Context, sess repository.BrokerSession) {
	if bal, err := sess.Balance(ctx); err != nil {
		m.log.Warn("balance unavailable after connect", logger.Error(err))
	} else {
		m.log.Info("connected", logger.String("account", m.opts.AccountMode), logger.String("balance", bal.StringFixed(2)))
	}

	st, err := sess.ServerTime(ctx)
	if err != nil {
		m.log.Warn("server time unavailable", logger.Error(err))
		return
	}
	if skew := util.AbsDuration(m.now().Sub(st)); m.opts.ClockSkewWarn > 0 && skew > m.opts.ClockSkewWarn {
		m.log.Warn("server clock skew", logger.Duration("skew_ms", skew), logger.Time("server_time", st))
	}
}

// HealthCheck probes the current session. A failed probe on a connected
// session moves it to Degraded.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	sess := m.Session()
	if sess == nil {
		return false
	}
	if sess.IsHealthy(ctx) {
		return true
	}
	m.mu.Lock()
	degrade := m.state == models.StateConnected
	m.mu.Unlock()
	if degrade {
		m.log.Warn("health check failed")
		m.setState(models.StateDegraded)
	}
	return false
}

// EnsureConnected returns true once a healthy session is available, reconnecting if needed.
// It returns false immediately in Fatal.
func (m *Manager) EnsureConnected(ctx context.Context) bool {
	if m.Closed() {
		return false
	}
	switch m.State() {
	case models.StateFatal:
		return false
	case models.StateConnected:
		if m.HealthCheck(ctx) {
			return true
		}
	}
	return m.Reconnect(ctx)
}

// Reconnect runs the backoff schedule until a connect succeeds or attempts run out,
// at which point the manager goes Fatal. Concurrent callers share one in-flight run.
func (m *Manager) Reconnect(ctx context.Context) bool {
	v, _, _ := m.reconnects.Do("reconnect", func() (interface{}, error) {
		return m.reconnect(ctx), nil
	})
	return v.(bool)
}

func (m *Manager) reconnect(ctx context.Context) bool {
	switch {
	case m.State() == models.StateFatal, m.Closed():
		return false
	case m.State() == models.StateConnected && m.HealthCheck(ctx):
		// a run that finished just before this one already restored the session
		return true
	}
	p := m.opts.Policy
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			d := p.Delay(attempt - 1)
			m.log.Info("reconnect backoff", logger.Int("attempt", attempt), logger.Duration("delay_ms", d))
			if err := m.sleep(ctx, d); err != nil {
				return false
			}
		}
		if m.Connect(ctx) == models.StateConnected {
			if attempt > 1 {
				m.log.Info("reconnected", logger.Int("attempts", attempt))
			}
			return true
		}
		if ctx.Err() != nil || m.Closed() {
			return false
		}
	}
	m.log.Error("reconnect attempts exhausted", logger.Int("max_attempts", p.MaxAttempts))
	m.setState(models.StateFatal)
	return false
}

// ReportFailure counts a consumer-side operation failure. Reaching the
// threshold on a connected session moves it to Degraded.
func (m *Manager) ReportFailure() {
	m.mu.Lock()
	m.failures++
	n := m.failures
	degrade := m.state == models.StateConnected && n >= m.opts.FailureThreshold
	m.mu.Unlock()
	if degrade {
		m.log.Warn("failure threshold reached", logger.Int("failures", n))
		m.setState(models.StateDegraded)
	}
}

// ReportSuccess resets the consecutive failure count.
func (m *Manager) ReportSuccess() {
	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()
}

// Close releases the session and stops further connects. Fatal stays Fatal.
func (m *Manager) Close() error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.closed = true
	m.mu.Unlock()
	if m.State() != models.StateFatal {
		m.setState(models.StateDisconnected)
	}
	if sess == nil {
		return nil
	}
	return sess.Close()
}

func (m *Manager) setState(s models.ConnectionState) {
	m.mu.Lock()
	prev := m.state
	if prev == models.StateFatal {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.log.Info("connection state", logger.String("from", prev.String()), logger.String("to", s.String()))
		m.metrics.SetConnectionState(s.String())
	}
}
