package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/logger"
	"TradeSentinel/pkg/metrics"

	"github.com/shopspring/decimal"
)

type fakeSession struct {
	connectErr error
	healthy    atomic.Bool
	closed     atomic.Bool
	mode       string
	serverTime time.Time
}

func (s *fakeSession) Connect(context.Context) error  { return s.connectErr }
func (s *fakeSession) IsHealthy(context.Context) bool { return s.healthy.Load() }
func (s *fakeSession) SelectAccountMode(_ context.Context, mode string) error {
	s.mode = mode
	return nil
}
func (s *fakeSession) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(100), nil
}
func (s *fakeSession) ServerTime(context.Context) (time.Time, error) { return s.serverTime, nil }
func (s *fakeSession) FetchCandles(context.Context, string, repository.Timeframe, int, time.Time) ([]models.Candle, error) {
	return nil, nil
}
func (s *fakeSession) PlaceOrder(context.Context, models.OrderClass, models.OrderRequest) (string, bool, error) {
	return "", false, nil
}
func (s *fakeSession) Close() error { s.closed.Store(true); return nil }

// scriptedFactory hands out sessions that fail to connect until ok is set.
type scriptedFactory struct {
	mu       sync.Mutex
	ok       bool
	created  []*fakeSession
	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *scriptedFactory) NewSession() repository.BrokerSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{serverTime: time.Now()}
	if !f.ok {
		s.connectErr = errors.New("refused")
	}
	s.healthy.Store(true)
	f.created = append(f.created, s)
	return s
}

func (f *scriptedFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *scriptedFactory) last() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[len(f.created)-1]
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newManager(f repository.SessionFactory, opts Options) *Manager {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = Policy{Kind: PolicyExponential, MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2, Cap: 300 * time.Second}
	}
	return NewManager(f, opts, logger.Nop(), metrics.Nop{}, WithSleeper(noSleep))
}

func TestConnectSucceeds(t *testing.T) {
	f := &scriptedFactory{ok: true}
	m := newManager(f, Options{AccountMode: "PRACTICE", FailureThreshold: 3})
	if got := m.Connect(context.Background()); got != models.StateConnected {
		t.Fatalf("expected connected, got %s", got)
	}
	if f.last().mode != "PRACTICE" {
		t.Fatalf("account mode not selected: %q", f.last().mode)
	}
	if m.Session() == nil {
		t.Fatalf("expected session")
	}
}

func TestConnectFailureGoesDisconnected(t *testing.T) {
	f := &scriptedFactory{}
	m := newManager(f, Options{})
	if got := m.Connect(context.Background()); got != models.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
	if !f.last().closed.Load() {
		t.Fatalf("failed session should be closed")
	}
	if m.Session() != nil {
		t.Fatalf("failed session must not be installed")
	}
}

func TestReconnectExhaustionIsFatal(t *testing.T) {
	f := &scriptedFactory{}
	m := newManager(f, Options{})
	ctx := context.Background()

	if m.Reconnect(ctx) {
		t.Fatalf("expected reconnect to fail")
	}
	if m.State() != models.StateFatal {
		t.Fatalf("expected fatal, got %s", m.State())
	}
	if f.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.count())
	}

	// Fatal is terminal even when the broker comes back.
	f.mu.Lock()
	f.ok = true
	f.mu.Unlock()
	if m.EnsureConnected(ctx) || m.Reconnect(ctx) {
		t.Fatalf("fatal manager must not reconnect")
	}
	if m.Connect(ctx) != models.StateFatal || m.State() != models.StateFatal {
		t.Fatalf("expected to stay fatal, got %s", m.State())
	}
	if f.count() != 3 {
		t.Fatalf("no further sessions expected, got %d", f.count())
	}
}

func TestFailureThresholdDegradesAndReconnects(t *testing.T) {
	f := &scriptedFactory{ok: true}
	m := newManager(f, Options{FailureThreshold: 3})
	ctx := context.Background()
	if !m.EnsureConnected(ctx) {
		t.Fatalf("expected connected")
	}
	first := m.Session()

	m.ReportFailure()
	m.ReportFailure()
	if m.State() != models.StateConnected {
		t.Fatalf("should stay connected below threshold")
	}
	m.ReportSuccess()
	m.ReportFailure()
	m.ReportFailure()
	if m.State() != models.StateConnected {
		t.Fatalf("success should reset the counter")
	}
	m.ReportFailure()
	if m.State() != models.StateDegraded {
		t.Fatalf("expected degraded, got %s", m.State())
	}

	if !m.EnsureConnected(ctx) {
		t.Fatalf("expected reconnect from degraded")
	}
	if m.State() != models.StateConnected || m.Failures() != 0 {
		t.Fatalf("expected connected with reset counter, got %s/%d", m.State(), m.Failures())
	}
	if m.Session() == first {
		t.Fatalf("expected a fresh session")
	}
	if !first.(*fakeSession).closed.Load() {
		t.Fatalf("old session should be closed")
	}
}

func TestHealthCheckFailureDegrades(t *testing.T) {
	f := &scriptedFactory{ok: true}
	m := newManager(f, Options{})
	ctx := context.Background()
	m.Connect(ctx)
	f.last().healthy.Store(false)

	if m.HealthCheck(ctx) {
		t.Fatalf("expected unhealthy")
	}
	if m.State() != models.StateDegraded {
		t.Fatalf("expected degraded, got %s", m.State())
	}
}

func TestStabilizationProbeFailure(t *testing.T) {
	f := &unhealthyFactory{}
	m := newManager(f, Options{StabilizationDelay: time.Second})
	if got := m.Connect(context.Background()); got != models.StateDisconnected {
		t.Fatalf("expected disconnected on failed probe, got %s", got)
	}
}

type unhealthyFactory struct{}

func (unhealthyFactory) NewSession() repository.BrokerSession { return &fakeSession{} }

type blockingFactory struct {
	scriptedFactory
	release chan struct{}
}

func (f *blockingFactory) NewSession() repository.BrokerSession {
	n := f.inflight.Add(1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	<-f.release
	f.inflight.Add(-1)
	return f.scriptedFactory.NewSession()
}

func TestSingleReconnectInFlight(t *testing.T) {
	f := &blockingFactory{scriptedFactory: scriptedFactory{ok: true}, release: make(chan struct{})}
	m := newManager(f, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Reconnect(ctx)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if f.maxSeen.Load() != 1 {
		t.Fatalf("expected one reconnect in flight, saw %d", f.maxSeen.Load())
	}
	for i, ok := range results {
		if !ok {
			t.Fatalf("caller %d did not observe the shared reconnect", i)
		}
	}
}

func TestPolicyDelay(t *testing.T) {
	exp := Policy{Kind: PolicyExponential, BaseDelay: 5 * time.Second, Multiplier: 2, Cap: 300 * time.Second}
	cases := []struct {
		n    int
		want time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{7, 300 * time.Second},
	}
	for _, tc := range cases {
		if got := exp.Delay(tc.n); got != tc.want {
			t.Fatalf("exponential %d: got %v want %v", tc.n, got, tc.want)
		}
	}

	lin := Policy{Kind: PolicyLinear, BaseDelay: 10 * time.Second, Cap: 25 * time.Second}
	if lin.Delay(2) != 20*time.Second || lin.Delay(3) != 25*time.Second {
		t.Fatalf("linear: %v %v", lin.Delay(2), lin.Delay(3))
	}
}

func TestBackoffUsesPolicy(t *testing.T) {
	f := &scriptedFactory{}
	var mu sync.Mutex
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}
	p := Policy{Kind: PolicyExponential, MaxAttempts: 4, BaseDelay: time.Second, Multiplier: 3, Cap: time.Minute}
	m := NewManager(f, Options{Policy: p}, logger.Nop(), metrics.Nop{}, WithSleeper(sleep))
	m.Reconnect(context.Background())

	want := []time.Duration{time.Second, 3 * time.Second, 9 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("unexpected sleeps %v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("sleep %d: got %v want %v (%v)", i, delays[i], want[i], delays)
		}
	}
}

func TestReconnectCancelledIsNotFatal(t *testing.T) {
	f := &scriptedFactory{}
	m := newManager(f, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m.Reconnect(ctx) {
		t.Fatalf("expected failure")
	}
	if m.State() == models.StateFatal {
		t.Fatalf("cancellation must not be fatal")
	}
}

func TestReconnectKeepsHealthySession(t *testing.T) {
	f := &scriptedFactory{ok: true}
	m := newManager(f, Options{})
	ctx := context.Background()
	m.Connect(ctx)
	first := m.Session()

	// a caller that saw Degraded before another reconnect finished
	if !m.Reconnect(ctx) {
		t.Fatalf("expected reconnect to report success")
	}
	if m.Session() != first || f.count() != 1 {
		t.Fatalf("healthy session replaced: sessions=%d", f.count())
	}
	if first.(*fakeSession).closed.Load() {
		t.Fatalf("healthy session must stay open")
	}

	first.(*fakeSession).healthy.Store(false)
	if !m.Reconnect(ctx) {
		t.Fatalf("expected reconnect after failed probe")
	}
	if m.Session() == first || f.count() != 2 {
		t.Fatalf("unhealthy session should be replaced: sessions=%d", f.count())
	}
}

func TestClosedManagerOpensNoSessions(t *testing.T) {
	f := &scriptedFactory{ok: true}
	m := newManager(f, Options{})
	ctx := context.Background()
	m.Connect(ctx)
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if m.EnsureConnected(ctx) || m.Reconnect(ctx) {
		t.Fatalf("closed manager must not reconnect")
	}
	if got := m.Connect(ctx); got != models.StateDisconnected {
		t.Fatalf("connect after close: %s", got)
	}
	if f.count() != 1 || m.Session() != nil {
		t.Fatalf("no session expected after close, created=%d", f.count())
	}
	if m.State() == models.StateFatal {
		t.Fatalf("close must not be fatal")
	}
}

func TestCloseDuringConnectDiscardsSession(t *testing.T) {
	f := &blockingFactory{scriptedFactory: scriptedFactory{ok: true}, release: make(chan struct{})}
	m := newManager(f, Options{})

	done := make(chan models.ConnectionState, 1)
	go func() { done <- m.Connect(context.Background()) }()
	for f.inflight.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	close(f.release)

	if got := <-done; got != models.StateDisconnected {
		t.Fatalf("connect racing close: %s", got)
	}
	if m.Session() != nil {
		t.Fatalf("session installed after close")
	}
	if !f.last().closed.Load() {
		t.Fatalf("late session should be closed")
	}
}
