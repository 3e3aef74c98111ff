package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"TradeSentinel/internal/domain/models"
	drepo "TradeSentinel/internal/domain/repository"

	"github.com/shopspring/decimal"
)

type placeResult struct {
	id       string
	accepted bool
	err      error
}

type fakeSession struct {
	mu         sync.Mutex
	balances   []decimal.Decimal // consumed in order; the last value repeats
	balanceErr error
	candles    map[string][]models.Candle
	fetchErrs  int // fail this many fetches before answering
	fetches    int
	place      map[models.OrderClass]placeResult
	placed     []models.OrderClass
	balanceLog []string
}

func (s *fakeSession) Connect(context.Context) error                   { return nil }
func (s *fakeSession) IsHealthy(context.Context) bool                  { return true }
func (s *fakeSession) SelectAccountMode(context.Context, string) error { return nil }
func (s *fakeSession) ServerTime(context.Context) (time.Time, error)   { return time.Now(), nil }
func (s *fakeSession) Close() error                                    { return nil }

func (s *fakeSession) Balance(context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balanceLog = append(s.balanceLog, "balance")
	if s.balanceErr != nil {
		return decimal.Zero, s.balanceErr
	}
	if len(s.balances) == 0 {
		return decimal.Zero, errors.New("no balance scripted")
	}
	b := s.balances[0]
	if len(s.balances) > 1 {
		s.balances = s.balances[1:]
	}
	return b, nil
}

func (s *fakeSession) FetchCandles(_ context.Context, inst string, _ drepo.Timeframe, _ int, _ time.Time) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErrs > 0 {
		s.fetchErrs--
		return nil, errors.New("timeout")
	}
	return s.candles[inst], nil
}

func (s *fakeSession) PlaceOrder(_ context.Context, class models.OrderClass, _ models.OrderRequest) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placed = append(s.placed, class)
	s.balanceLog = append(s.balanceLog, "place:"+string(class))
	r := s.place[class]
	return r.id, r.accepted, r.err
}

type fakeConn struct {
	mu        sync.Mutex
	sess      drepo.BrokerSession
	state     models.ConnectionState
	ensureOK  bool
	ensures   int
	failures  int
	successes int
}

func newFakeConn(s drepo.BrokerSession) *fakeConn {
	return &fakeConn{sess: s, state: models.StateConnected, ensureOK: true}
}

func (c *fakeConn) Session() drepo.BrokerSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// drop clears the session the way a closed manager does.
func (c *fakeConn) drop() {
	c.mu.Lock()
	c.sess = nil
	c.state = models.StateDisconnected
	c.mu.Unlock()
}

func (c *fakeConn) EnsureConnected(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensures++
	return c.ensureOK
}

func (c *fakeConn) ReportFailure() {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}

func (c *fakeConn) ReportSuccess() {
	c.mu.Lock()
	c.successes++
	c.mu.Unlock()
}

func (c *fakeConn) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *fakeNotifier) kinds() []models.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationKind, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.Kind
	}
	return out
}

func (n *fakeNotifier) count(kind models.NotificationKind) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}
