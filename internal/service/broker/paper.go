package broker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"TradeSentinel/internal/domain/models"
	drepo "TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errPaperDisconnected = errors.New("paper: session not connected")

// PaperConfig configures the simulated account.
type PaperConfig struct {
	Balance float64
	Payout  float64
	Seed    int64
	// Instruments listed here reject Primary orders, exercising the fallback path.
	NoPrimary []string
}

type paperPosition struct {
	id        string
	amount    decimal.Decimal
	expiresAt time.Time
}

// PaperAccount is the simulated account shared by every PaperSession, so the
// balance survives reconnects.
type PaperAccount struct {
	mu        sync.Mutex
	rng       *rand.Rand
	seed      int64
	balance   decimal.Decimal
	payout    decimal.Decimal
	noPrimary map[string]bool
	open      []paperPosition
	now       func() time.Time
}

func NewPaperAccount(cfg PaperConfig) *PaperAccount {
	np := make(map[string]bool, len(cfg.NoPrimary))
	for _, s := range cfg.NoPrimary {
		np[s] = true
	}
	return &PaperAccount{
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		seed:      cfg.Seed,
		balance:   decimal.NewFromFloat(cfg.Balance),
		payout:    decimal.NewFromFloat(cfg.Payout),
		noPrimary: np,
		now:       time.Now,
	}
}

// NewSession returns an unconnected session on this account.
func (a *PaperAccount) NewSession() drepo.BrokerSession {
	return &PaperSession{acct: a}
}

// settle pays out every expired position. Caller holds mu.
func (a *PaperAccount) settle() {
	now := a.now()
	keep := a.open[:0]
	for _, p := range a.open {
		if now.Before(p.expiresAt) {
			keep = append(keep, p)
			continue
		}
		if a.rng.Intn(2) == 0 {
			a.balance = a.balance.Add(p.amount.Mul(decimal.NewFromInt(1).Add(a.payout)))
		}
	}
	a.open = keep
}

// PaperSession simulates the brokerage for dry runs.
type PaperSession struct {
	acct *PaperAccount

	mu        sync.RWMutex
	connected bool
	mode      string
}

func (s *PaperSession) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *PaperSession) IsHealthy(context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *PaperSession) SelectAccountMode(_ context.Context, mode string) error {
	switch strings.ToUpper(mode) {
	case "PRACTICE", "REAL", "TOURNAMENT":
	default:
		return fmt.Errorf("paper: unknown account mode %q", mode)
	}
	s.mu.Lock()
	s.mode = strings.ToUpper(mode)
	s.mu.Unlock()
	return nil
}

func (s *PaperSession) Balance(context.Context) (decimal.Decimal, error) {
	if !s.IsHealthy(context.Background()) {
		return decimal.Zero, errPaperDisconnected
	}
	s.acct.mu.Lock()
	defer s.acct.mu.Unlock()
	s.acct.settle()
	return s.acct.balance, nil
}

func (s *PaperSession) ServerTime(context.Context) (time.Time, error) {
	if !s.IsHealthy(context.Background()) {
		return time.Time{}, errPaperDisconnected
	}
	return s.acct.now().UTC(), nil
}

// FetchCandles generates a random walk that is stable for a given
// (instrument, bar) pair, so repeated fetches agree on history.
func (s *PaperSession) FetchCandles(_ context.Context, instrument string, tf drepo.Timeframe, count int, asOf time.Time) ([]models.Candle, error) {
	if !s.IsHealthy(context.Background()) {
		return nil, errPaperDisconnected
	}
	if count <= 0 {
		return nil, nil
	}
	end := util.AlignToTimeframe(asOf, tf.Duration())
	h := fnv.New64a()
	_, _ = h.Write([]byte(instrument))
	rng := rand.New(rand.NewSource(int64(h.Sum64()) ^ s.acct.seed ^ end.Unix()))

	bars := make([]models.Candle, count)
	price := 1 + rng.Float64()
	for i := 0; i < count; i++ {
		open := price
		price *= 1 + (rng.Float64()-0.5)*0.002
		hi := maxf(open, price) * (1 + rng.Float64()*0.0005)
		lo := minf(open, price) * (1 - rng.Float64()*0.0005)
		bars[i] = models.Candle{
			Time:  end.Add(-time.Duration(count-1-i) * tf.Duration()),
			Open:  open,
			High:  hi,
			Low:   lo,
			Close: price,
		}
	}
	return bars, nil
}

func (s *PaperSession) PlaceOrder(_ context.Context, class models.OrderClass, req models.OrderRequest) (string, bool, error) {
	if !s.IsHealthy(context.Background()) {
		return "", false, errPaperDisconnected
	}
	a := s.acct
	a.mu.Lock()
	defer a.mu.Unlock()
	if class == models.OrderClassPrimary && a.noPrimary[req.Instrument] {
		return "", false, nil
	}
	if req.Amount.Sign() <= 0 || req.Amount.GreaterThan(a.balance) {
		return "", false, nil
	}
	id := uuid.NewString()
	a.balance = a.balance.Sub(req.Amount)
	a.open = append(a.open, paperPosition{
		id:        id,
		amount:    req.Amount,
		expiresAt: a.now().Add(time.Duration(req.Duration) * time.Minute),
	})
	return id, true, nil
}

func (s *PaperSession) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
