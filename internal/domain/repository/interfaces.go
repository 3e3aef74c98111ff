package repository

import (
	"context"
	"time"

	"TradeSentinel/internal/domain/models"

	"github.com/shopspring/decimal"
)

// BrokerSession is one authenticated connection to the brokerage.
// Implementations are not required to be safe for a second Connect after Close.
type BrokerSession interface {
	Connect(ctx context.Context) error
	IsHealthy(ctx context.Context) bool
	SelectAccountMode(ctx context.Context, mode string) error
	Balance(ctx context.Context) (decimal.Decimal, error)
	ServerTime(ctx context.Context) (time.Time, error)
	FetchCandles(ctx context.Context, instrument string, tf Timeframe, count int, asOf time.Time) ([]models.Candle, error)
	// PlaceOrder returns accepted=false (with nil error) when the broker rejects the order class.
	PlaceOrder(ctx context.Context, class models.OrderClass, req models.OrderRequest) (orderID string, accepted bool, err error)
	Close() error
}

// SessionFactory creates a fresh, unconnected session.
type SessionFactory interface {
	NewSession() BrokerSession
}

// SessionFactoryFunc adapts a plain function to SessionFactory.
type SessionFactoryFunc func() BrokerSession

func (f SessionFactoryFunc) NewSession() BrokerSession { return f() }

// SessionProvider exposes the current session and connection health to consumers.
type SessionProvider interface {
	Session() BrokerSession
	EnsureConnected(ctx context.Context) bool
	ReportFailure()
	ReportSuccess()
	State() models.ConnectionState
}

// Notifier delivers an operator message. Errors are for logging only.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Channel is one outbound notification transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, n models.Notification) error
}

// ThrottledChannel is implemented by channels that decide whether the
// notify throttle applies to them. Channels without it are throttled.
type ThrottledChannel interface {
	Channel
	Throttled() bool
}

// CooldownStore keeps the last-fired time per dedup key.
type CooldownStore interface {
	LastFired(ctx context.Context, key string) (time.Time, bool, error)
	SetFired(ctx context.Context, key string, at time.Time, ttl time.Duration) error
}

type Metrics interface {
	RecordScan(signals int, seconds float64)
	RecordSignal(instrument string, direction string)
	RecordSuppressed(instrument string)
	RecordTrade(instrument string, class string)
	RecordOutcome(instrument string, result string, profit float64)
	RecordError(kind string)
	RecordLastPrice(instrument string, price float64)
	RecordLatency(op string, seconds float64)
	SetConnectionState(state string)
	SetMonitorsInFlight(n int)
}
