package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"TradeSentinel/internal/domain/models"
	drepo "TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/logger"

	"github.com/shopspring/decimal"
)

// BotConfig holds the outer loop settings.
type BotConfig struct {
	ScanInterval time.Duration
	AccountMode  string
	Location     *time.Location
}

type cycleRunner interface {
	ScanOnce(ctx context.Context) (int, error)
}

type monitorCounter interface {
	InFlight() int
}

// Bot drives scan cycles until the context ends or the connection goes Fatal.
type Bot struct {
	conn     drepo.SessionProvider
	scanner  cycleRunner
	monitors monitorCounter
	notifier drepo.Notifier
	log      *logger.Logger
	cfg      BotConfig

	running atomic.Bool
	cycles  atomic.Int64
	started atomic.Int64
}

func NewBot(conn drepo.SessionProvider, scanner *MarketScanner, lifecycle *TradeLifecycle, notifier drepo.Notifier, log *logger.Logger, cfg BotConfig) *Bot {
	return newBot(conn, scanner, lifecycle, notifier, log, cfg)
}

func newBot(conn drepo.SessionProvider, scanner cycleRunner, monitors monitorCounter, notifier drepo.Notifier, log *logger.Logger, cfg BotConfig) *Bot {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	return &Bot{
		conn:     conn,
		scanner:  scanner,
		monitors: monitors,
		notifier: notifier,
		log:      log.Component("bot"),
		cfg:      cfg,
	}
}

// Run blocks until ctx is cancelled (nil error) or reconnects are exhausted
// (models.ErrReconnectExhausted). Open trade monitors are left running.
func (b *Bot) Run(ctx context.Context) error {
	b.running.Store(true)
	b.started.Store(time.Now().Unix())
	defer b.running.Store(false)

	if !b.conn.EnsureConnected(ctx) {
		if ctx.Err() != nil {
			return nil
		}
		err := fmt.Errorf("initial connect: %s: %w", b.conn.State(), models.ErrReconnectExhausted)
		b.notify(ctx, fatalNotification(err, time.Now().UTC()))
		return err
	}
	defer func() {
		n := b.monitors.InFlight()
		b.log.Info("bot stopped", logger.Int("monitors_abandoned", n))
		b.notify(context.WithoutCancel(ctx), shutdownNotification(n, time.Now().UTC(), b.cfg.Location))
	}()

	var bal decimal.Decimal
	if sess := b.conn.Session(); sess != nil {
		var err error
		if bal, err = sess.Balance(ctx); err != nil {
			b.log.Warn("startup balance unavailable", logger.Error(err))
		}
	}
	b.notify(ctx, startupNotification(bal, b.cfg.AccountMode, time.Now().UTC(), b.cfg.Location))
	b.log.Info("bot started", logger.Duration("scan_interval_ms", b.cfg.ScanInterval))

	ticker := time.NewTicker(b.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		if _, err := b.scanner.ScanOnce(ctx); err != nil {
			if errors.Is(err, models.ErrReconnectExhausted) {
				b.log.Error("connection fatal, stopping", logger.Error(err))
				b.notify(ctx, fatalNotification(err, time.Now().UTC()))
				return err
			}
			b.log.Error("scan cycle failed", logger.Error(err))
		}
		b.cycles.Add(1)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Running reports whether Run is active.
func (b *Bot) Running() bool { return b.running.Load() }

// Cycles returns the number of completed scan cycles.
func (b *Bot) Cycles() int64 { return b.cycles.Load() }

// StartedAt returns when Run was last entered.
func (b *Bot) StartedAt() time.Time {
	if s := b.started.Load(); s > 0 {
		return time.Unix(s, 0).UTC()
	}
	return time.Time{}
}

func (b *Bot) notify(ctx context.Context, n models.Notification) {
	if err := b.notifier.Notify(ctx, n); err != nil {
		b.log.Warn("notification dropped", logger.String("kind", string(n.Kind)), logger.Error(err))
	}
}
