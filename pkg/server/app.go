package server

import (
	"context"
	"errors"
	"io"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/pkg/logger"
)

// BotRunner is the blocking trading loop.
type BotRunner interface {
	Run(ctx context.Context) error
}

// Notifications is the async delivery worker.
type Notifications interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// HTTPServer is the optional status surface.
type HTTPServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// App encapsulates the application lifecycle.
type App struct {
	bot     BotRunner
	notify  Notifications
	http    HTTPServer
	session io.Closer
	log     *logger.Logger
	grace   time.Duration
}

// New creates a new App. http may be nil.
func New(bot BotRunner, notify Notifications, http HTTPServer, session io.Closer, log *logger.Logger, grace time.Duration) *App {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &App{bot: bot, notify: notify, http: http, session: session, log: log.Component("app"), grace: grace}
}

// Run starts everything and blocks until ctx is cancelled or the bot stops on its own.
// It returns models.ErrReconnectExhausted when the session could not be kept alive.
func (a *App) Run(ctx context.Context) error {
	a.notify.Start(ctx)

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			a.log.Error("http server start error", logger.Error(err))
			return err
		}
	}

	err := a.bot.Run(ctx)
	if errors.Is(err, models.ErrReconnectExhausted) {
		a.log.Error("bot stopped: reconnect exhausted", logger.Error(err))
	} else if err != nil {
		a.log.Error("bot stopped with error", logger.Error(err))
	}

	a.shutdown()
	return err
}

// shutdown stops the outer surfaces first and flushes queued notifications last,
// so the shutdown alert gets a chance to go out.
func (a *App) shutdown() {
	a.log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), a.grace)
	defer cancel()

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Warn("http shutdown error", logger.Error(err))
		}
	}
	if err := a.notify.Stop(ctx); err != nil {
		a.log.Warn("notification flush incomplete", logger.Error(err))
	}
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.log.Warn("session close error", logger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
