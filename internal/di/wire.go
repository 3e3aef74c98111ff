//go:build wireinject
// +build wireinject

package di

import (
	"TradeSentinel/pkg/config"
	"TradeSentinel/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideLocation,

		// Broker session
		ProvideSessionFactory,
		ProvideConnectionManager,
		ProvideSessionProvider,

		// Strategy
		ProvideIndicatorEngine,
		ProvideSignalEvaluator,
		ProvideCooldownStore,
		ProvideDeduplicator,

		// Notifications
		ProvideChannels,
		ProvideNotifyPipeline,
		ProvideNotifier,

		// Use cases
		ProvideTradeLifecycle,
		ProvideTradeExecutor,
		ProvideMarketScanner,
		ProvideBot,

		// Status surface
		ProvideStatusHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
