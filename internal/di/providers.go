package di

import (
	"context"
	"fmt"
	"time"

	"TradeSentinel/internal/domain/repository"
	domsvc "TradeSentinel/internal/domain/service"
	"TradeSentinel/internal/handler/api"
	mid "TradeSentinel/internal/middleware"
	internalrepo "TradeSentinel/internal/repository"
	"TradeSentinel/internal/service/broker"
	"TradeSentinel/internal/service/connection"
	"TradeSentinel/internal/service/dedup"
	"TradeSentinel/internal/service/notify"
	"TradeSentinel/internal/services/indicators"
	"TradeSentinel/internal/services/signal"
	"TradeSentinel/internal/usecase"
	"TradeSentinel/pkg/cache"
	pkgch "TradeSentinel/pkg/clickhouse"
	"TradeSentinel/pkg/config"
	xhttp "TradeSentinel/pkg/http"
	pkgkafka "TradeSentinel/pkg/kafka"
	"TradeSentinel/pkg/logger"
	"TradeSentinel/pkg/metrics"
	"TradeSentinel/pkg/server"

	"github.com/shopspring/decimal"
)

const serviceName = "tradesentinel"

// ProvideLogger creates the root logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("service", serviceName), logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideLocation resolves the timezone used in operator messages.
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Notify.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// ProvideSessionFactory selects the gateway or the paper broker.
func ProvideSessionFactory(cfg *config.Config, log *logger.Logger) (repository.SessionFactory, error) {
	b := cfg.Broker
	return broker.NewFactory(b.Type,
		broker.GatewayConfig{
			URL:            b.URL,
			Email:          b.Email,
			Password:       b.Password,
			RequestTimeout: b.RequestTimeout,
			PingInterval:   b.PingInterval,
		},
		broker.PaperConfig{
			Balance:   b.Paper.Balance,
			Payout:    b.Paper.Payout,
			Seed:      b.Paper.Seed,
			NoPrimary: b.Paper.NoPrimary,
		},
		log,
	)
}

// ProvideConnectionManager creates the single owner of the broker session.
func ProvideConnectionManager(factory repository.SessionFactory, cfg *config.Config, log *logger.Logger, m repository.Metrics) *connection.Manager {
	c := cfg.Connection
	return connection.NewManager(factory, connection.Options{
		AccountMode:        cfg.Broker.AccountMode,
		StabilizationDelay: c.StabilizationDelay,
		FailureThreshold:   c.FailureThreshold,
		ClockSkewWarn:      c.ClockSkewWarn,
		Policy: connection.Policy{
			Kind:        c.Reconnect.Policy,
			MaxAttempts: c.Reconnect.MaxAttempts,
			BaseDelay:   c.Reconnect.BaseDelay,
			Multiplier:  c.Reconnect.Multiplier,
			Cap:         c.Reconnect.Cap,
		},
	}, log, m)
}

func ProvideSessionProvider(m *connection.Manager) repository.SessionProvider { return m }

// ProvideCooldownStore returns the in-memory store, or Redis when dedup.backend is redis.
func ProvideCooldownStore(cfg *config.Config) (repository.CooldownStore, func(), error) {
	if cfg.Dedup.Backend != "redis" {
		return dedup.NewMemoryStore(), func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cooldown store: %w", err)
	}
	return dedup.NewRedisStore(rc), func() { _ = rc.Close() }, nil
}

func ProvideDeduplicator(store repository.CooldownStore, cfg *config.Config, log *logger.Logger) domsvc.Deduplicator {
	return dedup.New(store, cfg.Dedup.Cooldown, dedup.Mode(cfg.Dedup.Mode), log)
}

func ProvideIndicatorEngine(cfg *config.Config) domsvc.IndicatorEngine {
	s := cfg.Strategy
	return indicators.NewEngine(indicators.Params{
		RSIPeriod:       s.RSIPeriod,
		BollingerPeriod: s.BollingerPeriod,
		BollingerDev:    s.BollingerDev,
		EMAPeriod:       s.EMAPeriod,
		AvgBodyPeriod:   s.AvgBodyPeriod,
	})
}

func ProvideSignalEvaluator(cfg *config.Config) domsvc.SignalEvaluator {
	s := cfg.Strategy
	return signal.NewEvaluator(signal.Rules{
		Overbought:      s.RSIOverbought,
		Oversold:        s.RSIOversold,
		MinStreak:       s.MinStreak,
		WickRatio:       s.WickRatio,
		MaxBodyMultiple: s.MaxBodyMultiple,
	})
}

// ProvideChannels builds every configured notification channel.
// Chat channels are enabled by the presence of their credentials.
func ProvideChannels(cfg *config.Config, log *logger.Logger) ([]repository.Channel, func(), error) {
	n := cfg.Notify
	var chans []repository.Channel
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if n.Telegram.Token != "" && n.Telegram.ChatID != "" {
		hc := xhttp.NewClient(xhttp.WithTimeout(n.Telegram.Timeout))
		chans = append(chans, notify.NewTelegram(hc, n.Telegram.BaseURL, n.Telegram.Token, n.Telegram.ChatID))
	}
	if n.WhatsApp.Phone != "" && n.WhatsApp.APIKey != "" {
		hc := xhttp.NewClient(xhttp.WithTimeout(n.WhatsApp.Timeout))
		chans = append(chans, notify.NewWhatsApp(hc, n.WhatsApp.BaseURL, n.WhatsApp.Phone, n.WhatsApp.APIKey))
	}

	if n.Kafka.Enabled {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(n.Kafka.Brokers),
			pkgkafka.WithTopic(n.Kafka.Topic),
			pkgkafka.WithRequiredAcks(n.Kafka.RequiredAcks),
			pkgkafka.WithCompression(n.Kafka.Compression),
			pkgkafka.WithMaxAttempts(n.Kafka.MaxAttempts),
			pkgkafka.WithWriteTimeout(n.Kafka.WriteTimeout),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		pub := internalrepo.NewKafkaEventPublisher(producer)
		chans = append(chans, pub)
		closers = append(closers, func() { _ = pub.Close() })
	}

	if n.Journal.Enabled {
		j := n.Journal
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// connect to the default database; the journal table is fully qualified
		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(j.Host),
			pkgch.WithPort(j.Port),
			pkgch.WithCredentials(j.User, j.Password),
			pkgch.WithHTTP(j.UseHTTP),
			pkgch.WithTimeouts(j.DialTimeout, 10*time.Second),
			pkgch.WithAsyncInsert(true),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse journal: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })

		journal, err := internalrepo.NewClickHouseJournal(client.DB(), j.Database, j.Table)
		if err == nil {
			err = client.InitSchema(ctx, journal.Schema())
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse journal: %w", err)
		}
		chans = append(chans, journal)
	}

	names := make([]string, 0, len(chans))
	for _, c := range chans {
		names = append(names, c.Name())
	}
	log.Info("notification channels ready", logger.Strings("channels", names))
	return chans, cleanup, nil
}

func ProvideNotifyPipeline(chans []repository.Channel, m repository.Metrics, log *logger.Logger, cfg *config.Config) *mid.NotifyPipeline {
	return mid.NewNotifyPipeline(chans, m, log,
		mid.WithBufferSize(cfg.Notify.BufferSize),
		mid.WithRate(cfg.Notify.RatePerMin, cfg.Notify.Burst),
	)
}

func ProvideNotifier(p *mid.NotifyPipeline) repository.Notifier { return p }

func ProvideTradeLifecycle(conn repository.SessionProvider, n repository.Notifier, m repository.Metrics, log *logger.Logger, cfg *config.Config) *usecase.TradeLifecycle {
	t := cfg.Trading
	return usecase.NewTradeLifecycle(conn, n, m, log, usecase.LifecycleConfig{
		Investment:       decimal.NewFromFloat(t.Investment),
		DurationMinutes:  t.DurationMinutes,
		SettlementBuffer: t.SettlementBuffer,
		BalanceRetries:   t.BalanceRetries,
	})
}

func ProvideTradeExecutor(l *usecase.TradeLifecycle) domsvc.TradeExecutor { return l }

func ProvideMarketScanner(
	conn repository.SessionProvider,
	engine domsvc.IndicatorEngine,
	eval domsvc.SignalEvaluator,
	dd domsvc.Deduplicator,
	exec domsvc.TradeExecutor,
	n repository.Notifier,
	m repository.Metrics,
	log *logger.Logger,
	cfg *config.Config,
	loc *time.Location,
) *usecase.MarketScanner {
	s := cfg.Scanner
	return usecase.NewMarketScanner(conn, engine, eval, dd, exec, n, m, log, usecase.ScannerConfig{
		Instruments:       s.Instruments,
		Timeframe:         repository.NormalizeTimeframe(s.TimeframeSeconds),
		CandleCount:       s.CandleCount,
		CompletenessRatio: s.CompletenessRatio,
		FetchRetries:      s.FetchRetries,
		FetchRetryDelay:   s.FetchRetryDelay,
		Location:          loc,
	})
}

func ProvideBot(
	conn repository.SessionProvider,
	scanner *usecase.MarketScanner,
	lifecycle *usecase.TradeLifecycle,
	n repository.Notifier,
	log *logger.Logger,
	cfg *config.Config,
	loc *time.Location,
) *usecase.Bot {
	return usecase.NewBot(conn, scanner, lifecycle, n, log, usecase.BotConfig{
		ScanInterval: cfg.Scanner.ScanInterval,
		AccountMode:  cfg.Broker.AccountMode,
		Location:     loc,
	})
}

func ProvideStatusHandler(
	log *logger.Logger,
	conn *connection.Manager,
	scanner *usecase.MarketScanner,
	lifecycle *usecase.TradeLifecycle,
	bot *usecase.Bot,
	cfg *config.Config,
) *api.StatusEchoHandler {
	return api.NewStatusEchoHandler(log, conn, scanner, lifecycle, bot, api.StatusInfo{
		Service:     serviceName,
		Environment: cfg.Environment,
		AccountMode: cfg.Broker.AccountMode,
		Debug:       debugInfo(cfg),
	})
}

// debugInfo reports which settings are present without exposing values.
func debugInfo(cfg *config.Config) map[string]interface{} {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return map[string]interface{}{
		"port":            cfg.Server.Port,
		"broker_type":     cfg.Broker.Type,
		"email_set":       cfg.Broker.Email != "",
		"broker_password": mask(cfg.Broker.Password),
		"telegram_set":    cfg.Notify.Telegram.Token != "",
		"whatsapp_set":    cfg.Notify.WhatsApp.APIKey != "",
		"whatsapp_key":    mask(cfg.Notify.WhatsApp.APIKey),
		"kafka_enabled":   cfg.Notify.Kafka.Enabled,
		"journal_enabled": cfg.Notify.Journal.Enabled,
		"dedup_backend":   cfg.Dedup.Backend,
		"instruments":     len(cfg.Scanner.Instruments),
	}
}

// ProvideHTTPServer returns nil when server.enabled is false.
func ProvideHTTPServer(h *api.StatusEchoHandler, log *logger.Logger, cfg *config.Config) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, log,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(path, nil, nil),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	bot *usecase.Bot,
	pipeline *mid.NotifyPipeline,
	httpServer *xhttp.Server,
	conn *connection.Manager,
	log *logger.Logger,
) *server.App {
	var hs server.HTTPServer
	if httpServer != nil {
		hs = httpServer
	}
	return server.New(bot, pipeline, hs, conn, log, cfg.Server.ShutdownTimeout)
}
