package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/salesfeed/internal/config"
	"github.com/rickgao/salesfeed/internal/connection"
	"github.com/rickgao/salesfeed/internal/database"
	"github.com/rickgao/salesfeed/internal/model"
	"github.com/rickgao/salesfeed/internal/notify"
	"github.com/rickgao/salesfeed/internal/poller"
	"github.com/rickgao/salesfeed/internal/router"
	"github.com/rickgao/salesfeed/internal/stats"
	"github.com/rickgao/salesfeed/internal/writer"
)

// App holds every component of a running instance. Optional components are
// nil when disabled in config.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	router   router.Router
	stats    *stats.Client
	redis    *stats.RedisStore
	session  *connection.Session
	poller   *poller.Poller
	pool     *pgxpool.Pool
	writer   *writer.SaleWriter
	notifier *notify.Notifier
	health   *http.Server
}

// NewApp builds the components described by cfg. The database, when
// enabled, is connected and its schema applied here.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	a.router = router.NewRouter(router.DefaultRouterConfig(), logger)

	store, err := a.newStatsStore(ctx)
	if err != nil {
		return nil, err
	}
	a.stats = stats.NewClient(cfg.API.HTTPURL, cfg.API.APIKey,
		stats.WithLogger(logger),
		stats.WithTimeout(cfg.API.Timeout),
		stats.WithAPIKeyHeader(cfg.API.APIKeyHeader),
		stats.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		stats.WithTTL(cfg.Stats.TTL),
		stats.WithStore(store),
		stats.WithBreaker(stats.BreakerConfig{
			MaxFailures: cfg.Stats.Breaker.MaxFailures,
			OpenTimeout: cfg.Stats.Breaker.OpenTimeout,
		}),
	)

	a.session = connection.NewSession(sessionConfig(cfg), a.router, logger)

	if cfg.Poller.Enabled {
		a.poller = poller.New(poller.Config{
			Interval:    cfg.Poller.Interval,
			Concurrency: cfg.Poller.Concurrency,
			Timeout:     cfg.Poller.Timeout,
		}, a.stats, a.session.Registry(), poller.StatsHandlerFunc(a.logFloor), logger)
	}

	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database.Postgres, cfg.Instance.ID)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		if err := database.EnsureSchema(ctx, pool); err != nil {
			a.closeStores()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}

		a.writer = writer.NewSaleWriter(writer.WriterConfig{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval,
			BufferSize:    cfg.Writers.BufferSize,
		}, pool, logger)
		a.router.On(router.AnyTransaction, a.writer.Listener())
	}

	if cfg.Notify.WebhookURL != "" {
		opts := []notify.Option{
			notify.WithLogger(logger),
			notify.WithTimeout(cfg.Notify.Timeout),
		}
		if cfg.Notify.Enrich {
			opts = append(opts, notify.WithStats(a.stats))
		}
		a.notifier = notify.NewNotifier(cfg.Notify.WebhookURL, opts...)

		patterns := cfg.Notify.Patterns
		if len(patterns) == 0 {
			patterns = []string{router.AnyTransaction}
		}
		for _, p := range patterns {
			a.router.On(p, a.notifier.Listener())
		}
	}

	if cfg.Health.Addr != "" {
		a.health = &http.Server{
			Addr:    cfg.Health.Addr,
			Handler: newHealthHandler(a.healthSources()),
		}
	}

	return a, nil
}

// Start brings components up consumers first, so no event is routed
// before its listeners are running.
func (a *App) Start(ctx context.Context) error {
	if err := a.router.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	if a.writer != nil {
		if err := a.writer.Start(ctx); err != nil {
			return fmt.Errorf("start writer: %w", err)
		}
	}

	if a.health != nil {
		go func() {
			a.logger.Info("starting health server", "addr", a.health.Addr)
			if err := a.health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("health server error", "error", err)
			}
		}()
	}

	if err := a.session.Connect(ctx); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	if err := a.session.Subscribe(a.cfg.Topics...); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if a.poller != nil {
		if err := a.poller.Start(ctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
	}
	return nil
}

// Stop shuts components down producers first and flushes what is queued.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	if err := a.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	if a.poller != nil {
		if err := a.poller.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop poller: %w", err))
		}
	}
	if err := a.router.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop router: %w", err))
	}
	if a.writer != nil {
		if err := a.writer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop writer: %w", err))
		}
	}
	if a.health != nil {
		if err := a.health.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop health server: %w", err))
		}
	}
	a.closeStores()

	a.logger.Info("final stats",
		"session", a.session.Stats(),
		"router", a.router.Stats(),
		"stats", a.stats.Stats(),
	)

	return errors.Join(errs...)
}

func (a *App) newStatsStore(ctx context.Context) (stats.Store, error) {
	switch a.cfg.Stats.Backend {
	case config.BackendRedis:
		a.redis = stats.NewRedisStore(stats.RedisConfig{
			Addr:     a.cfg.Stats.Redis.Addr,
			Password: a.cfg.Stats.Redis.Password,
			DB:       a.cfg.Stats.Redis.DB,
		})
		if err := a.redis.Ping(ctx); err != nil {
			// Store errors fall back to the network, so an unreachable cache is not fatal.
			a.logger.Warn("stats cache unreachable", "addr", a.cfg.Stats.Redis.Addr, "error", err)
		}
		return a.redis, nil
	default:
		store, err := stats.NewMemoryStore(a.cfg.Stats.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create stats cache: %w", err)
		}
		return store, nil
	}
}

func (a *App) closeStores() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close stats cache", "error", err)
		}
		a.redis = nil
	}
}

func (a *App) logFloor(topic string, s model.CollectionStats) error {
	floor, _ := s.FloorPrice()
	a.logger.Debug("stats refreshed",
		"topic", topic,
		"floor", floor.String(),
		"listed", s.NumListed,
	)
	return nil
}

func (a *App) healthSources() healthSources {
	hs := healthSources{session: a.session, stats: a.stats, router: a.router}
	if a.pool != nil {
		hs.db = a.pool
	}
	return hs
}

func sessionConfig(cfg *config.Config) connection.SessionConfig {
	return connection.SessionConfig{
		URL:               cfg.API.WSURL,
		APIKey:            cfg.API.APIKey,
		APIKeyHeader:      cfg.API.APIKeyHeader,
		Subprotocol:       cfg.API.Subprotocol,
		KeepAliveInterval: cfg.Session.KeepAliveInterval,
		AckTimeout:        cfg.Session.AckTimeout,
		PongTimeout:       cfg.Session.PongTimeout,
		ReconnectBaseWait: cfg.Session.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.Session.ReconnectMaxDelay,
		WriteTimeout:      cfg.Session.WriteTimeout,
		BufferSize:        cfg.Session.BufferSize,
	}
}
