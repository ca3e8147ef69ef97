// Package app wires configuration into the running poswatch components.
package app

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/config"
	"github.com/vadiminshakov/poswatch/internal/cache"
	"github.com/vadiminshakov/poswatch/internal/clients"
	"github.com/vadiminshakov/poswatch/internal/markethours"
	"github.com/vadiminshakov/poswatch/internal/metrics"
	"github.com/vadiminshakov/poswatch/internal/notification"
	"github.com/vadiminshakov/poswatch/internal/services/history"
	"github.com/vadiminshakov/poswatch/internal/services/scraper"
	"github.com/vadiminshakov/poswatch/internal/storage/changes"
	"github.com/vadiminshakov/poswatch/internal/storage/snapshots"
	"github.com/vadiminshakov/poswatch/internal/web"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const symbolCachePrefix = "poswatch:symbols:"

// App holds the long-lived components built from one configuration.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    *snapshots.Store
	Feed     *changes.WALStore
	Calendar *markethours.Calendar
	Metrics  *metrics.Metrics
	History  *history.Service

	redis *goredis.Client
}

// NewLogger builds a zap logger from the log section of the configuration.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// New opens the store and the change feed and syncs the configured profiles.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, errors.Wrap(err, "resolve timezone")
	}
	calendar, err := markethours.New(loc, cfg.Holidays)
	if err != nil {
		return nil, errors.Wrap(err, "build market calendar")
	}

	store, err := snapshots.Open(cfg.DBPath, loc)
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot store")
	}

	if len(cfg.Profiles) > 0 {
		if err := store.SyncProfiles(ctx, cfg.Profiles); err != nil {
			_ = store.Close()
			return nil, errors.Wrap(err, "sync profiles")
		}
	}

	feed, err := changes.NewWALStore(cfg.WALDir)
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "open change feed")
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Feed:     feed,
		Calendar: calendar,
		Metrics:  metrics.New(),
	}

	a.History = history.New(store, calendar, logger.Named("history"),
		history.WithSymbolCache(a.symbolCache(ctx)),
		history.WithMetrics(a.Metrics),
		history.WithStaleAfter(cfg.StaleAfter),
	)

	logger.Info("poswatch initialized",
		zap.String("db", cfg.DBPath),
		zap.String("wal", cfg.WALDir),
		zap.Int("profiles", len(cfg.Profiles)),
		zap.String("timezone", loc.String()))

	return a, nil
}

// symbolCache returns the configured suggestion cache. An unreachable Redis
// falls back to an in-process cache.
func (a *App) symbolCache(ctx context.Context) cache.Cache[[]string] {
	ttl := a.Config.Cache.TTL
	if a.Config.Cache.Backend != config.CacheRedis {
		return cache.NewMemory[[]string](ttl)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         a.Config.Cache.RedisAddr,
		Password:     a.Config.Cache.RedisPassword,
		DB:           a.Config.Cache.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	c, err := cache.NewRedis[[]string](ctx, rdb, symbolCachePrefix, ttl, a.Logger)
	if err != nil {
		a.Logger.Warn("redis cache unavailable, using memory cache",
			zap.String("addr", a.Config.Cache.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		return cache.NewMemory[[]string](ttl)
	}
	a.redis = rdb
	return c
}

// Notifier returns the log notifier plus the webhook notifier when configured.
func (a *App) Notifier() notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(a.Logger.Named("notify"))}
	if url := a.Config.Notification.WebhookURL; url != "" {
		n = append(n, notification.NewWebhookNotifier(url, a.Logger.Named("webhook")))
	}
	return n
}

// Scraper builds the feed poller.
func (a *App) Scraper() *scraper.Scraper {
	fc := a.Config.Feed
	client := clients.NewSnapshotClient(fc.URLTemplate, fc.UserAgent, fc.Timeout, fc.MaxRetries, a.Logger.Named("feed"))

	return scraper.New(a.Store, client, a.Calendar, a.Config.PollInterval, a.Logger.Named("scraper"),
		scraper.WithChangeFeed(a.Feed),
		scraper.WithNotifier(a.Notifier()),
		scraper.WithMetrics(a.Metrics),
		scraper.WithRetentionDays(a.Config.RetentionDays),
	)
}

// Server builds the HTTP API server.
func (a *App) Server() *web.Server {
	return web.NewServer(a.Config.Listen, a.History, a.Feed, a.Metrics.Handler(), a.Logger.Named("web"))
}

// Serve runs the API server and, when poll is set, the poller until ctx is
// done or one of them fails.
func (a *App) Serve(ctx context.Context, poll bool) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := a.Server()
	g.Go(func() error {
		return srv.Start(ctx)
	})

	if poll {
		s := a.Scraper()
		g.Go(func() error {
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// Close releases the store, the change feed and the Redis client.
func (a *App) Close() error {
	var first error
	if err := a.Feed.Close(); err != nil {
		first = errors.Wrap(err, "close change feed")
	}
	if err := a.Store.Close(); err != nil && first == nil {
		first = errors.Wrap(err, "close snapshot store")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "close redis")
		}
	}
	return first
}
