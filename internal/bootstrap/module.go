// Package bootstrap wires the linkcache components with fx.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/internal/config"
	"github.com/IvanBrykalov/linkcache/internal/logging"
	"github.com/IvanBrykalov/linkcache/metrics/prom"
	"github.com/IvanBrykalov/linkcache/shortener"
	"github.com/IvanBrykalov/linkcache/store"
	"github.com/IvanBrykalov/linkcache/store/breaker"
	"github.com/IvanBrykalov/linkcache/store/memstore"
	"github.com/IvanBrykalov/linkcache/store/redisstore"
	"github.com/IvanBrykalov/linkcache/store/sqlstore"
)

// Module provides every component. The caller supplies a context.Context
// and the config file path tagged name:"configFile".
var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideLogContext),
	fx.Provide(provideRegistry),
	fx.Provide(provideMetrics),
	fx.Provide(provideStore),
	fx.Provide(provideCache),
	fx.Provide(provideSweeper),
	fx.Provide(provideService),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

// LogContext is the caller's context with the configured logger attached.
type LogContext struct{ context.Context }

func provideLogContext(ctx context.Context, cfg config.Config) LogContext {
	return LogContext{logging.WithLogger(ctx, logging.New(os.Stderr, cfg.Log.Level))}
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *prom.Adapter {
	return prom.New(reg, "linkcache", "cache", nil)
}

func provideStore(lc fx.Lifecycle, lctx LogContext, cfg config.Config) (store.Store, error) {
	ctx := logging.WithAttrs(lctx, slog.String("component", "bootstrap.store"))

	raw, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	guarded := breaker.New(ctx, raw, breaker.Config{
		Name:        cfg.Store.Driver,
		MaxFailures: cfg.Store.Breaker.MaxFailures,
		OpenTimeout: cfg.Store.Breaker.OpenTimeout,
		Timeout:     cfg.Store.Timeout,
	})

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logging.Info(ctx, "closing store", slog.String("driver", cfg.Store.Driver))
			return guarded.Close()
		},
	})
	return guarded, nil
}

// OpenStore opens the driver named by cfg.Driver without any decoration.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlstore.Open(ctx, cfg.DSN)
	case config.DriverRedis:
		return redisstore.Dial(ctx, cfg.RedisAddr)
	case config.DriverMemory:
		return memstore.New(nil), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func provideCache(lc fx.Lifecycle, cfg config.Config, m *prom.Adapter) *cache.Cache {
	c := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		Shards:     cfg.Cache.Shards,
		DefaultTTL: cfg.Cache.TTL,
		Metrics:    m,
	})
	lc.Append(fx.StopHook(c.Close))
	return c
}

// provideSweeper binds the sweeper to the cache and the store's
// housekeeping. It runs for the lifetime of the fx app, on the caller's
// context rather than the start hook's, which is cancelled after start.
func provideSweeper(lc fx.Lifecycle, lctx LogContext, cfg config.Config, c *cache.Cache, st store.Store) *cache.Sweeper {
	sw := cache.NewSweeper(c, cache.SweeperConfig{
		Interval: cfg.Cache.SweepInterval,
		Purger:   st,
	})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sw.Start(lctx)
			return nil
		},
		OnStop: func(context.Context) error {
			sw.Stop()
			return nil
		},
	})
	return sw
}

func provideService(cfg config.Config, c *cache.Cache, st store.Store) *shortener.Service {
	return shortener.New(c, st, shortener.Options{
		NewID:             shortener.NanoID(cfg.Shortener.IDLength),
		KeepExpiryOnReuse: !cfg.Shortener.RefreshOnReuse,
	})
}
