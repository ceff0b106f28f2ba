package bootstrap

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/internal/config"
	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
	"github.com/IvanBrykalov/linkcache/shortener"
	"github.com/IvanBrykalov/linkcache/store"
)

// App bundles the wired components for the CLI commands.
type App struct {
	Config   config.Config
	Ctx      context.Context
	Cache    *cache.Cache
	Sweeper  *cache.Sweeper
	Store    store.Store
	Service  *shortener.Service
	Registry *prometheus.Registry
}

func provideApp(
	cfg config.Config,
	lctx LogContext,
	c *cache.Cache,
	sw *cache.Sweeper,
	st store.Store,
	svc *shortener.Service,
	reg *prometheus.Registry,
) *App {
	return &App{
		Config:   cfg,
		Ctx:      lctx.Context,
		Cache:    c,
		Sweeper:  sw,
		Store:    st,
		Service:  svc,
		Registry: reg,
	}
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// InitSchema migrates the store schema. Drivers without a schema report
// false.
func (a *App) InitSchema(ctx context.Context) (bool, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))

	st := a.Store
	for {
		u, ok := st.(interface{ Unwrap() store.Store })
		if !ok {
			break
		}
		st = u.Unwrap()
	}
	m, ok := st.(migrator)
	if !ok {
		logging.Info(logCtx, "store has no schema to migrate", slog.String("driver", a.Config.Store.Driver))
		return false, nil
	}

	logging.Info(logCtx, "start schema migration")
	if err := m.Migrate(ctx); err != nil {
		return false, errs.Wrap(err, "migrate store schema")
	}
	logging.Info(logCtx, "schema migration completed")
	return true, nil
}
