package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/IvanBrykalov/linkcache/store/breaker"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(body), 0o600))
	return file
}

func startApp(t *testing.T, configFile string) *App {
	t.Helper()

	var app *App
	fxApp := fxtest.New(t,
		Module,
		fx.Provide(func() context.Context { return context.Background() }),
		fx.Provide(
			fx.Annotate(
				func() string { return configFile },
				fx.ResultTags(`name:"configFile"`),
			),
		),
		fx.Populate(&app),
		fx.NopLogger,
	)
	fxApp.RequireStart()
	t.Cleanup(fxApp.RequireStop)
	return app
}

func TestModule_MemoryDriver(t *testing.T) {
	app := startApp(t, writeConfig(t, `
cache:
  max_entries: 10
store:
  driver: memory
log:
  level: error
`))

	require.Equal(t, 10, app.Cache.MaxEntries())
	_, ok := app.Store.(*breaker.Store)
	require.True(t, ok, "store must be guarded by the breaker")

	migrated, err := app.InitSchema(context.Background())
	require.NoError(t, err)
	require.False(t, migrated)

	id, err := app.Service.Shorten(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	loc, err := app.Service.Lookup(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/x", loc)

	mfs, err := app.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	require.True(t, names["linkcache_cache_hits_total"])
	require.True(t, names["go_goroutines"])
}

func TestModule_SQLiteDriver(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "db", "links.sqlite")
	app := startApp(t, writeConfig(t, `
store:
  driver: sqlite
  dsn: `+dsn+`
log:
  level: error
`))

	migrated, err := app.InitSchema(context.Background())
	require.NoError(t, err)
	require.True(t, migrated)

	id1, err := app.Service.Shorten(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	id2, err := app.Service.Shorten(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestModule_BadConfigFailsStart(t *testing.T) {
	configFile := writeConfig(t, "store:\n  driver: postgres\n")

	app := fx.New(
		Module,
		fx.Provide(func() context.Context { return context.Background() }),
		fx.Provide(
			fx.Annotate(
				func() string { return configFile },
				fx.ResultTags(`name:"configFile"`),
			),
		),
		fx.Invoke(func(*App) {}),
		fx.NopLogger,
	)
	require.Error(t, app.Err())
}
