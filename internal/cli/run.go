package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/linkcache/internal/bootstrap"
	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
)

func newRunCommand(configFile func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sweeper and store housekeeping until interrupted",
		Long: "Keeps the cache sweeper and the store housekeeping running and, when\n" +
			"metrics.addr is set, serves Prometheus metrics at /metrics.",
		Args: cobra.NoArgs,
		RunE: withApp(configFile, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			ctx := cmd.Context()
			g, ctx := errgroup.WithContext(ctx)

			if addr := app.Config.Metrics.Addr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

				g.Go(func() error {
					logging.Info(ctx, "metrics listener started", slog.String("addr", addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return errs.Wrap(err, "serve metrics")
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				logging.Info(ctx, "shutting down")
				return nil
			})
			return g.Wait()
		}),
	}
}
