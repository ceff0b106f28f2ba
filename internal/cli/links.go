package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/linkcache/internal/bootstrap"
	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
)

func newShortenCommand(configFile func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "shorten <url>...",
		Short: "Create or reuse short ids for URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(configFile, func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			ctx := cmd.Context()
			for _, locator := range args {
				id, err := app.Service.Shorten(ctx, locator)
				if err != nil {
					return errs.Wrapf(err, "shorten %q", locator)
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), shortLink(app.Config.Shortener.BaseURL, id)); err != nil {
					return errs.Wrap(err, "write shorten output")
				}
			}
			return nil
		}),
	}
}

func newResolveCommand(configFile func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>...",
		Short: "Print the URL and expiration behind short ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(configFile, func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			ctx := cmd.Context()
			for _, id := range args {
				rec, err := app.Service.Resolve(ctx, id)
				if err != nil {
					return errs.Wrapf(err, "resolve %q", id)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					rec.ID, rec.Locator, rec.ExpiresAt.UTC().Format(time.RFC3339)); err != nil {
					return errs.Wrap(err, "write resolve output")
				}
			}
			return nil
		}),
	}
}

func newPurgeCommand(configFile func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired links from the store",
		Args:  cobra.NoArgs,
		RunE: withApp(configFile, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			ctx := cmd.Context()
			n, err := app.Store.DeleteExpired(ctx, time.Now())
			if err != nil {
				return errs.Wrap(err, "delete expired links")
			}
			logging.Info(ctx, "purge finished", slog.Int64("deleted", n))
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired links\n", n); err != nil {
				return errs.Wrap(err, "write purge output")
			}
			return nil
		}),
	}
}

func newInitDBCommand(configFile func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Initialize the store schema",
		Args:  cobra.NoArgs,
		RunE: withApp(configFile, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			ctx := cmd.Context()
			logging.Info(ctx, "start init-db")

			migrated, err := app.InitSchema(ctx)
			if err != nil {
				logging.Error(ctx, "initialize schema failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "initialize schema")
			}

			msg := fmt.Sprintf("store driver %q has no schema\n", app.Config.Store.Driver)
			if migrated {
				msg = fmt.Sprintf("database schema initialized: %s\n", app.Config.Store.DSN)
			}
			if _, err := fmt.Fprint(cmd.OutOrStdout(), msg); err != nil {
				return errs.Wrap(err, "write init-db output")
			}
			return nil
		}),
	}
}

func shortLink(baseURL, id string) string {
	if baseURL == "" {
		return id
	}
	return strings.TrimRight(baseURL, "/") + "/" + id
}
