// Package cli implements the linkcache command line.
package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:          "linkcache",
		Short:        "Short-link service core: cached id <-> URL mappings over a durable store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default: ./configs/config.yaml or ./config.yaml)")

	configFile := func() string { return cfgFile }
	root.AddCommand(
		newShortenCommand(configFile),
		newResolveCommand(configFile),
		newPurgeCommand(configFile),
		newInitDBCommand(configFile),
		newRunCommand(configFile),
		newBenchCommand(),
	)
	return root
}

// Execute runs the CLI with ctx, which is cancelled on shutdown signals by
// the caller.
func Execute(ctx context.Context, args []string) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	root := NewRootCommand()
	root.SetArgs(args)

	ctx = logging.WithLogger(ctx, logging.New(root.ErrOrStderr(), "info"))
	ctx = logging.WithAttrs(ctx, slog.String("app", "linkcache"))

	if err := root.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}
	return nil
}
