// Command linkcache is the CLI for the short-link cache and store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/IvanBrykalov/linkcache/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}
