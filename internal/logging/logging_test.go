package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextLoggerCarriesAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))
	ctx = WithAttrs(ctx, slog.String("component", "sweeper"), slog.Int("tick", 1))
	ctx = WithAttrs(ctx, slog.Int("tick", 2))

	Debug(ctx, "sweep finished", slog.Int("expired", 3))

	out := buf.String()
	require.Contains(t, out, "msg=\"sweep finished\"")
	require.Contains(t, out, "component=sweeper")
	require.Contains(t, out, "tick=2")
	require.NotContains(t, out, "tick=1")
	require.Contains(t, out, "expired=3")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "warn"))

	Info(ctx, "hidden")
	Warn(ctx, "shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestAttrsAreCopied(t *testing.T) {
	t.Parallel()

	ctx := WithAttrs(context.Background(), slog.String("a", "1"))
	attrs := Attrs(ctx)
	attrs[0] = slog.String("a", "mutated")
	require.Equal(t, "1", Attrs(ctx)[0].Value.String())
	require.Nil(t, Attrs(context.Background()))
}
