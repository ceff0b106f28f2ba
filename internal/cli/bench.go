package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
	pmet "github.com/IvanBrykalov/linkcache/metrics/prom"
	"github.com/IvanBrykalov/linkcache/shortener"
	"github.com/IvanBrykalov/linkcache/store/memstore"
)

type benchOptions struct {
	maxEntries int
	shards     int
	ttl        time.Duration
	sweep      time.Duration

	workers  int
	duration time.Duration
	readPct  int

	keys  int
	zipfS float64
	zipfV float64
	seed  int64

	pprofAddr   string
	metricsAddr string
}

func newBenchCommand() *cobra.Command {
	var o benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic shorten/lookup workload against an in-memory store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, o)
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.maxEntries, "max-entries", 100_000, "cache bound (entries)")
	f.IntVar(&o.shards, "shards", 0, "number of shards (0=auto)")
	f.DurationVar(&o.ttl, "ttl", 24*time.Hour, "link live-time")
	f.DurationVar(&o.sweep, "sweep-interval", time.Second, "sweeper tick")
	f.IntVar(&o.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	f.DurationVar(&o.duration, "duration", 10*time.Second, "benchmark duration")
	f.IntVar(&o.readPct, "reads", 80, "lookup percentage [0..100]; the rest are shorten calls")
	f.IntVar(&o.keys, "keys", 1_000_000, "distinct URLs")
	f.Float64Var(&o.zipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	f.Float64Var(&o.zipfV, "zipf-v", 1.0, "Zipf v")
	f.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "random seed")
	f.StringVar(&o.pprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	f.StringVar(&o.metricsAddr, "http", "", "serve Prometheus metrics at addr; empty = disabled")
	return cmd
}

func runBench(cmd *cobra.Command, o benchOptions) error {
	ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
	if o.workers <= 0 {
		o.workers = 1
	}
	if o.keys <= 1 {
		o.keys = 2
	}

	if o.pprofAddr != "" {
		go func() {
			logging.Info(ctx, "pprof listener started", slog.String("addr", o.pprofAddr))
			err := http.ListenAndServe(o.pprofAddr, nil)
			logging.Warn(ctx, "pprof listener stopped", slog.Any("err", errs.Loggable(err)))
		}()
	}

	reg := prometheus.NewRegistry()
	metrics := pmet.New(reg, "linkcache", "bench", nil)
	if o.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			logging.Info(ctx, "metrics listener started", slog.String("addr", o.metricsAddr))
			err := http.ListenAndServe(o.metricsAddr, mux)
			logging.Warn(ctx, "metrics listener stopped", slog.Any("err", errs.Loggable(err)))
		}()
	}

	c := cache.New(cache.Options{
		MaxEntries: o.maxEntries,
		Shards:     o.shards,
		DefaultTTL: o.ttl,
		Metrics:    metrics,
	})
	defer func() { _ = c.Close() }()

	st := memstore.New(nil)
	svc := shortener.New(c, st, shortener.Options{})

	sw := cache.NewSweeper(c, cache.SweeperConfig{Interval: o.sweep, Purger: st})
	sw.Start(ctx)
	defer sw.Stop()

	// Shortened ids by key index, so lookups hit known links.
	ids := make([]atomic.Pointer[string], o.keys)

	var lookups, shortens, notFound, failures atomic.Uint64
	runCtx, cancel := context.WithTimeout(ctx, o.duration)
	defer cancel()

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < o.workers; w++ {
		g.Go(func() error {
			// rand.Rand is not goroutine-safe: one per worker.
			r := rand.New(rand.NewSource(o.seed + int64(w)*9973))
			zipf := rand.NewZipf(r, o.zipfS, o.zipfV, uint64(o.keys-1))

			for runCtx.Err() == nil {
				k := zipf.Uint64()
				if int(r.Int31n(100)) < o.readPct {
					id := ids[k].Load()
					if id == nil {
						continue
					}
					lookups.Add(1)
					if _, err := svc.Lookup(runCtx, *id); err != nil {
						if runCtx.Err() != nil {
							return nil
						}
						notFound.Add(1)
					}
					continue
				}

				shortens.Add(1)
				id, err := svc.Shorten(runCtx, "https://bench.example/"+strconv.FormatUint(k, 10))
				if err != nil {
					if runCtx.Err() != nil {
						return nil
					}
					failures.Add(1)
					continue
				}
				ids[k].Store(&id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errs.Wrap(err, "run workers")
	}
	elapsed := time.Since(start)

	stats := c.Stats()
	hitRate := 0.0
	if reads := stats.Hits + stats.Misses; reads > 0 {
		hitRate = float64(stats.Hits) / float64(reads) * 100
	}
	byID, byLoc := c.Len()
	ops := lookups.Load() + shortens.Load()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "max_entries=%d shards=%d workers=%d keys=%d dur=%v seed=%d\n",
		o.maxEntries, o.shards, o.workers, o.keys, elapsed, o.seed)
	fmt.Fprintf(out, "ops=%d (%.0f ops/s)  lookups=%d  shortens=%d  not_found=%d  failures=%d\n",
		ops, float64(ops)/elapsed.Seconds(), lookups.Load(), shortens.Load(), notFound.Load(), failures.Load())
	fmt.Fprintf(out, "hits=%d  misses=%d  hit-rate=%.2f%%\n", stats.Hits, stats.Misses, hitRate)
	fmt.Fprintf(out, "cache by_id=%d by_locator=%d  store=%d\n", byID, byLoc, st.Len())
	return nil
}
