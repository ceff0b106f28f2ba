package prom

import (
	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus collectors for the
// record cache and its sweeper. Safe for concurrent use.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	size    prometheus.Gauge
	sweeps  prometheus.Histogram
	removed *prometheus.CounterVec
	purged  prometheus.Counter
	purgeKO prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		hits:   counter("hits_total", "Cache hits"),
		misses: counter("misses_total", "Cache misses, expired entries included"),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident records in the identifier index",
			ConstLabels: constLabels,
		}),
		sweeps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "sweep_duration_seconds",
			Help:        "Duration of one sweeper tick",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
			ConstLabels: constLabels,
		}),
		removed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "sweep_removed_total",
				Help:        "Entries removed by the sweeper, by pass",
				ConstLabels: constLabels,
			},
			[]string{"pass"},
		),
		purged:  counter("store_purged_total", "Expired links deleted from the store by the sweeper"),
		purgeKO: counter("store_purge_failures_total", "Failed store housekeeping calls"),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.size, a.sweeps, a.removed, a.purged, a.purgeKO)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the resident entries gauge.
func (a *Adapter) Size(entries int) { a.size.Set(float64(entries)) }

// Sweep records one sweeper tick.
func (a *Adapter) Sweep(st cache.SweepStats) {
	a.sweeps.Observe(st.Duration.Seconds())
	a.removed.WithLabelValues("expire").Add(float64(st.Expired))
	a.removed.WithLabelValues("repair").Add(float64(st.Repaired))
	a.removed.WithLabelValues("shrink_id").Add(float64(st.EvictedByID))
	a.removed.WithLabelValues("shrink_locator").Add(float64(st.EvictedByLocator))
	a.purged.Add(float64(st.Purged))
	if st.PurgeErr != nil {
		a.purgeKO.Inc()
	}
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
