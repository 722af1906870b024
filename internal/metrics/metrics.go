// Package metrics exports Prometheus collectors for the completion daemon.
//
// A Metrics value owns its own registry so that several can coexist in one
// process. Every method is safe on a nil *Metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wordfill/internal/logging"
)

const namespace = "wordfill"

// Metrics holds every collector the daemon updates.
type Metrics struct {
	reg *prometheus.Registry

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheEntries   prometheus.Gauge
	cacheBytes     prometheus.Gauge

	serviceLatency prometheus.Histogram
	serviceErrors  prometheus.Counter

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram

	inserts      *prometheus.CounterVec
	skippedRunes prometheus.Counter
}

// New registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Completion lookups answered from the cache.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Completion lookups that went to the suggestion service.",
		}),
		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted to stay within the cache budget.",
		}),
		cacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently cached.",
		}),
		cacheBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes",
			Help:      "Approximate bytes held by cached completions.",
		}),
		serviceLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "suggest",
			Name:      "latency_seconds",
			Help:      "Suggestion service call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~250ms
		}),
		serviceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggest",
			Name:      "errors_total",
			Help:      "Suggestion service calls that failed or timed out.",
		}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "total",
			Help:      "Completed trigger and selection cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Time from trigger to popup or abort.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		inserts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "insert",
			Name:      "total",
			Help:      "Insertions by winning strategy and result.",
		}, []string{"strategy", "result"}),
		skippedRunes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "insert",
			Name:      "skipped_runes_total",
			Help:      "Characters that could be neither typed nor pasted.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) CacheEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.Add(float64(n))
}

func (m *Metrics) CacheSize(entries, bytes int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(entries))
	m.cacheBytes.Set(float64(bytes))
}

func (m *Metrics) ServiceCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.serviceLatency.Observe(d.Seconds())
	if err != nil {
		m.serviceErrors.Inc()
	}
}

// Cycle records the end of a trigger or selection cycle.
func (m *Metrics) Cycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.cycleDuration.Observe(d.Seconds())
	}
}

// Insert records an insertion attempt. strategy is empty when every
// strategy failed.
func (m *Metrics) Insert(strategy string, ok bool, skipped int) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.inserts.WithLabelValues(strategy, strconv.FormatBool(ok)).Inc()
	if skipped > 0 {
		m.skippedRunes.Add(float64(skipped))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Route is an extra handler mounted next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Serve exposes /metrics and any extra routes on addr until ctx is
// cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logging.Logger, routes ...Route) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln, logger, routes...)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, logger *logging.Logger, routes ...Route) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("metrics listener started", "addr", ln.Addr().String())
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
