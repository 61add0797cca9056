// Package metrics exposes Prometheus counters and histograms for request
// and engine-operation observability, served over a dedicated HTTP
// listener when configured.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry re-exports prometheus.Registry so callers outside this package
// (e.g. cmd/kvs-server) can hold one without importing the prometheus
// package directly.
type Registry = prometheus.Registry

// Metrics holds the collectors the server and engine record against.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	EngineOpsTotal   *prometheus.CounterVec
	CompactionsTotal prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// New registers and returns a fresh Metrics against its own registry, so
// multiple engines/servers in the same process (as in tests) don't collide
// on Prometheus's default global registry.
func New() (*Metrics, *Registry) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "flintkv_requests_total",
			Help: "Total requests handled by the server, by kind.",
		}, []string{"kind"}),
		EngineOpsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "flintkv_engine_ops_total",
			Help: "Total engine operations, by operation and result.",
		}, []string{"op", "result"}),
		CompactionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "flintkv_compactions_total",
			Help: "Total number of log compactions run.",
		}),
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flintkv_request_duration_seconds",
			Help:    "Request handling latency by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	return m, reg
}

// ObserveDuration records how long a request of the given kind took.
func (m *Metrics) ObserveDuration(kind string, start time.Time) {
	m.RequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Serve starts an HTTP server exposing /metrics on addr until ctx is
// cancelled. It is a best-effort side-channel: its failures are reported
// to the caller but never affect the KV protocol surface.
func Serve(ctx context.Context, addr string, reg *Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
