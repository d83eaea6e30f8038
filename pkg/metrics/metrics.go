// Package metrics exposes the daemon's prometheus counters: sync-loop
// ticks and failures, and per-RPC-method request counts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter this daemon exports.
type Metrics struct {
	registry *prometheus.Registry

	SyncTicksTotal   prometheus.Counter
	SyncErrorsTotal  prometheus.Counter
	RPCRequestsTotal *prometheus.CounterVec
}

// New constructs a fresh, independent registry and registers every counter
// against it, so tests can assert on an isolated instance rather than the
// global default registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SyncTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kaswalletd_sync_ticks_total",
			Help: "Number of sync loop iterations completed.",
		}),
		SyncErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kaswalletd_sync_errors_total",
			Help: "Number of sync loop iterations that failed.",
		}),
		RPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kaswalletd_rpc_requests_total",
			Help: "Number of wallet RPC requests handled, by method.",
		}, []string{"method"}),
	}

	registry.MustRegister(m.SyncTicksTotal, m.SyncErrorsTotal, m.RPCRequestsTotal)
	return m
}

// Handler returns the HTTP handler serving this instance's metrics,
// mountable on the same gorilla/mux router as the wallet RPC surface.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
