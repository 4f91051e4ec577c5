// Package metrics holds the Prometheus instruments of the registry client and dev node.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/registrar/pkg/adapters/memnode"
	"github.com/aretw0/registrar/pkg/core"
)

// Metrics tracks dispatched transactions, sealed blocks and open subscriptions.
// Each instance owns its registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	TxStates            *prometheus.CounterVec
	BlocksSealed        prometheus.Counter
	ExtrinsicsIncluded  prometheus.Counter
	ExtrinsicsFailed    prometheus.Counter
	BlockSize           prometheus.Histogram
	ActiveSubscriptions prometheus.Gauge
}

// New creates a Metrics instance with every instrument registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TxStates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_tx_state_transitions_total",
			Help: "Transaction tracker transitions by state entered",
		}, []string{"state"}),
		BlocksSealed: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_blocks_sealed_total",
			Help: "Blocks sealed by the dev node",
		}),
		ExtrinsicsIncluded: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_extrinsics_included_total",
			Help: "Extrinsics included in sealed blocks",
		}),
		ExtrinsicsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_extrinsics_failed_total",
			Help: "Included extrinsics whose dispatch failed",
		}),
		BlockSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrar_block_extrinsics",
			Help:    "Extrinsics per sealed block",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registrar_rpc_subscriptions",
			Help: "Open JSON-RPC subscriptions served by the dev node",
		}),
	}
}

// ObserveTxState records a tracker entering state. It fits core.WithStatusObserver.
func (m *Metrics) ObserveTxState(state core.TxState) {
	m.TxStates.WithLabelValues(state.String()).Inc()
}

// ObserveBlock records a sealed block. It fits memnode.Config.OnBlock.
func (m *Metrics) ObserveBlock(b memnode.Block) {
	m.BlocksSealed.Inc()
	m.ExtrinsicsIncluded.Add(float64(b.Extrinsics))
	m.ExtrinsicsFailed.Add(float64(b.Failed))
	m.BlockSize.Observe(float64(b.Extrinsics))
}

// SubscriptionDelta adjusts the open subscription gauge. It fits rpc.WithSubscriptionHook.
func (m *Metrics) SubscriptionDelta(delta int) {
	m.ActiveSubscriptions.Add(float64(delta))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
