// Prometheus instrumentation for the gateway pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Proxied requests, labeled by provider and terminal status",
	}, []string{"provider", "status"})

	ChargesUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_charges_usd_total",
		Help: "Total USD charged for successful calls, by provider",
	}, []string{"provider"})

	RefundsUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_refunds_usd_total",
		Help: "Total USD refunded for failed calls, by provider",
	}, []string{"provider"})

	// RefundFailures counts refunds that could not be applied after a
	// reservation. Any non-zero value means debited funds are stuck and
	// needs paging, not dashboards.
	RefundFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_refund_failures_total",
		Help: "Refunds that failed to apply, leaving debited funds stuck",
	})

	SweepRefunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sweep_refunds_total",
		Help: "Stale pending requests refunded by the reconciliation sweep",
	})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_upstream_latency_seconds",
		Help:    "Latency distribution of upstream calls, by provider",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider"})
)
