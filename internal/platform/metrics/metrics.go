package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the custody service.
type Metrics struct {
	StockReceipts          prometheus.Counter
	StockTransfers         prometheus.Counter
	StockRetrievals        prometheus.Counter
	DeliveriesRecorded     prometheus.Counter
	DuplicateWarnings      prometheus.Counter
	CompensatingDeletes    prometheus.Counter
	InvariantCheckFailures prometheus.Counter
	SnapshotInvalidations  prometheus.Counter
	RequestLatency         *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on the given registerer. Tests pass a
// private registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StockReceipts: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_stock_receipts_total",
			Help: "Total inbound stock receipts recorded",
		}),
		StockTransfers: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_stock_transfers_total",
			Help: "Total two-leg stock transfers committed",
		}),
		StockRetrievals: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_stock_retrievals_total",
			Help: "Total stock retrievals (reverse transfers) committed",
		}),
		DeliveriesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_deliveries_recorded_total",
			Help: "Total patient deliveries recorded",
		}),
		DuplicateWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_duplicate_warnings_total",
			Help: "Total duplicate-dispensation advisories raised",
		}),
		CompensatingDeletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_compensating_deletes_total",
			Help: "Total deletions that reversed a ledger or delivery record",
		}),
		InvariantCheckFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_invariant_check_failures_total",
			Help: "Balance/ledger-sum mismatches caught by the defensive check",
		}),
		SnapshotInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_snapshot_invalidations_total",
			Help: "Cached snapshot flushes triggered by profile mutation or session termination",
		}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	m.RequestLatency.WithLabelValues(route, status).Observe(d.Seconds())
}
