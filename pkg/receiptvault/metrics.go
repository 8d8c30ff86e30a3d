package receiptvault

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the receipt store.
type Metrics struct {
	ReceiptsCreated  prometheus.Counter
	AuditLogFailures prometheus.Counter
	OrphansEnqueued  prometheus.Counter
	OrphansResolved  prometheus.Counter
	HoldTransitions  *prometheus.CounterVec
	StoreRetries     prometheus.Counter
}

// NewMetrics creates and registers all metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReceiptsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipt_vault_receipts_created_total",
			Help: "Total number of receipts durably created in both stores",
		}),
		AuditLogFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipt_vault_audit_log_failures_total",
			Help: "Audit entries that could not be appended; the primary operation still succeeded",
		}),
		OrphansEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipt_vault_orphans_enqueued_total",
			Help: "Reconciliation tasks recorded after partial dual-store writes",
		}),
		OrphansResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipt_vault_orphans_resolved_total",
			Help: "Reconciliation tasks repaired by the sweep",
		}),
		HoldTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_vault_hold_transitions_total",
			Help: "Legal hold transitions by action",
		}, []string{"action"}),
		StoreRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipt_vault_store_retries_total",
			Help: "Transient store failures retried within the fixed budget",
		}),
	}
}
