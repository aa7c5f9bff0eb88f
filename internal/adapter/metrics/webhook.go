package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics holds Prometheus metrics for EventSub webhook ingestion.
type WebhookMetrics struct {
	Deliveries *prometheus.CounterVec
	Rejected   prometheus.Counter
	Malformed  prometheus.Counter
}

// NewWebhookMetrics creates and registers webhook metrics on the given registry.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Total number of verified webhook deliveries, by kind.",
		}, []string{"kind"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "rejected_total",
			Help:      "Total number of deliveries rejected for a bad signature.",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "malformed_total",
			Help:      "Total number of verified deliveries with an unrecognized payload shape.",
		}),
	}

	reg.MustRegister(m.Deliveries, m.Rejected, m.Malformed)
	return m
}

// LedgerMetrics holds Prometheus metrics for ledger activity.
type LedgerMetrics struct {
	Upserts            prometheus.Counter
	LedgersProvisioned prometheus.Counter
}

// NewLedgerMetrics creates and registers ledger metrics on the given registry.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		Upserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "upserts_total",
			Help:      "Total number of gifter rows written to tenant ledgers.",
		}),
		LedgersProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "provisioned_total",
			Help:      "Total number of newly provisioned tenant ledgers.",
		}),
	}

	reg.MustRegister(m.Upserts, m.LedgersProvisioned)
	return m
}
