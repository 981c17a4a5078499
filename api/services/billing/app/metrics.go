package app

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments webhook processing.
type Metrics struct {
	events            *prometheus.CounterVec
	signatureFailures prometheus.Counter
	ledger            *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Webhook events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		signatureFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "billing",
				Subsystem: "webhook",
				Name:      "signature_failures_total",
				Help:      "Webhook deliveries rejected by signature verification",
			},
		),
		ledger: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Subsystem: "ledger",
				Name:      "payments_total",
				Help:      "Ledger writes by result (inserted or duplicate)",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.signatureFailures, m.ledger)
	}
	return m
}

func (m *Metrics) observeEvent(kind EventKind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) observeSignatureFailure() {
	if m == nil {
		return
	}
	m.signatureFailures.Inc()
}

func (m *Metrics) observeLedger(inserted bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if inserted {
		result = "inserted"
	}
	m.ledger.WithLabelValues(result).Inc()
}
