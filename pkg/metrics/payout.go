package metrics

import "github.com/prometheus/client_golang/prometheus"

// PayoutMetrics tracks payout batch outcomes.
type PayoutMetrics struct {
	scheduled *prometheus.CounterVec
	processed *prometheus.CounterVec
}

// NewPayoutMetrics registers payout metrics on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	scheduled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_scheduled_total",
		Help: "Payouts created by batch runs.",
	}, []string{"result"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_processed_total",
		Help: "Payout processing attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(scheduled, processed)
	return &PayoutMetrics{scheduled: scheduled, processed: processed}
}

// IncScheduled counts a payout created by a batch run.
func (p *PayoutMetrics) IncScheduled() {
	if p == nil || p.scheduled == nil {
		return
	}
	p.scheduled.WithLabelValues("created").Inc()
}

// IncProcessed counts a processing attempt by outcome (paid, failed, pending).
func (p *PayoutMetrics) IncProcessed(outcome string) {
	if p == nil || p.processed == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	p.processed.WithLabelValues(outcome).Inc()
}
