package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics tracks charge attempt outcomes by status.
type PaymentMetrics struct {
	attempts *prometheus.CounterVec
	frozen   prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Charge attempts recorded, labeled by final status.",
	}, []string{"status"})
	frozen := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_frozen_total",
		Help: "Orders frozen for manual review after a double charge.",
	})
	reg.MustRegister(attempts, frozen)
	return &PaymentMetrics{attempts: attempts, frozen: frozen}
}

// ObserveAttempt counts one attempt resolution with the given status label.
func (p *PaymentMetrics) ObserveAttempt(status string) {
	if p == nil || p.attempts == nil {
		return
	}
	p.attempts.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncFrozen counts one order moved to manual review.
func (p *PaymentMetrics) IncFrozen() {
	if p == nil || p.frozen == nil {
		return
	}
	p.frozen.Inc()
}
