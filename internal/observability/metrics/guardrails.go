package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Guardrails are the alertable counters: a wrong-node write or a forged
// webhook should page someone, so they are scraped directly from /metrics.
type Guardrails struct {
	writerLockViolations *prometheus.CounterVec
	idempotencyOutcomes  *prometheus.CounterVec
	webhookAuthFailures  *prometheus.CounterVec
	previousSecretUsed   prometheus.Counter
}

func NewGuardrails(registerer prometheus.Registerer, cfg Config) (*Guardrails, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	role := strings.TrimSpace(cfg.Role)
	if role == "" {
		role = "unknown"
	}
	constLabels := prometheus.Labels{"role": role}

	g := &Guardrails{
		writerLockViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "staybook_writer_lock_violations_total",
			Help:        "Booking writes refused because this node is not the designated writer.",
			ConstLabels: constLabels,
		}, []string{"brand", "mode"}),
		idempotencyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "staybook_idempotency_outcomes_total",
			Help:        "Idempotency reservations by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		webhookAuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "staybook_webhook_auth_failures_total",
			Help:        "Payment webhooks rejected by secret verification.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		previousSecretUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "staybook_webhook_previous_secret_accepted_total",
			Help:        "Webhooks accepted with the outgoing secret during rotation.",
			ConstLabels: constLabels,
		}),
	}

	for _, c := range []prometheus.Collector{
		g.writerLockViolations,
		g.idempotencyOutcomes,
		g.webhookAuthFailures,
		g.previousSecretUsed,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Guardrails) WriterLockViolation(brand, mode string) {
	if g == nil {
		return
	}
	g.writerLockViolations.WithLabelValues(brand, mode).Inc()
}

func (g *Guardrails) IdempotencyOutcome(outcome string) {
	if g == nil {
		return
	}
	g.idempotencyOutcomes.WithLabelValues(outcome).Inc()
}

func (g *Guardrails) WebhookAuthFailure(reason string) {
	if g == nil {
		return
	}
	g.webhookAuthFailures.WithLabelValues(reason).Inc()
}

func (g *Guardrails) PreviousSecretAccepted() {
	if g == nil {
		return
	}
	g.previousSecretUsed.Inc()
}
