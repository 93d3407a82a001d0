package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors of the bet backend. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	betsTotal          *prometheus.CounterVec
	settlementsTotal   *prometheus.CounterVec
	settlementSeconds  *prometheus.HistogramVec
	bestEffortFailures *prometheus.CounterVec
	outboundCalls      *prometheus.CounterVec
	settledAppends     *prometheus.CounterVec
	outboxPublished    prometheus.Counter
}

// NewMetrics registers the collectors on reg. Passing nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		betsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "racegame",
				Subsystem: "bets",
				Name:      "placed_total",
				Help:      "Bet placements partitioned by variant and result.",
			},
			[]string{"variant", "result"},
		),
		settlementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "racegame",
				Subsystem: "settlement",
				Name:      "total",
				Help:      "Settlements partitioned by integration and outcome.",
			},
			[]string{"integration", "outcome"},
		),
		settlementSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "racegame",
				Subsystem: "settlement",
				Name:      "duration_seconds",
				Help:      "Settlement transaction latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"integration"},
		),
		bestEffortFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "racegame",
				Subsystem: "side_effects",
				Name:      "failures_total",
				Help:      "Swallowed failures of best-effort writes and notifications.",
			},
			[]string{"effect"},
		),
		outboundCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "racegame",
				Subsystem: "outbound",
				Name:      "calls_total",
				Help:      "Outbound collaborator calls by target and result.",
			},
			[]string{"target", "result"},
		),
		settledAppends: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "racegame",
				Subsystem: "bets",
				Name:      "settled_appends_total",
				Help:      "Wagers appended to a round record that was already settled.",
			},
			[]string{"integration"},
		),
		outboxPublished: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "racegame",
				Subsystem: "outbox",
				Name:      "published_total",
				Help:      "Outbox events published to Kafka.",
			},
		),
	}
}

func (m *Metrics) ObserveBet(variant, result string) {
	if m == nil {
		return
	}
	m.betsTotal.WithLabelValues(variant, result).Inc()
}

func (m *Metrics) ObserveSettlement(integration, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(integration, outcome).Inc()
	m.settlementSeconds.WithLabelValues(integration).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveBestEffortFailure(effect string) {
	if m == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(effect).Inc()
}

func (m *Metrics) ObserveOutbound(target string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.outboundCalls.WithLabelValues(target, result).Inc()
}

func (m *Metrics) ObserveSettledAppend(integration string) {
	if m == nil {
		return
	}
	m.settledAppends.WithLabelValues(integration).Inc()
}

func (m *Metrics) ObserveOutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxPublished.Add(float64(n))
}
