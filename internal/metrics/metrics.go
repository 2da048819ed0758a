// Package metrics exposes Prometheus collectors for the cadence pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/reengage-cli/internal/model"
)

var (
	DealOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reengage_deal_outcomes_total",
			Help: "Deals processed, by outcome status",
		},
		[]string{"status", "cadence"},
	)

	LLMCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reengage_llm_cost_usd_total",
			Help: "Estimated LLM spend in USD",
		},
		[]string{"provider"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reengage_llm_tokens_total",
			Help: "LLM tokens consumed",
		},
		[]string{"provider", "direction"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reengage_batch_duration_seconds",
			Help:    "Wall time of batch runs",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	PollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reengage_assistant_poll_attempts",
			Help:    "Run status checks per assistant run",
			Buckets: prometheus.LinearBuckets(1, 3, 10),
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reengage_http_requests_total",
			Help: "HTTP requests served, by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveOutcome counts one deal outcome.
func ObserveOutcome(o model.DealOutcome) {
	DealOutcomes.WithLabelValues(string(o.Status), o.Cadence).Inc()
}

// ObserveUsage adds token counts and cost for one LLM call.
func ObserveUsage(u model.TokenUsage) {
	if u.Provider == "" {
		return
	}
	LLMTokens.WithLabelValues(u.Provider, "input").Add(float64(u.InputTokens))
	LLMTokens.WithLabelValues(u.Provider, "output").Add(float64(u.OutputTokens))
	if u.Cost > 0 {
		LLMCost.WithLabelValues(u.Provider).Add(u.Cost)
	}
}

// ObservePollAttempts records how many status checks a run needed.
func ObservePollAttempts(n int) {
	PollAttempts.Observe(float64(n))
}

// ObserveBatch records the duration of a batch that started at start.
func ObserveBatch(start time.Time) {
	BatchDuration.Observe(time.Since(start).Seconds())
}
