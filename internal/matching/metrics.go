package matching

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	suggestionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_suggestions_total",
			Help: "Total number of match suggestions returned",
		},
	)

	interactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_interactions_total",
			Help: "Total number of recorded match interactions",
		},
		[]string{"action"},
	)

	conversionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_conversions_total",
			Help: "Total number of matches converted to transactions",
		},
	)

	fallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_legacy_fallbacks_total",
			Help: "Total number of scoring passes answered by the legacy matcher",
		},
	)

	matchScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_match_scores",
			Help:    "Distribution of computed match scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	scoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "matching_scoring_duration_seconds",
			Help: "Time spent scoring a candidate pool",
		},
	)
)

func RecordSuggestions(count int) {
	suggestionsTotal.Add(float64(count))
}

func RecordInteractionMetric(action string) {
	interactionsTotal.WithLabelValues(action).Inc()
}

func RecordConversion() {
	conversionsTotal.Inc()
}

func RecordFallback() {
	fallbacksTotal.Inc()
}

func RecordMatchScore(score float64) {
	matchScores.Observe(score)
}

func ObserveScoringDuration(d time.Duration) {
	scoringDuration.Observe(d.Seconds())
}
