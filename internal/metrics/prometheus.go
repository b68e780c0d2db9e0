package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowvana_query_duration_seconds",
			Help:    "Request processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"type"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowvana_query_total",
			Help: "Total requests processed",
		},
		[]string{"type", "status"},
	)

	SearchResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowvana_search_results",
			Help:    "Results returned per search",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		},
		[]string{"source"},
	)

	ClassificationOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowvana_classification_outcome_total",
			Help: "Dispatch outcomes by terminal branch",
		},
		[]string{"outcome"},
	)

	IndexedTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowvana_indexed_tenants",
			Help: "Tenants with a published index after the last build",
		},
	)

	IndexedPhrases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowvana_indexed_phrases",
			Help: "Phrase rows across all tenant indexes after the last build",
		},
	)

	AnalyticsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowvana_analytics_dropped_total",
			Help: "Request log entries dropped by the bounded queue or failed writes",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		QueryDuration,
		QueryTotal,
		SearchResults,
		ClassificationOutcome,
		IndexedTenants,
		IndexedPhrases,
		AnalyticsDropped,
	)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
