package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AnalysesTotal counts completed scans by AI outcome.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquascan",
		Subsystem: "analyzer",
		Name:      "analyses_total",
		Help:      "Total number of scan analyses, labeled by result (ok, degraded).",
	}, []string{"result"})

	// GeminiRequestsTotal counts vision model calls by outcome.
	GeminiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquascan",
		Subsystem: "gemini",
		Name:      "requests_total",
		Help:      "Vision model analyses, labeled by outcome (ok, error, unconfigured).",
	}, []string{"outcome"})

	// USGSLookupsTotal counts station lookups by outcome.
	USGSLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aquascan",
		Subsystem: "usgs",
		Name:      "lookups_total",
		Help:      "USGS station lookups, labeled by outcome (found, empty, error, skipped).",
	}, []string{"outcome"})

	AnalysisDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aquascan",
		Subsystem: "analyzer",
		Name:      "analysis_duration_seconds",
		Help:      "End-to-end time to analyze one scan.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	})
)

// Register registers scan metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AnalysesTotal,
			GeminiRequestsTotal,
			USGSLookupsTotal,
			AnalysisDurationSeconds,
		)
	})
}
