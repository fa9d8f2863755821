// Package metrics exposes Prometheus collectors for solution runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scanhelper"

var (
	runsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_started_total",
		Help:      "Solution runs started, by provider.",
	}, []string{"provider"})
	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_finished_total",
		Help:      "Solution runs finished, by provider and outcome (done, error, cancelled).",
	}, []string{"provider", "outcome"})
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Time from request to terminal event.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"provider", "outcome"})
	deltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_deltas_total",
		Help:      "Text fragments received from providers.",
	}, []string{"provider"})
	parseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_parse_failures_total",
		Help:      "Stream lines skipped because they could not be decoded.",
	}, []string{"provider"})
	liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Sessions held in memory by the API server.",
	})
)

// RunStarted records the start of a run.
func RunStarted(provider string) {
	runsStarted.WithLabelValues(provider).Inc()
}

// RunFinished records a run's outcome, duration and stream counters.
func RunFinished(provider, outcome string, elapsed time.Duration, deltaCount, parseFailureCount int) {
	runsFinished.WithLabelValues(provider, outcome).Inc()
	runDuration.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
	deltas.WithLabelValues(provider).Add(float64(deltaCount))
	parseFailures.WithLabelValues(provider).Add(float64(parseFailureCount))
}

func SetLiveSessions(n int) {
	liveSessions.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
