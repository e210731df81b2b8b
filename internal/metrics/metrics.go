// Package metrics provides Prometheus metrics for the popsuite client app
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cascade metrics
	OptionFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsuite_option_fetches_total",
			Help: "Option set fetches by field kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	OptionFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "popsuite_option_fetch_duration_seconds",
			Help:    "Time taken to fetch an option set",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	StaleDiscardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsuite_stale_discards_total",
			Help: "Fetch responses dropped because the entry moved on",
		},
		[]string{"kind"},
	)

	AttachmentRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsuite_attachment_rejections_total",
			Help: "Image batches rejected during validation",
		},
		[]string{"reason"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsuite_submissions_total",
			Help: "Data entry form submissions",
		},
		[]string{"outcome"},
	)

	// Management metrics
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsuite_management_mutations_total",
			Help: "Reference data mutations",
		},
		[]string{"type", "action", "outcome"},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "popsuite_sessions_active",
			Help: "Number of live browser sessions",
		},
	)
)

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
	OutcomeSkipped = "skipped"
)

func Handler() http.Handler {
	return promhttp.Handler()
}
