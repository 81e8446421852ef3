// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_events_detected_total",
			Help: "Total number of notifications emitted by detectors",
		},
		[]string{"event_type"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_detector_errors_total",
			Help: "Total number of detector failures",
		},
		[]string{"detector", "error_code"},
	)

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notifier_detector_duration_seconds",
			Help: "Duration of a single detector pass in seconds",
		},
		[]string{"detector"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_deliveries_total",
			Help: "Delivery attempts by channel and terminal status",
		},
		[]string{"channel", "status"},
	)

	RunsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_runs_skipped_total",
			Help: "Runs skipped because another run held the lock",
		},
	)
)
