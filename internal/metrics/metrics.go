package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prnotifier_events_received_total",
			Help: "Total number of pull request events received",
		},
		[]string{"action", "source"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prnotifier_events_rejected_total",
			Help: "Total number of inbound events rejected as invalid",
		},
		[]string{"source"},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prnotifier_notifications_dispatched_total",
			Help: "Total number of notification dispatch attempts",
		},
		[]string{"notification", "result"},
	)

	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prnotifier_notifications_suppressed_total",
			Help: "Total number of notifications suppressed by trigger conditions",
		},
		[]string{"notification"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "prnotifier_dispatch_duration_seconds",
			Help: "Duration of outbound notification dispatch in seconds",
		},
		[]string{"notification"},
	)

	ButtonPresses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prnotifier_button_presses_total",
			Help: "Total number of manual button presses handled",
		},
		[]string{"button"},
	)
)
