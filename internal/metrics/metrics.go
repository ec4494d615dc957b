package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Accepted booking status transitions.",
		},
		[]string{"from", "to"},
	)

	bookingRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transition_rejections_total",
			Help:      "Booking status writes rejected by the transition table.",
		},
	)

	disputesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disputes_created_total",
			Help:      "Disputes filed.",
		},
	)

	realtimeRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_refreshes_total",
			Help:      "Coalesced realtime refreshes by table.",
		},
		[]string{"table"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notification delivery attempts by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingTransitions,
			bookingRejections,
			disputesCreated,
			realtimeRefreshes,
			notificationsSent,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncTransition(from, to string) {
	bookingTransitions.WithLabelValues(from, to).Inc()
}

func IncTransitionRejected() {
	bookingRejections.Inc()
}

func IncDisputeCreated() {
	disputesCreated.Inc()
}

func IncRealtimeRefresh(table string) {
	realtimeRefreshes.WithLabelValues(table).Inc()
}

// IncNotification records a delivery outcome: sent, retry or failed.
func IncNotification(result string) {
	notificationsSent.WithLabelValues(result).Inc()
}
