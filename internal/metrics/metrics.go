package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rbs"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// BookingAttempts counts CreateBooking outcomes: created, no_table, conflict, rate_limited, error.
	BookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking creation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	AllocationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_retries_total",
			Help:      "Allocations repeated after a concurrency conflict.",
		},
	)

	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status transitions by target status and actor.",
		},
		[]string{"to", "actor"},
	)

	OutboxDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events by delivery result.",
		},
		[]string{"result"},
	)

	LogEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_events_total",
			Help:      "Log lines at warning level or above.",
		},
		[]string{"level"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			BookingAttempts,
			AllocationRetries,
			StatusTransitions,
			OutboxDelivered,
			LogEvents,
		)
	})
}

// ObserveHTTP records one finished request.
func ObserveHTTP(endpoint, code string, elapsed time.Duration) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
	httpDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func IncBookingAttempt(outcome string) {
	BookingAttempts.WithLabelValues(outcome).Inc()
}

func IncAllocationRetry() {
	AllocationRetries.Inc()
}

func IncTransition(to, actor string) {
	StatusTransitions.WithLabelValues(to, actor).Inc()
}

func IncOutbox(result string) {
	OutboxDelivered.WithLabelValues(result).Inc()
}

func IncLogEvent(level string) {
	LogEvents.WithLabelValues(level).Inc()
}
