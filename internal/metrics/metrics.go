package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stationbook"

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_created_total",
			Help:      "Count of reservations created by station.",
		},
		[]string{"station"},
	)

	slotConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflict_total",
			Help:      "Count of booking attempts rejected for overlapping an existing reservation.",
		},
		[]string{"station"},
	)

	extensions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_extension_total",
			Help:      "Count of extension requests by outcome.",
		},
		[]string{"outcome"},
	)

	reservationCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_cancelled_total",
			Help:      "Count of cancelled reservations.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2},
		},
		[]string{"route"},
	)

	backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_total",
			Help:      "Count of database backups by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationCreated,
			slotConflicts,
			extensions,
			reservationCancelled,
			httpRequests,
			httpDuration,
			backups,
		)
	})
}

func IncReservationCreated(station string) {
	reservationCreated.WithLabelValues(station).Inc()
}

func IncSlotConflict(station string) {
	slotConflicts.WithLabelValues(station).Inc()
}

func IncExtension(outcome string) {
	extensions.WithLabelValues(outcome).Inc()
}

func IncReservationCancelled() {
	reservationCancelled.Inc()
}

func ObserveHTTPRequest(method, route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncBackup(outcome string) {
	backups.WithLabelValues(outcome).Inc()
}
