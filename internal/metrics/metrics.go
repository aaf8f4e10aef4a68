// Package metrics holds the Prometheus collectors shared by the booking
// components.  Collectors are package level and registered once on the
// registry served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockAcquired counts lock acquisitions by outcome (acquired, timeout, error).
	LockAcquired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_lock_acquire_total",
		Help: "Lock acquisition attempts by outcome",
	}, []string{"outcome"})
	// SeatHolds counts successful seat holds.
	SeatHolds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_seat_holds_total",
		Help: "Total number of seats moved to TEMP_HELD",
	})
	// Payments counts payment attempts by outcome (completed, failed).
	Payments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_payments_total",
		Help: "Payment attempts by outcome",
	}, []string{"outcome"})
	// TokensIssued counts queue tokens issued by initial status.
	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_queue_tokens_issued_total",
		Help: "Queue tokens issued by initial status",
	}, []string{"status"})
	// TokensAdmitted counts waiting tokens promoted to ACTIVE.
	TokensAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_queue_tokens_admitted_total",
		Help: "Waiting tokens promoted to ACTIVE",
	})
	// SeatsSwept counts lapsed holds released by the sweeper.
	SeatsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_seats_swept_total",
		Help: "Lapsed seat holds released by the sweeper",
	})
	// ActiveSessions reports the active cohort size seen by the last admission pass.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "booking_queue_active_sessions",
		Help: "Active queue sessions at the last admission pass",
	})
	// HookFailures counts post-commit hooks that returned an error or panicked.
	HookFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_post_commit_hook_failures_total",
		Help: "Post-commit hooks that failed",
	}, []string{"hook"})
)

// NewRegistry creates a new Prometheus registry with the booking collectors
// registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	Register(reg)
	return reg
}

// Register registers the booking collectors on reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(LockAcquired, SeatHolds, Payments, TokensIssued,
		TokensAdmitted, SeatsSwept, ActiveSessions, HookFailures)
}
