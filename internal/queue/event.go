// Package queue defines the booking events exchanged over RabbitMQ and the
// background consumer that forwards them to the data platform.
package queue

import "context"

// Queue names.  Both queues are durable and use the default exchange with
// the queue name as routing key.
const (
    PaymentCompletedQueue     = "payment.completed"
    ReservationCompletedQueue = "reservation.completed"
)

// PaymentCompletedEvent is published after a payment transaction commits.
// It carries enough to log or analyse the sale without querying MySQL.
type PaymentCompletedEvent struct {
    PaymentID     uint64 `json:"payment_id"`
    ReservationID uint64 `json:"reservation_id"`
    UserID        string `json:"user_id"`
    ConcertDate   string `json:"concert_date"`
    SeatNumber    int    `json:"seat_number"`
    Amount        int64  `json:"amount"`
    PaidAt        string `json:"paid_at"` // RFC3339, UTC
}

// ReservationCompletedEvent is published after a seat hold commits.
type ReservationCompletedEvent struct {
    ReservationID uint64 `json:"reservation_id"`
    UserID        string `json:"user_id"`
    ConcertDate   string `json:"concert_date"`
    SeatNumber    int    `json:"seat_number"`
    HoldExpiresAt string `json:"hold_expires_at"` // RFC3339, UTC
}

// Handler receives decoded events.
type Handler interface {
    SendPaymentCompleted(ctx context.Context, ev PaymentCompletedEvent) error
    SendReservationCompleted(ctx context.Context, ev ReservationCompletedEvent) error
}
