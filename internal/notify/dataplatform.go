// Package notify holds the post-commit collaborators of the booking flow:
// event publishing, the data-platform sink and the sold-out ranking.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/queue"
)

// DataPlatform stands in for the external data platform.  It records each
// event as a structured log line.
type DataPlatform struct {
	logger *logrus.Logger
}

// NewDataPlatform returns a DataPlatform writing to logger.
func NewDataPlatform(logger *logrus.Logger) *DataPlatform {
	return &DataPlatform{logger: logger}
}

// SendPaymentCompleted implements queue.Handler.
func (d *DataPlatform) SendPaymentCompleted(ctx context.Context, ev queue.PaymentCompletedEvent) error {
	d.logger.WithContext(ctx).WithFields(logrus.Fields{
		"component":      "data-platform",
		"event":          queue.PaymentCompletedQueue,
		"payment_id":     ev.PaymentID,
		"reservation_id": ev.ReservationID,
		"user_id":        ev.UserID,
		"concert_date":   ev.ConcertDate,
		"seat_number":    ev.SeatNumber,
		"amount":         ev.Amount,
		"paid_at":        ev.PaidAt,
	}).Info("payment data sent")
	return nil
}

// SendReservationCompleted implements queue.Handler.
func (d *DataPlatform) SendReservationCompleted(ctx context.Context, ev queue.ReservationCompletedEvent) error {
	d.logger.WithContext(ctx).WithFields(logrus.Fields{
		"component":       "data-platform",
		"event":           queue.ReservationCompletedQueue,
		"reservation_id":  ev.ReservationID,
		"user_id":         ev.UserID,
		"concert_date":    ev.ConcertDate,
		"seat_number":     ev.SeatNumber,
		"hold_expires_at": ev.HoldExpiresAt,
	}).Info("reservation data sent")
	return nil
}
