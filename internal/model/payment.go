package model

import "time"

// Payment status values.
const (
    PaymentCompleted = "COMPLETED"
    PaymentCancelled = "CANCELLED"
    PaymentFailed    = "FAILED"
)

// Payment is the record of a completed purchase.  There is at most one
// payment per reservation.
type Payment struct {
    ID            uint64    // payments.id
    ReservationID uint64    // payments.reservation_id
    UserID        string    // payments.user_id
    Amount        int64     // payments.amount
    Status        string    // payments.status
    PaidAt        time.Time // payments.paid_at
}
