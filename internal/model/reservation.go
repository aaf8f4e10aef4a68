package model

import "time"

// Reservation status values.
const (
    ReservationTempHeld  = "TEMP_HELD"
    ReservationConfirmed = "CONFIRMED"
    ReservationCancelled = "CANCELLED"
    ReservationExpired   = "EXPIRED"
)

// Reservation records one user's claim on one seat.  A TEMP_HELD
// reservation always pairs with a TEMP_HELD seat held by the same user
// until the same HoldExpiresAt.
//
// Fields:
//  ID            – primary key identifier.
//  UserID        – user who holds or bought the seat.
//  SeatID        – seat being reserved.
//  ConcertDate   – copied from the seat for lookups by date+number.
//  SeatNumber    – copied from the seat.
//  Price         – amount charged on payment.
//  Status        – TEMP_HELD, CONFIRMED, CANCELLED or EXPIRED.
//  ReservedAt    – when the hold was placed.
//  HoldExpiresAt – end of the hold.
//  ConfirmedAt   – set once paid.
type Reservation struct {
    ID            uint64     // reservations.id
    UserID        string     // reservations.user_id
    SeatID        uint64     // reservations.seat_id
    ConcertDate   string     // reservations.concert_date
    SeatNumber    int        // reservations.seat_number
    Price         int64      // reservations.price
    Status        string     // reservations.status
    ReservedAt    time.Time  // reservations.reserved_at
    HoldExpiresAt time.Time  // reservations.hold_expires_at
    ConfirmedAt   *time.Time // reservations.confirmed_at (nullable)
}

// Lapsed reports whether a TEMP_HELD reservation's hold ended before now.
func (r *Reservation) Lapsed(now time.Time) bool {
    return r.Status == ReservationTempHeld && r.HoldExpiresAt.Before(now)
}
