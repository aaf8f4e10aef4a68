package model

import "time"

// Seat status values.
const (
    SeatAvailable = "AVAILABLE"
    SeatTempHeld  = "TEMP_HELD"
    SeatReserved  = "RESERVED"
)

// Seat is one sellable seat of a concert date.  A seat is identified by
// its date and number; the pair is unique.  While the seat is TEMP_HELD
// both HolderUserID and HoldExpiresAt are set, otherwise both are empty.
//
// Version is bumped on every state change and guards conditional updates
// so a stale read can never overwrite a newer transition.
type Seat struct {
    ID            uint64     // seats.id
    ConcertDate   string     // seats.concert_date (YYYY-MM-DD)
    SeatNumber    int        // seats.seat_number
    Status        string     // seats.status
    HolderUserID  string     // seats.holder_user_id (empty unless held)
    HoldExpiresAt *time.Time // seats.hold_expires_at (nullable)
    Price         int64      // seats.price
    Version       int64      // seats.version
    CreatedAt     time.Time  // seats.created_at
    UpdatedAt     time.Time  // seats.updated_at
}
