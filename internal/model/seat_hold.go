package model

import (
    "errors"
    "time"
)

// Errors returned by the seat transitions below.  Services translate them
// into typed failures for clients.
var (
    ErrSeatNotAvailable = errors.New("seat is not available")
    ErrSeatNotHeld      = errors.New("seat is not temporarily held")
    ErrHoldLapsed       = errors.New("seat hold has lapsed")
)

// HoldLapsed reports whether the seat is TEMP_HELD with a hold that ended
// strictly before now.
func (s *Seat) HoldLapsed(now time.Time) bool {
    return s.Status == SeatTempHeld && s.HoldExpiresAt != nil && s.HoldExpiresAt.Before(now)
}

// Hold moves an AVAILABLE seat to TEMP_HELD for userID until expiresAt.
func (s *Seat) Hold(userID string, expiresAt time.Time) error {
    if s.Status != SeatAvailable {
        return ErrSeatNotAvailable
    }
    s.Status = SeatTempHeld
    s.HolderUserID = userID
    t := expiresAt
    s.HoldExpiresAt = &t
    return nil
}

// Confirm moves a TEMP_HELD seat whose hold is still live to RESERVED.
func (s *Seat) Confirm(now time.Time) error {
    if s.Status != SeatTempHeld {
        return ErrSeatNotHeld
    }
    if s.HoldLapsed(now) {
        return ErrHoldLapsed
    }
    s.Status = SeatReserved
    s.HoldExpiresAt = nil
    return nil
}

// Release returns a TEMP_HELD seat to AVAILABLE and clears the holder.
func (s *Seat) Release() error {
    if s.Status != SeatTempHeld {
        return ErrSeatNotHeld
    }
    s.Status = SeatAvailable
    s.HolderUserID = ""
    s.HoldExpiresAt = nil
    return nil
}
