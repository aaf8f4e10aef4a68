package repository

import (
	"context"
	"time"

	"github.com/iliyamo/flashsale-booking/internal/model"
)

// Store opens durable transactions.  InTx commits when fn returns nil and
// rolls back otherwise.  The error from fn is returned unchanged, except
// that an adapter reports row lock contention (deadlock, lock wait
// timeout) as an apperr Conflict.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Catalog() Catalog
}

// Tx groups the repositories bound to one open transaction.
type Tx interface {
	Seats() SeatRepository
	Reservations() ReservationRepository
	Payments() PaymentRepository
	Balances() BalanceRepository
}

// SeatRepository reads and mutates seats inside a transaction.
type SeatRepository interface {
	// FindByDateAndNumber loads and row-locks the seat.
	FindByDateAndNumber(ctx context.Context, date string, number int) (*model.Seat, error)
	// FindByID loads and row-locks the seat.
	FindByID(ctx context.Context, id uint64) (*model.Seat, error)
	// Update writes status, holder and hold expiry when the stored version
	// still equals seat.Version, then bumps seat.Version.
	Update(ctx context.Context, seat *model.Seat) error
	// ReleaseExpired returns the given seats to AVAILABLE when they are
	// still TEMP_HELD with a hold that ended before now.
	ReleaseExpired(ctx context.Context, ids []uint64, now time.Time) (int64, error)
	// CreateBatch inserts AVAILABLE seats.
	CreateBatch(ctx context.Context, seats []model.Seat) error
}

// ReservationRepository reads and mutates reservations inside a transaction.
type ReservationRepository interface {
	Create(ctx context.Context, r *model.Reservation) error
	// FindHeld returns the user's TEMP_HELD reservation for a seat.
	FindHeld(ctx context.Context, userID, date string, number int) (*model.Reservation, error)
	// ExpireHeldBySeat marks any TEMP_HELD reservation of the seat EXPIRED.
	ExpireHeldBySeat(ctx context.Context, seatID uint64) (int64, error)
	// UpdateStatus moves a reservation from one status to another.  It
	// returns ErrVersionConflict when the stored status is not from.
	UpdateStatus(ctx context.Context, id uint64, from, to string, at time.Time) error
	// ExpiredHeldSeatIDs lists the seats of TEMP_HELD reservations whose
	// hold ended before now.
	ExpiredHeldSeatIDs(ctx context.Context, now time.Time) ([]uint64, error)
	// ExpireHeld marks every TEMP_HELD reservation whose hold ended before
	// now EXPIRED.
	ExpireHeld(ctx context.Context, now time.Time) (int64, error)
}

// PaymentRepository records payments.
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
}

// BalanceRepository reads and mutates balance accounts.
type BalanceRepository interface {
	Get(ctx context.Context, userID string) (*model.BalanceAccount, error)
	Insert(ctx context.Context, acc *model.BalanceAccount) error
	// Update writes acc.Balance when the stored version equals acc.Version,
	// then bumps acc.Version.
	Update(ctx context.Context, acc *model.BalanceAccount) error
	// DeductIfSufficient subtracts amount only when the balance covers it
	// and reports whether a row changed.
	DeductIfSufficient(ctx context.Context, userID string, amount int64) (bool, error)
}

// Catalog serves read-only listings outside of any transaction.
type Catalog interface {
	ConcertDates(ctx context.Context) ([]model.ConcertDate, error)
	SeatsByDate(ctx context.Context, date string) ([]model.Seat, error)
	ReservationsByUser(ctx context.Context, userID string) ([]model.Reservation, error)
	// BalanceOf returns the user's balance, or ErrNotFound without an account.
	BalanceOf(ctx context.Context, userID string) (int64, error)
}
