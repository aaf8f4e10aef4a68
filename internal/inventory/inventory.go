// Package inventory owns the seat state machine:
//
//	AVAILABLE -> TEMP_HELD -> RESERVED
//	TEMP_HELD -> AVAILABLE (hold lapsed or given up)
//
// Holds are placed under the seat's lock and inside one transaction that
// also writes the paired reservation.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/apperr"
	"github.com/iliyamo/flashsale-booking/internal/lock"
	"github.com/iliyamo/flashsale-booking/internal/metrics"
	"github.com/iliyamo/flashsale-booking/internal/model"
	"github.com/iliyamo/flashsale-booking/internal/repository"
)

// Config tunes holds and the seat lock.
type Config struct {
	HoldDuration time.Duration
	LockWait     time.Duration
	LockLease    time.Duration
}

// Service implements seat holds, confirmation and release.
type Service struct {
	store  repository.Store
	locks  lock.Coordinator
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

// New returns a Service.
func New(store repository.Store, locks lock.Coordinator, cfg Config, logger *logrus.Logger) *Service {
	return &Service{store: store, locks: locks, cfg: cfg, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

var errSeatUnavailable = apperr.New(apperr.SeatUnavailable, "seat-unavailable", "seat is already held or sold")

func errVersion(err error) error {
	return apperr.Wrap(apperr.Conflict, "concurrent-update", "seat changed concurrently, try again", err)
}

// Reserve holds (date, seatNumber) for userID and records a TEMP_HELD
// reservation with the same expiry.  A seat whose hold already lapsed is
// reclaimed first, so abandoned holds never block a new buyer until the
// sweeper runs.
func (s *Service) Reserve(ctx context.Context, date string, seatNumber int, userID string) (*model.Reservation, error) {
	var out *model.Reservation
	err := lock.WithLock(ctx, s.locks, lock.SeatKey(date, seatNumber), s.cfg.LockWait, s.cfg.LockLease, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			now := s.now()
			seat, err := tx.Seats().FindByDateAndNumber(ctx, date, seatNumber)
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.ErrSeatNotFound
			}
			if err != nil {
				return err
			}

			if seat.HoldLapsed(now) {
				if err := s.reclaim(ctx, tx, seat); err != nil {
					return err
				}
			}

			expires := now.Add(s.cfg.HoldDuration)
			if err := seat.Hold(userID, expires); err != nil {
				return errSeatUnavailable
			}
			if err := tx.Seats().Update(ctx, seat); err != nil {
				if errors.Is(err, repository.ErrVersionConflict) {
					return errVersion(err)
				}
				return err
			}

			res := &model.Reservation{
				UserID:        userID,
				SeatID:        seat.ID,
				ConcertDate:   seat.ConcertDate,
				SeatNumber:    seat.SeatNumber,
				Price:         seat.Price,
				Status:        model.ReservationTempHeld,
				ReservedAt:    now,
				HoldExpiresAt: expires,
			}
			if err := tx.Reservations().Create(ctx, res); err != nil {
				return err
			}
			out = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.SeatHolds.Inc()
	s.logger.WithFields(logrus.Fields{
		"component":      "inventory",
		"user_id":        userID,
		"concert_date":   date,
		"seat_number":    seatNumber,
		"reservation_id": out.ID,
	}).Info("seat held")
	return out, nil
}

// reclaim frees a seat whose hold lapsed and expires its reservation.
func (s *Service) reclaim(ctx context.Context, tx repository.Tx, seat *model.Seat) error {
	prev := seat.HolderUserID
	if err := seat.Release(); err != nil {
		return err
	}
	if err := tx.Seats().Update(ctx, seat); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return errVersion(err)
		}
		return err
	}
	if _, err := tx.Reservations().ExpireHeldBySeat(ctx, seat.ID); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"component":    "inventory",
		"seat_id":      seat.ID,
		"prev_user_id": prev,
	}).Info("lapsed hold reclaimed")
	return nil
}

// ConfirmTx marks a held seat RESERVED inside the caller's transaction.
// The seat must be TEMP_HELD with a live hold.
func (s *Service) ConfirmTx(ctx context.Context, tx repository.Tx, seatID uint64, now time.Time) error {
	seat, err := tx.Seats().FindByID(ctx, seatID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrSeatNotFound
	}
	if err != nil {
		return err
	}
	switch err := seat.Confirm(now); {
	case errors.Is(err, model.ErrSeatNotHeld):
		return apperr.New(apperr.IllegalState, "seat-not-held", fmt.Sprintf("seat is %s, not TEMP_HELD", seat.Status))
	case errors.Is(err, model.ErrHoldLapsed):
		return apperr.ErrReservationExpired
	case err != nil:
		return err
	}
	if err := tx.Seats().Update(ctx, seat); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return errVersion(err)
		}
		return err
	}
	return nil
}

// Release returns the given seats to AVAILABLE when their hold ended
// before now, in its own transaction.
func (s *Service) Release(ctx context.Context, seatIDs []uint64, now time.Time) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		n, err = s.ReleaseTx(ctx, tx, seatIDs, now)
		return err
	})
	return n, err
}

// ReleaseTx is Release inside the caller's transaction.  Seats that were
// confirmed or re-held meanwhile are skipped.
func (s *Service) ReleaseTx(ctx context.Context, tx repository.Tx, seatIDs []uint64, now time.Time) (int64, error) {
	return tx.Seats().ReleaseExpired(ctx, seatIDs, now)
}

// ReleaseHold gives up userID's live hold on (date, seatNumber): the seat
// becomes AVAILABLE and the reservation CANCELLED.
func (s *Service) ReleaseHold(ctx context.Context, userID, date string, seatNumber int) error {
	return lock.WithLock(ctx, s.locks, lock.SeatKey(date, seatNumber), s.cfg.LockWait, s.cfg.LockLease, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			seat, err := tx.Seats().FindByDateAndNumber(ctx, date, seatNumber)
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.ErrReservationNotFound
			}
			if err != nil {
				return err
			}
			res, err := tx.Reservations().FindHeld(ctx, userID, date, seatNumber)
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.ErrReservationNotFound
			}
			if err != nil {
				return err
			}
			if seat.Status == model.SeatTempHeld && seat.HolderUserID == userID {
				_ = seat.Release()
				if err := tx.Seats().Update(ctx, seat); err != nil {
					if errors.Is(err, repository.ErrVersionConflict) {
						return errVersion(err)
					}
					return err
				}
			}
			if err := tx.Reservations().UpdateStatus(ctx, res.ID, model.ReservationTempHeld, model.ReservationCancelled, s.now()); err != nil {
				if errors.Is(err, repository.ErrVersionConflict) {
					return apperr.ErrReservationNotFound
				}
				return err
			}
			return nil
		})
	})
}

// CreateConcert creates seats 1..seats for date at price.  A date that
// already has seats is rejected.
func (s *Service) CreateConcert(ctx context.Context, date string, seats int, price int64) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return apperr.New(apperr.InvalidArgument, "invalid-date", "date must be YYYY-MM-DD")
	}
	if seats < 1 || price < 1 {
		return apperr.New(apperr.InvalidArgument, "invalid-concert", "seats and price must be positive")
	}
	list := make([]model.Seat, 0, seats)
	for i := 1; i <= seats; i++ {
		list = append(list, model.Seat{ConcertDate: date, SeatNumber: i, Status: model.SeatAvailable, Price: price})
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Seats().CreateBatch(ctx, list)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return apperr.New(apperr.Conflict, "concert-exists", "seats already exist for this date")
	}
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"component": "inventory", "concert_date": date, "seats": seats}).Info("concert seats created")
	return nil
}
