// Package booking composes the waiting room, seat inventory and balance
// ledger into the two user-facing flows: holding a seat and paying for it.
// Each flow commits in one durable transaction; notifications and ranking
// updates run afterwards as isolated post-commit hooks.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/apperr"
	"github.com/iliyamo/flashsale-booking/internal/inventory"
	"github.com/iliyamo/flashsale-booking/internal/ledger"
	"github.com/iliyamo/flashsale-booking/internal/lock"
	"github.com/iliyamo/flashsale-booking/internal/metrics"
	"github.com/iliyamo/flashsale-booking/internal/model"
	"github.com/iliyamo/flashsale-booking/internal/queue"
	"github.com/iliyamo/flashsale-booking/internal/repository"
)

// Gate is the part of the admission gate the flows need.
type Gate interface {
	ValidateUser(ctx context.Context, token, userID string) error
	Expire(ctx context.Context, token string) error
}

// NotificationSink receives booking events after commit.
type NotificationSink interface {
	SendPaymentCompleted(ctx context.Context, ev queue.PaymentCompletedEvent) error
	SendReservationCompleted(ctx context.Context, ev queue.ReservationCompletedEvent) error
}

// RankingCollector counts reserved seats per concert date.
type RankingCollector interface {
	OnSeatReserved(ctx context.Context, date string) error
}

// Config tunes the point lock and hook deadlines.
type Config struct {
	LockWait    time.Duration
	LockLease   time.Duration
	HookTimeout time.Duration
}

// ReserveResult is returned by ReserveSeat.
type ReserveResult struct {
	ReservationID uint64    `json:"reservation_id"`
	ConcertDate   string    `json:"date"`
	SeatNumber    int       `json:"seat_number"`
	Price         int64     `json:"price"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	Status        string    `json:"status"`
}

// PaymentResult is returned by ProcessPayment.
type PaymentResult struct {
	PaymentID        uint64 `json:"payment_id"`
	ReservationID    uint64 `json:"reservation_id"`
	Amount           int64  `json:"amount"`
	RemainingBalance int64  `json:"remaining_balance"`
	Status           string `json:"status"`
}

// Orchestrator runs the booking flows.
type Orchestrator struct {
	store     repository.Store
	locks     lock.Coordinator
	gate      Gate
	inventory *inventory.Service
	ledger    *ledger.Service
	sink      NotificationSink
	ranking   RankingCollector
	cfg       Config
	logger    *logrus.Logger
	now       func() time.Time

	hooks sync.WaitGroup
}

// Deps groups the collaborators of an Orchestrator.  Sink and Ranking may
// be nil.
type Deps struct {
	Store     repository.Store
	Locks     lock.Coordinator
	Gate      Gate
	Inventory *inventory.Service
	Ledger    *ledger.Service
	Sink      NotificationSink
	Ranking   RankingCollector
	Logger    *logrus.Logger
}

// New returns an Orchestrator.
func New(d Deps, cfg Config) *Orchestrator {
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = 10 * time.Second
	}
	return &Orchestrator{
		store:     d.Store,
		locks:     d.Locks,
		gate:      d.Gate,
		inventory: d.Inventory,
		ledger:    d.Ledger,
		sink:      d.Sink,
		ranking:   d.Ranking,
		cfg:       cfg,
		logger:    d.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the orchestrator clock.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// ReserveSeat holds (date, seatNumber) for userID, whose token must be
// ACTIVE.  The token stays active so the user can go on to pay.
func (o *Orchestrator) ReserveSeat(ctx context.Context, token, userID, date string, seatNumber int) (ReserveResult, error) {
	if err := o.gate.ValidateUser(ctx, token, userID); err != nil {
		return ReserveResult{}, err
	}
	res, err := o.inventory.Reserve(ctx, date, seatNumber, userID)
	if err != nil {
		return ReserveResult{}, err
	}

	ev := queue.ReservationCompletedEvent{
		ReservationID: res.ID,
		UserID:        res.UserID,
		ConcertDate:   res.ConcertDate,
		SeatNumber:    res.SeatNumber,
		HoldExpiresAt: res.HoldExpiresAt.UTC().Format(time.RFC3339),
	}
	var hooks []hook
	if o.ranking != nil {
		hooks = append(hooks, hook{"ranking", func(ctx context.Context) error {
			return o.ranking.OnSeatReserved(ctx, res.ConcertDate)
		}})
	}
	if o.sink != nil {
		hooks = append(hooks, hook{"reservation-notification", func(ctx context.Context) error {
			return o.sink.SendReservationCompleted(ctx, ev)
		}})
	}
	o.afterCommit(ctx, hooks...)

	return ReserveResult{
		ReservationID: res.ID,
		ConcertDate:   res.ConcertDate,
		SeatNumber:    res.SeatNumber,
		Price:         res.Price,
		HoldExpiresAt: res.HoldExpiresAt,
		Status:        res.Status,
	}, nil
}

// ProcessPayment pays for userID's held seat from the point balance.  The
// debit, seat confirmation, reservation confirmation, payment record and
// token expiry commit together or not at all; on failure the token stays
// usable.  The one exception is a commit that fails after the token was
// expired: that returns Conflict "queue-token-spent" and the user has to
// queue again.
func (o *Orchestrator) ProcessPayment(ctx context.Context, token, userID, date string, seatNumber int) (PaymentResult, error) {
	if err := o.gate.ValidateUser(ctx, token, userID); err != nil {
		return PaymentResult{}, err
	}

	var (
		out   PaymentResult
		ev    queue.PaymentCompletedEvent
		spent bool
	)
	err := lock.WithLock(ctx, o.locks, lock.PointKey(userID), o.cfg.LockWait, o.cfg.LockLease, func(ctx context.Context) error {
		return o.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			now := o.now()
			// Seat row before reservation row, the order Reserve and the
			// sweeper take them in.
			if _, err := tx.Seats().FindByDateAndNumber(ctx, date, seatNumber); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.ErrReservationNotFound
				}
				return err
			}
			res, err := tx.Reservations().FindHeld(ctx, userID, date, seatNumber)
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.ErrReservationNotFound
			}
			if err != nil {
				return err
			}
			if res.Lapsed(now) {
				return apperr.ErrReservationExpired
			}

			remaining, err := o.ledger.UseTx(ctx, tx, userID, res.Price)
			if err != nil {
				return err
			}
			if err := o.inventory.ConfirmTx(ctx, tx, res.SeatID, now); err != nil {
				return err
			}
			if err := tx.Reservations().UpdateStatus(ctx, res.ID, model.ReservationTempHeld, model.ReservationConfirmed, now); err != nil {
				if errors.Is(err, repository.ErrVersionConflict) {
					return apperr.New(apperr.IllegalState, "reservation-not-held", "reservation is no longer held")
				}
				return err
			}
			p := &model.Payment{
				ReservationID: res.ID,
				UserID:        userID,
				Amount:        res.Price,
				Status:        model.PaymentCompleted,
				PaidAt:        now,
			}
			if err := tx.Payments().Create(ctx, p); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return apperr.New(apperr.Conflict, "payment-exists", "reservation is already paid")
				}
				return err
			}
			if err := o.gate.Expire(ctx, token); err != nil {
				return fmt.Errorf("expire queue token: %w", err)
			}
			spent = true

			out = PaymentResult{
				PaymentID:        p.ID,
				ReservationID:    res.ID,
				Amount:           p.Amount,
				RemainingBalance: remaining,
				Status:           p.Status,
			}
			ev = queue.PaymentCompletedEvent{
				PaymentID:     p.ID,
				ReservationID: res.ID,
				UserID:        userID,
				ConcertDate:   res.ConcertDate,
				SeatNumber:    res.SeatNumber,
				Amount:        p.Amount,
				PaidAt:        now.Format(time.RFC3339),
			}
			return nil
		})
	})
	if err != nil && spent {
		err = apperr.Wrap(apperr.Conflict, "queue-token-spent",
			"payment was not recorded and the queue token is no longer valid, request a new token", err)
	}
	if err != nil {
		metrics.Payments.WithLabelValues("failed").Inc()
		o.logger.WithFields(logrus.Fields{
			"component":    "booking",
			"user_id":      userID,
			"concert_date": date,
			"seat_number":  seatNumber,
		}).WithError(err).Warn("payment failed")
		return PaymentResult{}, err
	}

	metrics.Payments.WithLabelValues("completed").Inc()
	o.logger.WithFields(logrus.Fields{
		"component":  "booking",
		"user_id":    userID,
		"payment_id": out.PaymentID,
		"amount":     out.Amount,
	}).Info("payment completed")
	if o.sink != nil {
		o.afterCommit(ctx, hook{"payment-notification", func(ctx context.Context) error {
			return o.sink.SendPaymentCompleted(ctx, ev)
		}})
	}
	return out, nil
}

// ReleaseHold gives up userID's hold on (date, seatNumber).
func (o *Orchestrator) ReleaseHold(ctx context.Context, token, userID, date string, seatNumber int) error {
	if err := o.gate.ValidateUser(ctx, token, userID); err != nil {
		return err
	}
	return o.inventory.ReleaseHold(ctx, userID, date, seatNumber)
}

// Reservations lists userID's reservations, newest first.
func (o *Orchestrator) Reservations(ctx context.Context, userID string) ([]model.Reservation, error) {
	return o.store.Catalog().ReservationsByUser(ctx, userID)
}

// Wait blocks until every post-commit hook started so far has finished.
func (o *Orchestrator) Wait() { o.hooks.Wait() }
