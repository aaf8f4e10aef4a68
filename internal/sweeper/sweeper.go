// Package sweeper runs the background reconciliation passes: releasing
// seats whose hold lapsed and promoting waiting tokens into free slots.
// It never takes request-path locks; the conditional updates it issues
// skip any row that a request moved on in the meantime.
package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/inventory"
	"github.com/iliyamo/flashsale-booking/internal/metrics"
	"github.com/iliyamo/flashsale-booking/internal/repository"
)

// Admitter is the part of the admission gate the sweeper drives.
type Admitter interface {
	SpareCapacity(ctx context.Context) (int, error)
	AdmitWaiting(ctx context.Context, n int) (int, error)
}

// Config sets the pass intervals.
type Config struct {
	SweepInterval time.Duration
	AdmitInterval time.Duration
}

// Result reports one release pass.
type Result struct {
	Seats        int64
	Reservations int64
}

// Sweeper owns both passes.
type Sweeper struct {
	store     repository.Store
	inventory *inventory.Service
	gate      Admitter
	cfg       Config
	logger    *logrus.Logger
	now       func() time.Time
}

// New returns a Sweeper.
func New(store repository.Store, inv *inventory.Service, gate Admitter, cfg Config, logger *logrus.Logger) *Sweeper {
	return &Sweeper{store: store, inventory: inv, gate: gate, cfg: cfg, logger: logger,
		now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the sweeper clock.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// ReleaseExpiredReservations frees every seat whose TEMP_HELD reservation
// lapsed and marks those reservations EXPIRED, in one transaction.
func (s *Sweeper) ReleaseExpiredReservations(ctx context.Context) (Result, error) {
	var out Result
	now := s.now()
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ids, err := tx.Reservations().ExpiredHeldSeatIDs(ctx, now)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if out.Seats, err = s.inventory.ReleaseTx(ctx, tx, ids, now); err != nil {
			return err
		}
		out.Reservations, err = tx.Reservations().ExpireHeld(ctx, now)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if out.Seats > 0 || out.Reservations > 0 {
		metrics.SeatsSwept.Add(float64(out.Seats))
		s.logger.WithFields(logrus.Fields{
			"component":    "sweeper",
			"seats":        out.Seats,
			"reservations": out.Reservations,
		}).Info("lapsed holds released")
	}
	return out, nil
}

// AdmitWaiting fills the active cohort's free slots from the waiting set.
func (s *Sweeper) AdmitWaiting(ctx context.Context) (int, error) {
	spare, err := s.gate.SpareCapacity(ctx)
	if err != nil {
		return 0, err
	}
	if spare == 0 {
		return 0, nil
	}
	return s.gate.AdmitWaiting(ctx, spare)
}

// Run executes both passes on their own tickers until ctx is cancelled.
// A failing pass is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()
	admit := time.NewTicker(s.cfg.AdmitInterval)
	defer admit.Stop()
	log := s.logger.WithField("component", "sweeper")
	log.WithFields(logrus.Fields{
		"sweep_interval": s.cfg.SweepInterval.String(),
		"admit_interval": s.cfg.AdmitInterval.String(),
	}).Info("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return nil
		case <-sweep.C:
			if _, err := s.ReleaseExpiredReservations(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("release pass failed")
			}
		case <-admit.C:
			if _, err := s.AdmitWaiting(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("admission pass failed")
			}
		}
	}
}
