// Package ledger keeps users' prepaid point balances.  Every mutation runs
// under the user's "point:{userId}" lock and a conditional SQL write, so a
// balance can never go negative.
package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/apperr"
	"github.com/iliyamo/flashsale-booking/internal/lock"
	"github.com/iliyamo/flashsale-booking/internal/model"
	"github.com/iliyamo/flashsale-booking/internal/repository"
)

// Config tunes the point lock.
type Config struct {
	LockWait  time.Duration
	LockLease time.Duration
}

// Service implements charge, use and balance lookups.
type Service struct {
	store  repository.Store
	locks  lock.Coordinator
	cfg    Config
	logger *logrus.Logger
}

// New returns a Service.
func New(store repository.Store, locks lock.Coordinator, cfg Config, logger *logrus.Logger) *Service {
	return &Service{store: store, locks: locks, cfg: cfg, logger: logger}
}

var errOverflow = apperr.New(apperr.InvalidArgument, "invalid-amount", "charge would overflow the balance")

func checkInput(userID string, amount int64) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.New(apperr.InvalidArgument, "invalid-user", "user id is required")
	}
	if amount <= 0 {
		return apperr.ErrInvalidAmount
	}
	return nil
}

// Charge adds amount to userID's balance, creating the account on first
// charge, and returns the new balance.
func (s *Service) Charge(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := checkInput(userID, amount); err != nil {
		return 0, err
	}
	var balance int64
	err := lock.WithLock(ctx, s.locks, lock.PointKey(userID), s.cfg.LockWait, s.cfg.LockLease, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			acc, err := tx.Balances().Get(ctx, userID)
			if errors.Is(err, repository.ErrNotFound) {
				acc = &model.BalanceAccount{UserID: userID, Balance: amount}
				if err := tx.Balances().Insert(ctx, acc); err != nil {
					if errors.Is(err, repository.ErrDuplicate) {
						return apperr.Wrap(apperr.Conflict, "concurrent-update", "balance changed concurrently, try again", err)
					}
					return err
				}
				balance = acc.Balance
				return nil
			}
			if err != nil {
				return err
			}
			if acc.Balance > math.MaxInt64-amount {
				return errOverflow
			}
			acc.Balance += amount
			if err := tx.Balances().Update(ctx, acc); err != nil {
				if errors.Is(err, repository.ErrVersionConflict) {
					return apperr.Wrap(apperr.Conflict, "concurrent-update", "balance changed concurrently, try again", err)
				}
				return err
			}
			balance = acc.Balance
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"component": "ledger", "user_id": userID, "amount": amount}).Info("points charged")
	return balance, nil
}

// Use deducts amount from userID's balance and returns the new balance.
func (s *Service) Use(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := checkInput(userID, amount); err != nil {
		return 0, err
	}
	var balance int64
	err := lock.WithLock(ctx, s.locks, lock.PointKey(userID), s.cfg.LockWait, s.cfg.LockLease, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			balance, err = s.UseTx(ctx, tx, userID, amount)
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// UseTx deducts amount inside the caller's transaction.  The caller must
// already hold the user's point lock.
func (s *Service) UseTx(ctx context.Context, tx repository.Tx, userID string, amount int64) (int64, error) {
	if err := checkInput(userID, amount); err != nil {
		return 0, err
	}
	ok, err := tx.Balances().DeductIfSufficient(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	acc, err := tx.Balances().Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, apperr.ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.ErrInsufficientBalance
	}
	return acc.Balance, nil
}

// Balance returns userID's balance; users without an account have 0.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	b, err := s.store.Catalog().BalanceOf(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	return b, err
}
