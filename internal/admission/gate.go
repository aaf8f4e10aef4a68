// Package admission implements the waiting room in front of the booking
// endpoints.  At most MaxActive sessions are ACTIVE at any time; everyone
// else waits in arrival order and is promoted as slots free up.
package admission

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/apperr"
	"github.com/iliyamo/flashsale-booking/internal/metrics"
	"github.com/iliyamo/flashsale-booking/internal/model"
)

// Config bounds the active cohort.
type Config struct {
	MaxActive int
	TokenTTL  time.Duration
}

// Descriptor is what clients see of their token.
type Descriptor struct {
	Token                string `json:"token"`
	Status               string `json:"status"`
	Position             int64  `json:"position"`
	ExpiresInSeconds     int64  `json:"expires_in_seconds"`
	EstimatedWaitSeconds int64  `json:"estimated_wait_seconds"`
}

// WaitEstimator turns a waiting position into an expected wait.
type WaitEstimator interface {
	Estimate(position int64) time.Duration
}

// PerPosition estimates a fixed wait per position ahead.
type PerPosition time.Duration

// Estimate implements WaitEstimator.
func (p PerPosition) Estimate(position int64) time.Duration {
	if position <= 0 {
		return 0
	}
	return time.Duration(position) * time.Duration(p)
}

// Gate is the admission gate.  It is safe for concurrent use; atomicity
// comes from the Store.
type Gate struct {
	store     Store
	cfg       Config
	estimator WaitEstimator
	logger    *logrus.Logger
	now       func() time.Time
}

// NewGate returns a Gate over store.  A nil estimator defaults to two
// minutes per position.
func NewGate(store Store, cfg Config, estimator WaitEstimator, logger *logrus.Logger) *Gate {
	if estimator == nil {
		estimator = PerPosition(2 * time.Minute)
	}
	return &Gate{store: store, cfg: cfg, estimator: estimator, logger: logger, now: time.Now}
}

// SetClock overrides the gate's clock.
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// Issue returns the user's live token, or a new one that is ACTIVE when a
// slot is free and WAITING otherwise.
func (g *Gate) Issue(ctx context.Context, userID string) (Descriptor, error) {
	if strings.TrimSpace(userID) == "" {
		return Descriptor{}, apperr.New(apperr.InvalidArgument, "invalid-user", "user id is required")
	}
	now := g.now()
	e, created, err := g.store.Issue(ctx, userID, uuid.NewString(), now, g.cfg.TokenTTL, g.cfg.MaxActive)
	if err != nil {
		return Descriptor{}, err
	}
	if created {
		metrics.TokensIssued.WithLabelValues(e.Status).Inc()
		g.logger.WithFields(logrus.Fields{
			"component": "admission",
			"user_id":   userID,
			"status":    e.Status,
			"position":  e.Position,
		}).Info("queue token issued")
	}
	return g.describe(e, now), nil
}

// Status reports the current state of token.  Unknown or expired tokens
// fail with invalid-token.
func (g *Gate) Status(ctx context.Context, token string) (Descriptor, error) {
	now := g.now()
	e, err := g.lookup(ctx, token, now)
	if err != nil {
		return Descriptor{}, err
	}
	if e.Status == model.TokenExpired {
		return Descriptor{}, apperr.ErrInvalidToken
	}
	return g.describe(e, now), nil
}

// Validate succeeds only for an ACTIVE token.
func (g *Gate) Validate(ctx context.Context, token string) error {
	_, err := g.active(ctx, token)
	return err
}

// ValidateUser succeeds only for an ACTIVE token issued to userID.
func (g *Gate) ValidateUser(ctx context.Context, token, userID string) error {
	e, err := g.active(ctx, token)
	if err != nil {
		return err
	}
	if e.UserID != userID {
		return apperr.New(apperr.Forbidden, "token-user-mismatch", "queue token belongs to another user")
	}
	return nil
}

func (g *Gate) active(ctx context.Context, token string) (Entry, error) {
	e, err := g.lookup(ctx, token, g.now())
	if err != nil {
		return Entry{}, err
	}
	switch e.Status {
	case model.TokenActive:
		return e, nil
	case model.TokenWaiting:
		return Entry{}, apperr.ErrInactiveToken
	default:
		return Entry{}, apperr.ErrInvalidToken
	}
}

func (g *Gate) lookup(ctx context.Context, token string, now time.Time) (Entry, error) {
	if token == "" {
		return Entry{}, apperr.ErrInvalidToken
	}
	e, err := g.store.Lookup(ctx, token, now)
	if errors.Is(err, ErrUnknownToken) {
		return Entry{}, apperr.ErrInvalidToken
	}
	return e, err
}

// Expire ends token's session.  Expiring an unknown or already expired
// token is a no-op.
func (g *Gate) Expire(ctx context.Context, token string) error {
	live, err := g.store.Expire(ctx, token)
	if err != nil {
		return err
	}
	if live {
		g.logger.WithField("component", "admission").Debug("queue token expired")
	}
	return nil
}

// AdmitWaiting promotes up to n of the earliest waiting tokens without
// exceeding MaxActive and returns how many were promoted.
func (g *Gate) AdmitWaiting(ctx context.Context, n int) (int, error) {
	got, err := g.store.Admit(ctx, n, g.now(), g.cfg.TokenTTL, g.cfg.MaxActive)
	if err != nil {
		return 0, err
	}
	if got > 0 {
		metrics.TokensAdmitted.Add(float64(got))
		g.logger.WithFields(logrus.Fields{"component": "admission", "admitted": got}).Info("waiting tokens admitted")
	}
	return got, nil
}

// SpareCapacity returns how many more sessions may become ACTIVE now.
func (g *Gate) SpareCapacity(ctx context.Context) (int, error) {
	active, _, err := g.store.Counts(ctx, g.now())
	if err != nil {
		return 0, err
	}
	metrics.ActiveSessions.Set(float64(active))
	spare := int64(g.cfg.MaxActive) - active
	if spare < 0 {
		return 0, nil
	}
	return int(spare), nil
}

// Stats returns the active and waiting set sizes.
func (g *Gate) Stats(ctx context.Context) (active, waiting int64, err error) {
	return g.store.Counts(ctx, g.now())
}

func (g *Gate) describe(e Entry, now time.Time) Descriptor {
	d := Descriptor{Token: e.Token, Status: e.Status}
	switch e.Status {
	case model.TokenActive:
		if left := e.ExpiresAt.Sub(now); left > 0 {
			d.ExpiresInSeconds = int64(math.Ceil(left.Seconds()))
		}
	case model.TokenWaiting:
		d.Position = e.Position
		d.EstimatedWaitSeconds = int64(g.estimator.Estimate(e.Position).Seconds())
	}
	return d
}
