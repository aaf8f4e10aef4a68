package admission

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownToken is returned by Store.Lookup for a token it never issued
// or has already forgotten.
var ErrUnknownToken = errors.New("unknown queue token")

// Entry is the stored view of one token.
type Entry struct {
	Token     string
	UserID    string
	Status    string
	Position  int64     // 1-based rank while WAITING
	ExpiresAt time.Time // end of the session while ACTIVE
}

// Store keeps the waiting set and the active cohort.  Each method is atomic
// with respect to the others, so concurrent Issue calls can never admit
// more than maxActive sessions.
type Store interface {
	// Issue returns the user's live token, or creates candidate as ACTIVE
	// when a slot is free and as WAITING otherwise.  created reports whether
	// candidate was used.
	Issue(ctx context.Context, userID, candidate string, now time.Time, ttl time.Duration, maxActive int) (e Entry, created bool, err error)
	// Lookup reports the current status of token.
	Lookup(ctx context.Context, token string, now time.Time) (Entry, error)
	// Expire moves token to EXPIRED and frees its slot.  It reports whether
	// the token was live.
	Expire(ctx context.Context, token string) (bool, error)
	// Admit promotes up to n of the earliest waiting tokens, never growing
	// the cohort past maxActive.  It returns the number promoted.
	Admit(ctx context.Context, n int, now time.Time, ttl time.Duration, maxActive int) (int, error)
	// Counts returns the active and waiting set sizes.
	Counts(ctx context.Context, now time.Time) (active, waiting int64, err error)
}
