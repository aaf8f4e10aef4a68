// Package lock provides named mutual exclusion with bounded waiting and an
// auto-expiring lease.  Seat holds and balance mutations run inside a lock
// so that only one request per key touches the durable store at a time.
//
// Keys follow the convention "seat:{date}:{seatNumber}" and
// "point:{userId}".  No caller holds two keys at once.
package lock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/iliyamo/flashsale-booking/internal/apperr"
)

// Handle identifies one successful acquisition.  Only the holder of the
// handle can release the key.
type Handle struct {
	Key      string
	Owner    string
	Lease    time.Duration
	released atomic.Bool
}

// Coordinator acquires and releases named locks.
//
// Acquire waits at most wait for key; on timeout it returns a Conflict
// failure with code "lock-acquisition-failed".  The lease bounds how long
// the key stays held if the holder never releases it.
//
// Release is idempotent and only takes effect while h still owns the key.
type Coordinator interface {
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error)
	Release(ctx context.Context, h *Handle) error
}

// releaseTimeout bounds the detached release issued by WithLock.
const releaseTimeout = 2 * time.Second

// WithLock acquires key, runs fn and releases key.  The release uses a
// context detached from ctx so a cancelled request still frees the key.
// Release errors are dropped; the lease reclaims the key.
func WithLock(ctx context.Context, c Coordinator, key string, wait, lease time.Duration, fn func(ctx context.Context) error) error {
	h, err := c.Acquire(ctx, key, wait, lease)
	if err != nil {
		return err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		_ = c.Release(rctx, h)
	}()
	return fn(ctx)
}

// SeatKey names the lock guarding one seat.
func SeatKey(date string, seatNumber int) string {
	return fmt.Sprintf("seat:%s:%d", date, seatNumber)
}

// PointKey names the lock guarding one user's balance.
func PointKey(userID string) string {
	return "point:" + userID
}

func timeoutErr(key string) error {
	return apperr.Wrap(apperr.Conflict, apperr.ErrLockNotAcquired.Code,
		apperr.ErrLockNotAcquired.Message, fmt.Errorf("lock %q: wait timeout", key))
}
