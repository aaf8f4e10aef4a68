package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/flashsale-booking/internal/metrics"
)

type lockState struct {
	owner  string
	timer  *time.Timer
	notify chan struct{}
}

// InMemory implements Coordinator for a single process.  It backs the
// memory deployment and the service tests.
type InMemory struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

// NewInMemory returns an empty in-memory coordinator.
func NewInMemory() *InMemory {
	return &InMemory{locks: make(map[string]*lockState)}
}

// tryLock takes key for owner when free.  When taken it returns the
// channel closed on the current holder's release.
func (l *InMemory) tryLock(key, owner string, lease time.Duration) (bool, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.locks[key]; ok {
		return false, st.notify
	}
	st := &lockState{owner: owner, notify: make(chan struct{})}
	if lease > 0 {
		st.timer = time.AfterFunc(lease, func() { l.unlock(key, owner) })
	}
	l.locks[key] = st
	return true, nil
}

func (l *InMemory) unlock(key, owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.locks[key]
	if !ok || st.owner != owner {
		return false
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	close(st.notify)
	delete(l.locks, key)
	return true
}

// Acquire implements Coordinator.
func (l *InMemory) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error) {
	owner := uuid.NewString()
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		ok, released := l.tryLock(key, owner, lease)
		if ok {
			metrics.LockAcquired.WithLabelValues("acquired").Inc()
			return &Handle{Key: key, Owner: owner, Lease: lease}, nil
		}
		select {
		case <-released:
		case <-deadline.C:
			metrics.LockAcquired.WithLabelValues("timeout").Inc()
			return nil, timeoutErr(key)
		case <-ctx.Done():
			metrics.LockAcquired.WithLabelValues("error").Inc()
			return nil, ctx.Err()
		}
	}
}

// Release implements Coordinator.
func (l *InMemory) Release(_ context.Context, h *Handle) error {
	if h == nil || h.released.Swap(true) {
		return nil
	}
	l.unlock(h.Key, h.Owner)
	return nil
}
