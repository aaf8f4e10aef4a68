package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/metrics"
)

// delScript deletes the key only while it still holds the caller's token.
var delScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Redis implements Coordinator on a shared Redis instance, so every API
// replica contends on the same keys.  Waiters wake on an unlock message
// published on release, and poll every RetryInterval in case the holder's
// lease lapsed silently.
type Redis struct {
	client        *redis.Client
	logger        *logrus.Logger
	prefix        string
	retryInterval time.Duration
}

// NewRedis returns a coordinator storing lock keys under prefix (e.g. "LOCK:").
func NewRedis(client *redis.Client, logger *logrus.Logger, prefix string, retryInterval time.Duration) *Redis {
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &Redis{client: client, logger: logger, prefix: prefix, retryInterval: retryInterval}
}

func (r *Redis) storeKey(key string) string { return r.prefix + key }

func (r *Redis) channel(key string) string { return r.prefix + "unlock:" + key }

// tryLock attempts a single SET NX PX.
func (r *Redis) tryLock(ctx context.Context, key, owner string, lease time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.storeKey(key), owner, lease).Result()
}

// Acquire implements Coordinator.
func (r *Redis) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error) {
	owner := uuid.NewString()
	ok, err := r.tryLock(ctx, key, owner, lease)
	if err != nil {
		metrics.LockAcquired.WithLabelValues("error").Inc()
		return nil, err
	}
	if ok {
		metrics.LockAcquired.WithLabelValues("acquired").Inc()
		return &Handle{Key: key, Owner: owner, Lease: lease}, nil
	}

	sub := r.client.Subscribe(ctx, r.channel(key))
	defer sub.Close()
	unlocked := sub.Channel()

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	retry := time.NewTicker(r.retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			metrics.LockAcquired.WithLabelValues("error").Inc()
			return nil, ctx.Err()
		case <-deadline.C:
			metrics.LockAcquired.WithLabelValues("timeout").Inc()
			r.logger.WithField("component", "lock").WithField("key", key).Warn("lock wait timed out")
			return nil, timeoutErr(key)
		case <-unlocked:
		case <-retry.C:
		}
		ok, err := r.tryLock(ctx, key, owner, lease)
		if err != nil {
			metrics.LockAcquired.WithLabelValues("error").Inc()
			return nil, err
		}
		if ok {
			metrics.LockAcquired.WithLabelValues("acquired").Inc()
			return &Handle{Key: key, Owner: owner, Lease: lease}, nil
		}
	}
}

// Release implements Coordinator.
func (r *Redis) Release(ctx context.Context, h *Handle) error {
	if h == nil || h.released.Load() {
		return nil
	}
	n, err := delScript.Run(ctx, r.client, []string{r.storeKey(h.Key)}, h.Owner).Int()
	if err != nil && err != redis.Nil {
		return err
	}
	h.released.Store(true)
	if n == 1 {
		_ = r.client.Publish(ctx, r.channel(h.Key), h.Owner).Err()
	}
	return nil
}
