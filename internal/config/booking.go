package config

import (
    "fmt"
    "log"
    "time"
)

// BookingConfig carries the tunables of the waiting room, the lock
// coordinator, the seat inventory and the background sweeper.
type BookingConfig struct {
    MaxActive         int           // concurrent ACTIVE queue sessions
    TokenTTL          time.Duration // lifetime of an ACTIVE session
    ExpiredRetention  time.Duration // how long an EXPIRED token stays queryable
    WaitPerPosition   time.Duration // wait estimate per position ahead
    QueuePrefix       string        // Redis key prefix of the waiting room
    LockPrefix        string        // Redis key prefix of locks
    LockWait          time.Duration // max time to wait for a lock
    LockLease         time.Duration // auto-release of an abandoned lock
    LockRetry         time.Duration // poll interval while waiting
    HoldDuration      time.Duration // lifetime of a seat hold
    SeatPrice         int64         // default price of seeded seats
    SweepInterval     time.Duration // lapsed-hold sweep period
    AdmitInterval     time.Duration // waiting-room promotion period
    HookTimeout       time.Duration // deadline of each post-commit hook
    SeedDates         []string      // dates seeded at startup on an empty store
    SeedSeatsPerDate  int           // seats created per seeded date
}

// LoadBookingConfig reads BookingConfig from the environment, falling back
// to defaults for anything unset.  Non-positive capacities are fatal.
func LoadBookingConfig() BookingConfig {
    c := BookingConfig{
        MaxActive:        envInt("QUEUE_MAX_ACTIVE", 100),
        TokenTTL:         envDur("QUEUE_TOKEN_TTL", 10*time.Minute),
        ExpiredRetention: envDur("QUEUE_EXPIRED_RETENTION", 10*time.Minute),
        WaitPerPosition:  envDur("QUEUE_WAIT_PER_POSITION", 2*time.Minute),
        QueuePrefix:      envStr("QUEUE_PREFIX", "queue:"),
        LockPrefix:       envStr("LOCK_PREFIX", "LOCK:"),
        LockWait:         envDur("LOCK_WAIT_TIMEOUT", 5*time.Second),
        LockLease:        envDur("LOCK_LEASE_TIMEOUT", 3*time.Second),
        LockRetry:        envDur("LOCK_RETRY_INTERVAL", 50*time.Millisecond),
        HoldDuration:     envDur("HOLD_DURATION", 5*time.Minute),
        SeatPrice:        int64(envInt("SEAT_PRICE", 150000)),
        SweepInterval:    envDur("SWEEP_INTERVAL", time.Minute),
        AdmitInterval:    envDur("ADMIT_INTERVAL", 30*time.Second),
        HookTimeout:      envDur("HOOK_TIMEOUT", 10*time.Second),
        SeedDates:        parseList(envStr("SEED_DATES", "")),
        SeedSeatsPerDate: envInt("SEED_SEATS_PER_DATE", 50),
    }
    if c.MaxActive < 1 {
        log.Fatalf("QUEUE_MAX_ACTIVE must be positive, got %d", c.MaxActive)
    }
    if c.SeatPrice < 1 {
        log.Fatalf("SEAT_PRICE must be positive, got %d", c.SeatPrice)
    }
    if err := c.validateDurations(); err != nil {
        log.Fatal(err)
    }
    return c
}

// validateDurations rejects zero or negative timings.  A zero lease would
// never expire in Redis, and a zero interval panics the sweeper's ticker.
func (c BookingConfig) validateDurations() error {
    for _, d := range []struct {
        env string
        v   time.Duration
    }{
        {"QUEUE_TOKEN_TTL", c.TokenTTL},
        {"LOCK_WAIT_TIMEOUT", c.LockWait},
        {"LOCK_LEASE_TIMEOUT", c.LockLease},
        {"LOCK_RETRY_INTERVAL", c.LockRetry},
        {"HOLD_DURATION", c.HoldDuration},
        {"SWEEP_INTERVAL", c.SweepInterval},
        {"ADMIT_INTERVAL", c.AdmitInterval},
        {"HOOK_TIMEOUT", c.HookTimeout},
    } {
        if d.v <= 0 {
            return fmt.Errorf("%s must be positive, got %s", d.env, d.v)
        }
    }
    return nil
}
