package sweeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/admission"
	"github.com/iliyamo/flashsale-booking/internal/inventory"
	"github.com/iliyamo/flashsale-booking/internal/lock"
	"github.com/iliyamo/flashsale-booking/internal/model"
	"github.com/iliyamo/flashsale-booking/internal/repository/memory"
)

const date = "2026-12-24"

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestReleaseExpiredReservations(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clk := &clock{t: time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)}
	inv := inventory.New(store, lock.NewInMemory(), inventory.Config{HoldDuration: 5 * time.Minute, LockWait: time.Second, LockLease: time.Second}, quiet())
	inv.SetClock(clk.Now)
	if err := inv.CreateConcert(ctx, date, 3, 100); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = inv.Reserve(ctx, date, 1, "u1")
	_, _ = inv.Reserve(ctx, date, 2, "u2")
	clk.Advance(3 * time.Minute)
	_, _ = inv.Reserve(ctx, date, 3, "u3")
	clk.Advance(3 * time.Minute)

	sw := New(store, inv, nil, Config{}, quiet())
	sw.SetClock(clk.Now)
	res, err := sw.ReleaseExpiredReservations(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Seats != 2 || res.Reservations != 2 {
		t.Fatalf("result = %+v", res)
	}
	for n, want := range map[int]string{1: model.SeatAvailable, 2: model.SeatAvailable, 3: model.SeatTempHeld} {
		if s, _ := store.Seat(date, n); s.Status != want {
			t.Fatalf("seat %d = %s, want %s", n, s.Status, want)
		}
	}
	list, _ := store.Catalog().ReservationsByUser(ctx, "u1")
	if list[0].Status != model.ReservationExpired {
		t.Fatalf("u1 reservation = %s", list[0].Status)
	}

	again, err := sw.ReleaseExpiredReservations(ctx)
	if err != nil || again.Seats != 0 || again.Reservations != 0 {
		t.Fatalf("second pass = %+v, %v", again, err)
	}
}

func TestAdmitWaitingFillsSpareCapacity(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	gate := admission.NewGate(admission.NewRedisStore(client, "queue:", time.Hour),
		admission.Config{MaxActive: 3, TokenTTL: 10 * time.Minute}, nil, quiet())
	tokens := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		d, err := gate.Issue(ctx, fmt.Sprintf("u%d", i))
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		tokens = append(tokens, d.Token)
	}
	_ = gate.Expire(ctx, tokens[0])
	_ = gate.Expire(ctx, tokens[1])

	sw := New(memory.New(), nil, gate, Config{}, quiet())
	n, err := sw.AdmitWaiting(ctx)
	if err != nil || n != 2 {
		t.Fatalf("admitted %d, %v", n, err)
	}
	active, waiting, _ := gate.Stats(ctx)
	if active != 3 || waiting != 1 {
		t.Fatalf("active = %d, waiting = %d", active, waiting)
	}
	if n, _ := sw.AdmitWaiting(ctx); n != 0 {
		t.Fatalf("admitted %d into a full cohort", n)
	}
}

type failingGate struct {
	mu    sync.Mutex
	calls int
}

func (g *failingGate) SpareCapacity(context.Context) (int, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return 0, errors.New("redis down")
}

func (g *failingGate) AdmitWaiting(context.Context, int) (int, error) { return 0, nil }

func TestRunSurvivesFailingPasses(t *testing.T) {
	g := &failingGate{}
	sw := New(memory.New(), nil, g, Config{SweepInterval: time.Hour, AdmitInterval: 5 * time.Millisecond}, quiet())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := sw.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls < 2 {
		t.Fatalf("admission pass ran %d times, want repeated runs after failure", g.calls)
	}
}
