package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flashsale-booking/internal/admission"
	"github.com/iliyamo/flashsale-booking/internal/apperr"
	"github.com/iliyamo/flashsale-booking/internal/inventory"
	"github.com/iliyamo/flashsale-booking/internal/ledger"
	"github.com/iliyamo/flashsale-booking/internal/lock"
	"github.com/iliyamo/flashsale-booking/internal/model"
	"github.com/iliyamo/flashsale-booking/internal/queue"
	"github.com/iliyamo/flashsale-booking/internal/repository"
	"github.com/iliyamo/flashsale-booking/internal/repository/memory"
)

const date = "2026-12-24"

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

type recordingSink struct {
	mu           sync.Mutex
	payments     []queue.PaymentCompletedEvent
	reservations []queue.ReservationCompletedEvent
	err          error
	panic        bool
}

func (s *recordingSink) SendPaymentCompleted(_ context.Context, ev queue.PaymentCompletedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("sink exploded")
	}
	s.payments = append(s.payments, ev)
	return s.err
}

func (s *recordingSink) SendReservationCompleted(_ context.Context, ev queue.ReservationCompletedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("sink exploded")
	}
	s.reservations = append(s.reservations, ev)
	return s.err
}

type countingRanking struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (r *countingRanking) OnSeatReserved(_ context.Context, d string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[d]++
	return r.err
}

type fixture struct {
	orch    *Orchestrator
	gate    *admission.Gate
	ledger  *ledger.Service
	locks   *lock.InMemory
	store   *memory.Store
	clock   *clock
	sink    *recordingSink
	ranking *countingRanking
}

type fixtureOptions struct {
	maxActive int
	lockWait  time.Duration
	// wrap, when set, decorates the store every service sees.
	wrap func(repository.Store) repository.Store
}

func newFixture(t *testing.T, maxActive int) *fixture {
	t.Helper()
	return newFixtureWith(t, fixtureOptions{maxActive: maxActive, lockWait: 5 * time.Second})
}

func newFixtureWith(t *testing.T, opt fixtureOptions) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clk := &clock{t: time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)}
	store := memory.New()
	var shared repository.Store = store
	if opt.wrap != nil {
		shared = opt.wrap(store)
	}
	locks := lock.NewInMemory()
	gate := admission.NewGate(admission.NewRedisStore(client, "queue:", time.Hour),
		admission.Config{MaxActive: opt.maxActive, TokenTTL: 10 * time.Minute}, nil, logger)
	inv := inventory.New(shared, locks, inventory.Config{HoldDuration: 5 * time.Minute, LockWait: opt.lockWait, LockLease: 3 * time.Second}, logger)
	inv.SetClock(clk.Now)
	led := ledger.New(shared, locks, ledger.Config{LockWait: opt.lockWait, LockLease: 3 * time.Second}, logger)
	sink := &recordingSink{}
	ranking := &countingRanking{}
	orch := New(Deps{
		Store: shared, Locks: locks, Gate: gate, Inventory: inv, Ledger: led,
		Sink: sink, Ranking: ranking, Logger: logger,
	}, Config{LockWait: opt.lockWait, LockLease: 3 * time.Second, HookTimeout: time.Second})
	orch.SetClock(clk.Now)

	if err := inv.CreateConcert(context.Background(), date, 5, 150000); err != nil {
		t.Fatalf("create concert: %v", err)
	}
	return &fixture{orch: orch, gate: gate, ledger: led, locks: locks, store: store, clock: clk, sink: sink, ranking: ranking}
}

func (f *fixture) token(t *testing.T, user string) string {
	t.Helper()
	d, err := f.gate.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return d.Token
}

func TestReserveThenPay(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tok := f.token(t, "u1")
	if _, err := f.ledger.Charge(ctx, "u1", 200000); err != nil {
		t.Fatalf("charge: %v", err)
	}

	held, err := f.orch.ReserveSeat(ctx, tok, "u1", date, 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if held.Status != model.ReservationTempHeld || held.Price != 150000 {
		t.Fatalf("reserve result = %+v", held)
	}

	paid, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 3)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != model.PaymentCompleted || paid.Amount != 150000 || paid.RemainingBalance != 50000 || paid.ReservationID != held.ReservationID {
		t.Fatalf("payment result = %+v", paid)
	}
	f.orch.Wait()

	seat, _ := f.store.Seat(date, 3)
	if seat.Status != model.SeatReserved {
		t.Fatalf("seat = %s", seat.Status)
	}
	if ps := f.store.Payments(); len(ps) != 1 || ps[0].Status != model.PaymentCompleted {
		t.Fatalf("payments = %+v", ps)
	}
	list, _ := f.orch.Reservations(ctx, "u1")
	if len(list) != 1 || list[0].Status != model.ReservationConfirmed || list[0].ConfirmedAt == nil {
		t.Fatalf("reservations = %+v", list)
	}
	if b, _ := f.ledger.Balance(ctx, "u1"); b != 50000 {
		t.Fatalf("balance = %d", b)
	}
	if err := f.gate.Validate(ctx, tok); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("token should be expired after payment: %v", err)
	}
	if len(f.sink.reservations) != 1 || len(f.sink.payments) != 1 || f.sink.payments[0].PaymentID != paid.PaymentID {
		t.Fatalf("sink = %+v / %+v", f.sink.reservations, f.sink.payments)
	}
	if f.ranking.counts[date] != 1 {
		t.Fatalf("ranking = %v", f.ranking.counts)
	}
}

func TestFailedPaymentLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tok := f.token(t, "u1")
	_, _ = f.ledger.Charge(ctx, "u1", 100)
	if _, err := f.orch.ReserveSeat(ctx, tok, "u1", date, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 1)
	if !apperr.Is(err, apperr.InsufficientBalance) {
		t.Fatalf("pay: %v", err)
	}
	if seat, _ := f.store.Seat(date, 1); seat.Status != model.SeatTempHeld {
		t.Fatalf("seat = %s", seat.Status)
	}
	if len(f.store.Payments()) != 0 {
		t.Fatal("payment recorded for a failed payment")
	}
	if b, _ := f.ledger.Balance(ctx, "u1"); b != 100 {
		t.Fatalf("balance = %d", b)
	}
	if err := f.gate.Validate(ctx, tok); err != nil {
		t.Fatalf("token should stay usable: %v", err)
	}

	_, _ = f.ledger.Charge(ctx, "u1", 150000)
	if _, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 1); err != nil {
		t.Fatalf("retry after top-up: %v", err)
	}
}

func TestPaymentFailures(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	tok := f.token(t, "u1")
	_, _ = f.ledger.Charge(ctx, "u1", 1000000)

	if _, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 2); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("pay without hold: %v", err)
	}
	if _, err := f.orch.ProcessPayment(ctx, "bogus", "u1", date, 2); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("pay with unknown token: %v", err)
	}
	waiting := f.token(t, "u2")
	if _, err := f.orch.ReserveSeat(ctx, waiting, "u2", date, 2); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("reserve while waiting: %v", err)
	}
	if _, err := f.orch.ReserveSeat(ctx, tok, "u2", date, 2); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("reserve with someone else's token: %v", err)
	}

	if _, err := f.orch.ReserveSeat(ctx, tok, "u1", date, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	f.clock.Advance(5*time.Minute + time.Second)
	if _, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 2); !apperr.Is(err, apperr.ReservationExpired) {
		t.Fatalf("pay after hold lapsed: %v", err)
	}
	if b, _ := f.ledger.Balance(ctx, "u1"); b != 1000000 {
		t.Fatalf("balance = %d", b)
	}
	f.orch.Wait()
}

func TestHookFailuresDoNotFailTheCall(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.sink.err = errors.New("broker down")
	f.ranking.err = errors.New("redis down")
	tok := f.token(t, "u1")
	_, _ = f.ledger.Charge(ctx, "u1", 150000)

	if _, err := f.orch.ReserveSeat(ctx, tok, "u1", date, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	f.sink.mu.Lock()
	f.sink.panic = true
	f.sink.mu.Unlock()
	f.orch.Wait()
	if _, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 4); err != nil {
		t.Fatalf("pay: %v", err)
	}
	f.orch.Wait()
	if seat, _ := f.store.Seat(date, 4); seat.Status != model.SeatReserved {
		t.Fatalf("seat = %s", seat.Status)
	}
}

func TestReleaseHoldFreesSeat(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tok := f.token(t, "u1")
	if _, err := f.orch.ReserveSeat(ctx, tok, "u1", date, 5); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := f.orch.ReleaseHold(ctx, tok, "u1", date, 5); err != nil {
		t.Fatalf("release: %v", err)
	}
	if seat, _ := f.store.Seat(date, 5); seat.Status != model.SeatAvailable {
		t.Fatalf("seat = %s", seat.Status)
	}
	f.orch.Wait()
}

func TestConcurrentPaymentsChargeOnce(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tok := f.token(t, "u1")
	_, _ = f.ledger.Charge(ctx, "u1", 1000000)
	if _, err := f.orch.ReserveSeat(ctx, tok, "u1", date, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	f.orch.Wait()
	if ok != 1 {
		t.Fatalf("%d payments succeeded", ok)
	}
	if b, _ := f.ledger.Balance(ctx, "u1"); b != 1000000-150000 {
		t.Fatalf("balance = %d", b)
	}
}

func TestPaymentTakesPointLock(t *testing.T) {
	f := newFixtureWith(t, fixtureOptions{maxActive: 10, lockWait: 50 * time.Millisecond})
	ctx := context.Background()
	tok := f.token(t, "u1")
	_, _ = f.ledger.Charge(ctx, "u1", 1000000)
	if _, err := f.orch.ReserveSeat(ctx, tok, "u1", date, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	h, err := f.locks.Acquire(ctx, lock.PointKey("u1"), time.Second, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err = f.orch.ProcessPayment(ctx, tok, "u1", date, 1)
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.Conflict || e.Code != apperr.ErrLockNotAcquired.Code {
		t.Fatalf("pay while point lock is held: %v", err)
	}
	if err := f.gate.Validate(ctx, tok); err != nil {
		t.Fatalf("token lost on lock timeout: %v", err)
	}
	if seat, _ := f.store.Seat(date, 1); seat.Status != model.SeatTempHeld {
		t.Fatalf("seat = %s", seat.Status)
	}
	_ = f.locks.Release(ctx, h)

	if _, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 1); err != nil {
		t.Fatalf("pay after release: %v", err)
	}
	f.orch.Wait()
}

// readOrder records which row kinds a transaction reads for update.
type readOrder struct {
	mu    sync.Mutex
	reads []string
}

func (o *readOrder) add(kind string) {
	o.mu.Lock()
	o.reads = append(o.reads, kind)
	o.mu.Unlock()
}

func (o *readOrder) reset() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.reads
	o.reads = nil
	return out
}

type orderedStore struct {
	repository.Store
	order *readOrder
}

func (s orderedStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, orderedTx{Tx: tx, order: s.order})
	})
}

type orderedTx struct {
	repository.Tx
	order *readOrder
}

func (t orderedTx) Seats() repository.SeatRepository {
	return orderedSeats{SeatRepository: t.Tx.Seats(), order: t.order}
}

func (t orderedTx) Reservations() repository.ReservationRepository {
	return orderedReservations{ReservationRepository: t.Tx.Reservations(), order: t.order}
}

type orderedSeats struct {
	repository.SeatRepository
	order *readOrder
}

func (r orderedSeats) FindByDateAndNumber(ctx context.Context, d string, n int) (*model.Seat, error) {
	r.order.add("seat")
	return r.SeatRepository.FindByDateAndNumber(ctx, d, n)
}

func (r orderedSeats) FindByID(ctx context.Context, id uint64) (*model.Seat, error) {
	r.order.add("seat")
	return r.SeatRepository.FindByID(ctx, id)
}

type orderedReservations struct {
	repository.ReservationRepository
	order *readOrder
}

func (r orderedReservations) FindHeld(ctx context.Context, userID, d string, n int) (*model.Reservation, error) {
	r.order.add("reservation")
	return r.ReservationRepository.FindHeld(ctx, userID, d, n)
}

func TestSeatRowIsReadBeforeReservation(t *testing.T) {
	order := &readOrder{}
	f := newFixtureWith(t, fixtureOptions{
		maxActive: 10,
		lockWait:  5 * time.Second,
		wrap:      func(s repository.Store) repository.Store { return orderedStore{Store: s, order: order} },
	})
	ctx := context.Background()
	tok := f.token(t, "u1")
	_, _ = f.ledger.Charge(ctx, "u1", 1000000)
	for _, n := range []int{1, 2} {
		if _, err := f.orch.ReserveSeat(ctx, tok, "u1", date, n); err != nil {
			t.Fatalf("reserve %d: %v", n, err)
		}
	}

	order.reset()
	if err := f.orch.ReleaseHold(ctx, tok, "u1", date, 2); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := order.reset(); len(got) < 2 || got[0] != "seat" || got[1] != "reservation" {
		t.Fatalf("release hold read order = %v", got)
	}

	if _, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 1); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if got := order.reset(); len(got) < 2 || got[0] != "seat" || got[1] != "reservation" {
		t.Fatalf("payment read order = %v", got)
	}
	f.orch.Wait()
}

var errCommit = errors.New("commit failed")

// flakyCommitStore rolls back every transaction with errCommit once fail
// is set, after fn itself succeeded.
type flakyCommitStore struct {
	repository.Store
	fail *atomic.Bool
}

func (s flakyCommitStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.fail.Load() {
			return errCommit
		}
		return nil
	})
}

func TestCommitFailureAfterTokenExpiry(t *testing.T) {
	fail := &atomic.Bool{}
	f := newFixtureWith(t, fixtureOptions{
		maxActive: 10,
		lockWait:  5 * time.Second,
		wrap:      func(s repository.Store) repository.Store { return flakyCommitStore{Store: s, fail: fail} },
	})
	ctx := context.Background()
	tok := f.token(t, "u1")
	_, _ = f.ledger.Charge(ctx, "u1", 1000000)
	if _, err := f.orch.ReserveSeat(ctx, tok, "u1", date, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	fail.Store(true)
	_, err := f.orch.ProcessPayment(ctx, tok, "u1", date, 1)
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.Conflict || e.Code != "queue-token-spent" || !errors.Is(err, errCommit) {
		t.Fatalf("pay with failing commit: %v", err)
	}
	if b, _ := f.ledger.Balance(ctx, "u1"); b != 1000000 {
		t.Fatalf("balance = %d", b)
	}
	if seat, _ := f.store.Seat(date, 1); seat.Status != model.SeatTempHeld {
		t.Fatalf("seat = %s", seat.Status)
	}
	if len(f.store.Payments()) != 0 {
		t.Fatal("payment recorded for a rolled back transaction")
	}
	if err := f.gate.Validate(ctx, tok); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("token should be spent: %v", err)
	}
	f.orch.Wait()
}
