// Package memory is an in-process repository.Store for local runs and
// tests.  Transactions are serialized by one mutex and work on a copy of
// the data that replaces the committed state only when fn succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/flashsale-booking/internal/model"
	"github.com/iliyamo/flashsale-booking/internal/repository"
)

type state struct {
	seats        map[uint64]model.Seat
	seatIndex    map[string]uint64
	reservations map[uint64]model.Reservation
	payments     map[uint64]model.Payment
	paidRes      map[uint64]bool
	balances     map[string]model.BalanceAccount
	nextSeat     uint64
	nextRes      uint64
	nextPay      uint64
}

func newState() *state {
	return &state{
		seats:        map[uint64]model.Seat{},
		seatIndex:    map[string]uint64{},
		reservations: map[uint64]model.Reservation{},
		payments:     map[uint64]model.Payment{},
		paidRes:      map[uint64]bool{},
		balances:     map[string]model.BalanceAccount{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seats:        make(map[uint64]model.Seat, len(s.seats)),
		seatIndex:    make(map[string]uint64, len(s.seatIndex)),
		reservations: make(map[uint64]model.Reservation, len(s.reservations)),
		payments:     make(map[uint64]model.Payment, len(s.payments)),
		paidRes:      make(map[uint64]bool, len(s.paidRes)),
		balances:     make(map[string]model.BalanceAccount, len(s.balances)),
		nextSeat:     s.nextSeat,
		nextRes:      s.nextRes,
		nextPay:      s.nextPay,
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.seatIndex {
		c.seatIndex[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.paidRes {
		c.paidRes[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

func seatIndexKey(date string, number int) string { return fmt.Sprintf("%s#%d", date, number) }

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state
	clock func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState(), clock: func() time.Time { return time.Now().UTC() }}
}

// InTx implements repository.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{st: work, now: s.clock}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Catalog implements repository.Store.
func (s *Store) Catalog() repository.Catalog { return catalog{s} }

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Seats() repository.SeatRepository               { return seats{t} }
func (t *tx) Reservations() repository.ReservationRepository { return reservations{t} }
func (t *tx) Payments() repository.PaymentRepository         { return payments{t} }
func (t *tx) Balances() repository.BalanceRepository         { return balances{t} }

type seats struct{ *tx }

func (r seats) FindByDateAndNumber(_ context.Context, date string, number int) (*model.Seat, error) {
	id, ok := r.st.seatIndex[seatIndexKey(date, number)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s := r.st.seats[id]
	return copySeat(s), nil
}

func (r seats) FindByID(_ context.Context, id uint64) (*model.Seat, error) {
	s, ok := r.st.seats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySeat(s), nil
}

func (r seats) Update(_ context.Context, seat *model.Seat) error {
	cur, ok := r.st.seats[seat.ID]
	if !ok || cur.Version != seat.Version {
		return repository.ErrVersionConflict
	}
	cur.Status = seat.Status
	cur.HolderUserID = seat.HolderUserID
	cur.HoldExpiresAt = copyTime(seat.HoldExpiresAt)
	cur.Version++
	cur.UpdatedAt = r.now()
	r.st.seats[seat.ID] = cur
	seat.Version = cur.Version
	return nil
}

func (r seats) ReleaseExpired(_ context.Context, ids []uint64, now time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		cur, ok := r.st.seats[id]
		if !ok || !cur.HoldLapsed(now) {
			continue
		}
		_ = cur.Release()
		cur.Version++
		cur.UpdatedAt = r.now()
		r.st.seats[id] = cur
		n++
	}
	return n, nil
}

func (r seats) CreateBatch(_ context.Context, list []model.Seat) error {
	for _, s := range list {
		if _, dup := r.st.seatIndex[seatIndexKey(s.ConcertDate, s.SeatNumber)]; dup {
			return repository.ErrDuplicate
		}
	}
	now := r.now()
	for _, s := range list {
		r.st.nextSeat++
		s.ID = r.st.nextSeat
		s.Status = model.SeatAvailable
		s.HolderUserID = ""
		s.HoldExpiresAt = nil
		s.CreatedAt, s.UpdatedAt = now, now
		r.st.seats[s.ID] = s
		r.st.seatIndex[seatIndexKey(s.ConcertDate, s.SeatNumber)] = s.ID
	}
	return nil
}

type reservations struct{ *tx }

func (r reservations) Create(_ context.Context, res *model.Reservation) error {
	r.st.nextRes++
	res.ID = r.st.nextRes
	r.st.reservations[res.ID] = *res
	return nil
}

func (r reservations) FindHeld(_ context.Context, userID, date string, number int) (*model.Reservation, error) {
	var found *model.Reservation
	for _, res := range r.st.reservations {
		if res.UserID == userID && res.ConcertDate == date && res.SeatNumber == number &&
			res.Status == model.ReservationTempHeld && (found == nil || res.ID > found.ID) {
			c := res
			found = &c
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r reservations) ExpireHeldBySeat(_ context.Context, seatID uint64) (int64, error) {
	var n int64
	for id, res := range r.st.reservations {
		if res.SeatID == seatID && res.Status == model.ReservationTempHeld {
			res.Status = model.ReservationExpired
			r.st.reservations[id] = res
			n++
		}
	}
	return n, nil
}

func (r reservations) UpdateStatus(_ context.Context, id uint64, from, to string, at time.Time) error {
	res, ok := r.st.reservations[id]
	if !ok || res.Status != from {
		return repository.ErrVersionConflict
	}
	res.Status = to
	if to == model.ReservationConfirmed {
		t := at.UTC()
		res.ConfirmedAt = &t
	}
	r.st.reservations[id] = res
	return nil
}

func (r reservations) ExpiredHeldSeatIDs(_ context.Context, now time.Time) ([]uint64, error) {
	ids := []uint64{}
	for _, res := range r.st.reservations {
		if res.Lapsed(now) {
			ids = append(ids, res.SeatID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r reservations) ExpireHeld(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, res := range r.st.reservations {
		if res.Lapsed(now) {
			res.Status = model.ReservationExpired
			r.st.reservations[id] = res
			n++
		}
	}
	return n, nil
}

type payments struct{ *tx }

func (r payments) Create(_ context.Context, p *model.Payment) error {
	if r.st.paidRes[p.ReservationID] {
		return repository.ErrDuplicate
	}
	r.st.nextPay++
	p.ID = r.st.nextPay
	r.st.payments[p.ID] = *p
	r.st.paidRes[p.ReservationID] = true
	return nil
}

type balances struct{ *tx }

func (r balances) Get(_ context.Context, userID string) (*model.BalanceAccount, error) {
	acc, ok := r.st.balances[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &acc, nil
}

func (r balances) Insert(_ context.Context, acc *model.BalanceAccount) error {
	if _, ok := r.st.balances[acc.UserID]; ok {
		return repository.ErrDuplicate
	}
	acc.Version = 0
	acc.UpdatedAt = r.now()
	r.st.balances[acc.UserID] = *acc
	return nil
}

func (r balances) Update(_ context.Context, acc *model.BalanceAccount) error {
	cur, ok := r.st.balances[acc.UserID]
	if !ok || cur.Version != acc.Version {
		return repository.ErrVersionConflict
	}
	cur.Balance = acc.Balance
	cur.Version++
	cur.UpdatedAt = r.now()
	r.st.balances[acc.UserID] = cur
	acc.Version = cur.Version
	return nil
}

func (r balances) DeductIfSufficient(_ context.Context, userID string, amount int64) (bool, error) {
	cur, ok := r.st.balances[userID]
	if !ok || cur.Balance < amount {
		return false, nil
	}
	cur.Balance -= amount
	cur.Version++
	cur.UpdatedAt = r.now()
	r.st.balances[userID] = cur
	return true, nil
}

type catalog struct{ s *Store }

func (c catalog) ConcertDates(_ context.Context) ([]model.ConcertDate, error) {
	st := c.s.snapshot()
	byDate := map[string]*model.ConcertDate{}
	for _, s := range st.seats {
		d, ok := byDate[s.ConcertDate]
		if !ok {
			d = &model.ConcertDate{Date: s.ConcertDate}
			byDate[s.ConcertDate] = d
		}
		d.TotalSeats++
		if s.Status == model.SeatAvailable {
			d.AvailableSeats++
		}
	}
	out := make([]model.ConcertDate, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (c catalog) SeatsByDate(_ context.Context, date string) ([]model.Seat, error) {
	st := c.s.snapshot()
	out := []model.Seat{}
	for _, s := range st.seats {
		if s.ConcertDate == date {
			out = append(out, *copySeat(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

func (c catalog) ReservationsByUser(_ context.Context, userID string) ([]model.Reservation, error) {
	st := c.s.snapshot()
	out := []model.Reservation{}
	for _, r := range st.reservations {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (c catalog) BalanceOf(_ context.Context, userID string) (int64, error) {
	st := c.s.snapshot()
	acc, ok := st.balances[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return acc.Balance, nil
}

// Payments returns every committed payment, ordered by id.  Used by tests
// and the memory deployment's diagnostics.
func (s *Store) Payments() []model.Payment {
	st := s.snapshot()
	out := make([]model.Payment, 0, len(st.payments))
	for _, p := range st.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Seat returns the committed seat for (date, number).
func (s *Store) Seat(date string, number int) (model.Seat, bool) {
	st := s.snapshot()
	id, ok := st.seatIndex[seatIndexKey(date, number)]
	if !ok {
		return model.Seat{}, false
	}
	return *copySeat(st.seats[id]), true
}

// SetClock overrides the clock used for updated_at stamps.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	s.clock = clock
	s.mu.Unlock()
}

// snapshot returns the committed state.  Committed states are never
// mutated, so callers may read it without holding the mutex.
func (s *Store) snapshot() *state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func copySeat(s model.Seat) *model.Seat {
	s.HoldExpiresAt = copyTime(s.HoldExpiresAt)
	return &s
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
