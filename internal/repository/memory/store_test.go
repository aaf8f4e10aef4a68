package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/flashsale-booking/internal/model"
	"github.com/iliyamo/flashsale-booking/internal/repository"
)

func seed(t *testing.T, s *Store, date string, n int) {
	t.Helper()
	list := make([]model.Seat, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, model.Seat{ConcertDate: date, SeatNumber: i, Price: 150000})
	}
	err := s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Seats().CreateBatch(ctx, list)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := New()
	seed(t, s, "2026-12-24", 2)
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		seat, err := tx.Seats().FindByDateAndNumber(ctx, "2026-12-24", 1)
		if err != nil {
			return err
		}
		_ = seat.Hold("u1", time.Now().Add(time.Minute))
		if err := tx.Seats().Update(ctx, seat); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	seat, _ := s.Seat("2026-12-24", 1)
	if seat.Status != model.SeatAvailable || seat.Version != 0 {
		t.Fatalf("rolled back write leaked: %+v", seat)
	}
}

func TestUpdateVersionConflict(t *testing.T) {
	s := New()
	seed(t, s, "2026-12-24", 1)
	err := s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		seat, _ := tx.Seats().FindByDateAndNumber(ctx, "2026-12-24", 1)
		stale := *seat
		_ = seat.Hold("u1", time.Now().Add(time.Minute))
		if err := tx.Seats().Update(ctx, seat); err != nil {
			return err
		}
		_ = stale.Hold("u2", time.Now().Add(time.Minute))
		return tx.Seats().Update(ctx, &stale)
	})
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestDuplicateSeatsAndCatalog(t *testing.T) {
	s := New()
	seed(t, s, "2026-12-25", 3)
	seed(t, s, "2026-12-24", 2)
	err := s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Seats().CreateBatch(ctx, []model.Seat{{ConcertDate: "2026-12-24", SeatNumber: 2}})
	})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	dates, _ := s.Catalog().ConcertDates(context.Background())
	if len(dates) != 2 || dates[0].Date != "2026-12-24" || dates[1].TotalSeats != 3 || dates[1].AvailableSeats != 3 {
		t.Fatalf("dates = %+v", dates)
	}
	seats, _ := s.Catalog().SeatsByDate(context.Background(), "2026-12-25")
	if len(seats) != 3 || seats[0].SeatNumber != 1 || seats[2].SeatNumber != 3 {
		t.Fatalf("seats = %+v", seats)
	}
}

func TestDeductIfSufficient(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Balances().Insert(ctx, &model.BalanceAccount{UserID: "u1", Balance: 50})
	})
	var ok bool
	_ = s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ok, err = tx.Balances().DeductIfSufficient(ctx, "u1", 100)
		return err
	})
	if ok {
		t.Fatal("deduction beyond balance applied")
	}
	if b, _ := s.Catalog().BalanceOf(ctx, "u1"); b != 50 {
		t.Fatalf("balance = %d", b)
	}
}
