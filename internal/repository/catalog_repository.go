package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/flashsale-booking/internal/model"
)

// CatalogRepo serves public listings straight from the pool, outside any
// transaction.  Results may be slightly stale under concurrent holds.
type CatalogRepo struct {
    db *sql.DB
}

// ConcertDates lists every date with its total and available seat counts.
func (r *CatalogRepo) ConcertDates(ctx context.Context) ([]model.ConcertDate, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT concert_date, COUNT(*), SUM(CASE WHEN status = 'AVAILABLE' THEN 1 ELSE 0 END)
         FROM seats GROUP BY concert_date ORDER BY concert_date`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.ConcertDate{}
    for rows.Next() {
        var d model.ConcertDate
        if err := rows.Scan(&d.Date, &d.TotalSeats, &d.AvailableSeats); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

// SeatsByDate lists a date's seats ordered by seat number.
func (r *CatalogRepo) SeatsByDate(ctx context.Context, date string) ([]model.Seat, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+seatColumns+` FROM seats WHERE concert_date = ? ORDER BY seat_number`, date)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Seat{}
    for rows.Next() {
        s, err := scanSeat(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *s)
    }
    return out, rows.Err()
}

// ReservationsByUser lists the user's reservations, newest first.
func (r *CatalogRepo) ReservationsByUser(ctx context.Context, userID string) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations WHERE user_id = ? ORDER BY id DESC`, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Reservation{}
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *res)
    }
    return out, rows.Err()
}

// BalanceOf returns the user's balance without locking.
func (r *CatalogRepo) BalanceOf(ctx context.Context, userID string) (int64, error) {
    var b int64
    err := r.db.QueryRowContext(ctx, `SELECT balance FROM balances WHERE user_id = ?`, userID).Scan(&b)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, ErrNotFound
    }
    return b, err
}
