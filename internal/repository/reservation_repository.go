package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/flashsale-booking/internal/model"
)

// ReservationRepo provides reservation access inside an open transaction.
// All timestamps are written and compared in UTC.
type ReservationRepo struct {
    tx *sql.Tx
}

const reservationColumns = `id, user_id, seat_id, concert_date, seat_number, price, status, reserved_at, hold_expires_at, confirmed_at`

func scanReservation(row interface{ Scan(dest ...any) error }) (*model.Reservation, error) {
    var (
        r         model.Reservation
        confirmed sql.NullTime
    )
    if err := row.Scan(&r.ID, &r.UserID, &r.SeatID, &r.ConcertDate, &r.SeatNumber, &r.Price,
        &r.Status, &r.ReservedAt, &r.HoldExpiresAt, &confirmed); err != nil {
        return nil, err
    }
    r.ReservedAt = r.ReservedAt.UTC()
    r.HoldExpiresAt = r.HoldExpiresAt.UTC()
    if confirmed.Valid {
        t := confirmed.Time.UTC()
        r.ConfirmedAt = &t
    }
    return &r, nil
}

// Create inserts a reservation and populates its ID.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
    out, err := r.tx.ExecContext(ctx,
        `INSERT INTO reservations (user_id, seat_id, concert_date, seat_number, price, status, reserved_at, hold_expires_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
        res.UserID, res.SeatID, res.ConcertDate, res.SeatNumber, res.Price, res.Status,
        res.ReservedAt.UTC(), res.HoldExpiresAt.UTC())
    if err != nil {
        return err
    }
    id, err := out.LastInsertId()
    if err != nil {
        return err
    }
    res.ID = uint64(id)
    return nil
}

// FindHeld returns the user's TEMP_HELD reservation for (date, number),
// row-locked for the rest of the transaction.
func (r *ReservationRepo) FindHeld(ctx context.Context, userID, date string, number int) (*model.Reservation, error) {
    row := r.tx.QueryRowContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations
         WHERE user_id = ? AND concert_date = ? AND seat_number = ? AND status = 'TEMP_HELD'
         ORDER BY id DESC LIMIT 1 FOR UPDATE`,
        userID, date, number)
    res, err := scanReservation(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return res, err
}

// ExpireHeldBySeat marks the seat's TEMP_HELD reservations EXPIRED.  Used
// when a lapsed hold is reclaimed by a new reservation.
func (r *ReservationRepo) ExpireHeldBySeat(ctx context.Context, seatID uint64) (int64, error) {
    res, err := r.tx.ExecContext(ctx,
        `UPDATE reservations SET status = 'EXPIRED' WHERE seat_id = ? AND status = 'TEMP_HELD'`, seatID)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// UpdateStatus moves reservation id from one status to another.  When the
// target is CONFIRMED, confirmed_at is set to at.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id uint64, from, to string, at time.Time) error {
    var confirmed any
    if to == model.ReservationConfirmed {
        confirmed = at.UTC()
    }
    res, err := r.tx.ExecContext(ctx,
        `UPDATE reservations SET status = ?, confirmed_at = COALESCE(?, confirmed_at) WHERE id = ? AND status = ?`,
        to, confirmed, id, from)
    if err != nil {
        return err
    }
    return affectedOrConflict(res)
}

// ExpiredHeldSeatIDs lists seats whose TEMP_HELD reservation ended before now.
func (r *ReservationRepo) ExpiredHeldSeatIDs(ctx context.Context, now time.Time) ([]uint64, error) {
    rows, err := r.tx.QueryContext(ctx,
        `SELECT seat_id FROM reservations WHERE status = 'TEMP_HELD' AND hold_expires_at < ?`, now.UTC())
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    ids := []uint64{}
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

// ExpireHeld marks every TEMP_HELD reservation that ended before now EXPIRED.
func (r *ReservationRepo) ExpireHeld(ctx context.Context, now time.Time) (int64, error) {
    res, err := r.tx.ExecContext(ctx,
        `UPDATE reservations SET status = 'EXPIRED' WHERE status = 'TEMP_HELD' AND hold_expires_at < ?`, now.UTC())
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}
