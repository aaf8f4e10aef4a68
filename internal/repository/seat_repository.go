package repository // repository defines data access for seats

import (
    "context"      // context allows query cancellation and timeouts
    "database/sql" // sql provides DB primitives
    "errors"
    "strings"
    "time"

    "github.com/iliyamo/flashsale-booking/internal/model"
)

// SeatRepo provides seat access inside an open transaction.  Reads take a
// row lock (SELECT ... FOR UPDATE) so the caller can decide on the seat's
// state and write it back before anyone else sees an intermediate value.
type SeatRepo struct {
    tx *sql.Tx
}

const seatColumns = `id, concert_date, seat_number, status, holder_user_id, hold_expires_at, price, version, created_at, updated_at`

func scanSeat(row interface{ Scan(dest ...any) error }) (*model.Seat, error) {
    var (
        s       model.Seat
        holder  sql.NullString
        expires sql.NullTime
    )
    if err := row.Scan(&s.ID, &s.ConcertDate, &s.SeatNumber, &s.Status, &holder, &expires,
        &s.Price, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
        return nil, err
    }
    if holder.Valid {
        s.HolderUserID = holder.String
    }
    if expires.Valid {
        t := expires.Time.UTC()
        s.HoldExpiresAt = &t
    }
    return &s, nil
}

// FindByDateAndNumber implements SeatRepository.
func (r *SeatRepo) FindByDateAndNumber(ctx context.Context, date string, number int) (*model.Seat, error) {
    row := r.tx.QueryRowContext(ctx,
        `SELECT `+seatColumns+` FROM seats WHERE concert_date = ? AND seat_number = ? FOR UPDATE`,
        date, number)
    s, err := scanSeat(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return s, err
}

// FindByID implements SeatRepository.
func (r *SeatRepo) FindByID(ctx context.Context, id uint64) (*model.Seat, error) {
    row := r.tx.QueryRowContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE id = ? FOR UPDATE`, id)
    s, err := scanSeat(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return s, err
}

// Update implements SeatRepository.  The WHERE clause carries the version
// read by the caller; zero affected rows means someone else moved the seat.
func (r *SeatRepo) Update(ctx context.Context, s *model.Seat) error {
    var holder any
    if s.HolderUserID != "" {
        holder = s.HolderUserID
    }
    var expires any
    if s.HoldExpiresAt != nil {
        expires = s.HoldExpiresAt.UTC()
    }
    res, err := r.tx.ExecContext(ctx,
        `UPDATE seats SET status = ?, holder_user_id = ?, hold_expires_at = ?, version = version + 1
         WHERE id = ? AND version = ?`,
        s.Status, holder, expires, s.ID, s.Version)
    if err != nil {
        return err
    }
    if err := affectedOrConflict(res); err != nil {
        return err
    }
    s.Version++
    return nil
}

// ReleaseExpired implements SeatRepository.  Seats that were confirmed or
// re-held since the caller collected ids are left untouched.
func (r *SeatRepo) ReleaseExpired(ctx context.Context, ids []uint64, now time.Time) (int64, error) {
    if len(ids) == 0 {
        return 0, nil
    }
    args := make([]interface{}, 0, len(ids)+1)
    for _, id := range ids {
        args = append(args, id)
    }
    args = append(args, now.UTC())
    placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
    res, err := r.tx.ExecContext(ctx,
        `UPDATE seats SET status = 'AVAILABLE', holder_user_id = NULL, hold_expires_at = NULL, version = version + 1
         WHERE id IN (`+placeholders+`) AND status = 'TEMP_HELD' AND hold_expires_at < ?`,
        args...)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// CreateBatch implements SeatRepository with a single multi-row INSERT.
func (r *SeatRepo) CreateBatch(ctx context.Context, seats []model.Seat) error {
    if len(seats) == 0 {
        return nil
    }
    query := `INSERT INTO seats (concert_date, seat_number, status, price) VALUES `
    args := make([]interface{}, 0, len(seats)*3)
    for i, s := range seats {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, 'AVAILABLE', ?)"
        args = append(args, s.ConcertDate, s.SeatNumber, s.Price)
    }
    if _, err := r.tx.ExecContext(ctx, query, args...); err != nil {
        if isDuplicate(err) {
            return ErrDuplicate
        }
        return err
    }
    return nil
}
