package repository

import (
    "context"
    "database/sql"

    "github.com/iliyamo/flashsale-booking/internal/model"
)

// PaymentRepo records payments inside an open transaction.  The unique key
// on reservation_id rejects a second payment for the same reservation.
type PaymentRepo struct {
    tx *sql.Tx
}

// Create inserts p and populates its ID.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
    res, err := r.tx.ExecContext(ctx,
        `INSERT INTO payments (reservation_id, user_id, amount, status, paid_at) VALUES (?, ?, ?, ?, ?)`,
        p.ReservationID, p.UserID, p.Amount, p.Status, p.PaidAt.UTC())
    if err != nil {
        if isDuplicate(err) {
            return ErrDuplicate
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    return nil
}
