package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/flashsale-booking/internal/model"
)

// BalanceRepo provides balance access inside an open transaction.
type BalanceRepo struct {
    tx *sql.Tx
}

// Get loads and row-locks the user's account.
func (r *BalanceRepo) Get(ctx context.Context, userID string) (*model.BalanceAccount, error) {
    var acc model.BalanceAccount
    err := r.tx.QueryRowContext(ctx,
        `SELECT user_id, balance, version, updated_at FROM balances WHERE user_id = ? FOR UPDATE`, userID).
        Scan(&acc.UserID, &acc.Balance, &acc.Version, &acc.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return &acc, nil
}

// Insert creates a new account with acc.Balance and version 0.
func (r *BalanceRepo) Insert(ctx context.Context, acc *model.BalanceAccount) error {
    _, err := r.tx.ExecContext(ctx,
        `INSERT INTO balances (user_id, balance, version) VALUES (?, ?, 0)`, acc.UserID, acc.Balance)
    if err != nil {
        if isDuplicate(err) {
            return ErrDuplicate
        }
        return err
    }
    acc.Version = 0
    return nil
}

// Update writes acc.Balance conditioned on the version the caller read.
func (r *BalanceRepo) Update(ctx context.Context, acc *model.BalanceAccount) error {
    res, err := r.tx.ExecContext(ctx,
        `UPDATE balances SET balance = ?, version = version + 1 WHERE user_id = ? AND version = ?`,
        acc.Balance, acc.UserID, acc.Version)
    if err != nil {
        return err
    }
    if err := affectedOrConflict(res); err != nil {
        return err
    }
    acc.Version++
    return nil
}

// DeductIfSufficient subtracts amount in a single conditional statement so
// the balance can never be driven below zero, whatever the caller read.
func (r *BalanceRepo) DeductIfSufficient(ctx context.Context, userID string, amount int64) (bool, error) {
    res, err := r.tx.ExecContext(ctx,
        `UPDATE balances SET balance = balance - ?, version = version + 1 WHERE user_id = ? AND balance >= ?`,
        amount, userID, amount)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}
