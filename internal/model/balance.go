package model

import "time"

// BalanceAccount is a user's prepaid point balance.  Balance never goes
// below zero; Version guards read-modify-write updates.
type BalanceAccount struct {
    UserID    string    // balances.user_id
    Balance   int64     // balances.balance
    Version   int64     // balances.version
    UpdatedAt time.Time // balances.updated_at
}
