package models

import "time"

// Wallet holds a user's spendable balance in paisa. A wallet logically
// exists for every user; the row is materialized on first credit.
type Wallet struct {
	UserID    int       `json:"user_id" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry records one applied balance delta. The unique idempotency
// key doubles as the replay guard: a retried request finds its entry and
// reads back the balance it produced.
type LedgerEntry struct {
	ID             int       `json:"id" db:"id"`
	UserID         int       `json:"user_id" db:"user_id"`
	Amount         int64     `json:"amount" db:"amount"`
	Reason         string    `json:"reason" db:"reason"`
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	Balance        int64     `json:"balance" db:"balance"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Ledger entry reasons written by this service.
const (
	ReasonAdminCredit = "admin_credit"
	ReasonEntryFee    = "entry_fee"
)
