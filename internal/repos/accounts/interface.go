package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
)

type Account struct {
	UserID    string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Accounts is the only writer of balances. Every mutating method takes the
// caller's transaction so the ledger entry for the same change commits with it.
type Accounts interface {
	Create(tx *sql.Tx, userID string) error
	Get(ctx context.Context, userID string) (Account, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	LockAndGetBalance(tx *sql.Tx, userID string) (int64, error)
	// ApplyDelta adds delta to the balance and returns the new balance. When
	// the result would be negative nothing changes and it returns the current
	// balance together with ErrInsufficientFunds.
	ApplyDelta(tx *sql.Tx, userID string, delta int64) (int64, error)
}
