package accounts

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/tokenledger/internal/repos/accounts"
)

func (r *accountsRepo) ApplyDelta(tx *sql.Tx, userID string, delta int64) (int64, error) {
	var balance int64

	// single conditional write: concurrent callers queue on the row lock and
	// the guard is re-evaluated against the committed balance
	err := tx.QueryRow(`
		UPDATE accounts
		SET balance = balance + $2,
		    updated_at = now()
		WHERE user_id = $1
		  AND balance + $2 >= 0
		RETURNING balance
	`, userID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("apply delta: %w", err)
	}

	err = tx.QueryRow(`SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrAccountNotFound
		}

		return 0, fmt.Errorf("read balance after rejected delta: %w", err)
	}

	return balance, accounts.ErrInsufficientFunds
}
