package accounts

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/repos/accounts"
)

func (r *accountsRepo) Create(tx *sql.Tx, userID string) error {
	_, err := tx.Exec(`
		INSERT INTO accounts (user_id, balance)
		VALUES ($1, 0)
	`, userID)
	if err != nil {
		if pgutils.IsUniqueViolation(err, "accounts_pkey") {
			return accounts.ErrAccountExists
		}

		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}
