package profiles

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/repos/profiles"
)

var _ profiles.Profiles = (*profilesRepo)(nil)

type profilesRepo struct{ db *sql.DB }

func New(db *sql.DB) *profilesRepo {
	return &profilesRepo{db: db}
}

func (r *profilesRepo) Get(tx *sql.Tx, id uuid.UUID) (profiles.Profile, error) {
	var p profiles.Profile

	err := tx.QueryRow(`
		SELECT id, owner_id, first_name, last_name, public
		FROM profiles
		WHERE id = $1
	`, id).Scan(&p.ID, &p.OwnerID, &p.FirstName, &p.LastName, &p.Public)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profiles.Profile{}, profiles.ErrProfileNotFound
		}

		return profiles.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	return p, nil
}
