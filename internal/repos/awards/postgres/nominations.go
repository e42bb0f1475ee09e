package awards

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/repos/awards"
)

const nominationColumns = `id, award_id, profile_id, nominated_by, reason, token_cost, vote_count, created_at`

func scanNomination(row rowScanner) (awards.Nomination, error) {
	var n awards.Nomination

	err := row.Scan(&n.ID, &n.AwardID, &n.ProfileID, &n.NominatedBy, &n.Reason, &n.TokenCost, &n.VoteCount, &n.CreatedAt)

	return n, err
}

func (r *awardsRepo) CreateNomination(tx *sql.Tx, n awards.Nomination) (awards.Nomination, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	out, err := scanNomination(tx.QueryRow(`
		INSERT INTO nominations (id, award_id, profile_id, nominated_by, reason, token_cost)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+nominationColumns,
		n.ID, n.AwardID, n.ProfileID, n.NominatedBy, n.Reason, n.TokenCost))
	if err != nil {
		if pgutils.IsUniqueViolation(err, nominationsAwardProfileKey) {
			return awards.Nomination{}, awards.ErrDuplicateNomination
		}

		return awards.Nomination{}, fmt.Errorf("insert nomination: %w", err)
	}

	return out, nil
}

func (r *awardsRepo) GetNomination(tx *sql.Tx, id uuid.UUID) (awards.Nomination, error) {
	n, err := scanNomination(tx.QueryRow(`SELECT `+nominationColumns+` FROM nominations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return awards.Nomination{}, awards.ErrNominationNotFound
		}

		return awards.Nomination{}, fmt.Errorf("get nomination: %w", err)
	}

	return n, nil
}

func (r *awardsRepo) FindNomination(tx *sql.Tx, awardID, profileID uuid.UUID) (awards.Nomination, error) {
	n, err := scanNomination(tx.QueryRow(`
		SELECT `+nominationColumns+`
		FROM nominations
		WHERE award_id = $1
		  AND profile_id = $2
	`, awardID, profileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return awards.Nomination{}, awards.ErrNominationNotFound
		}

		return awards.Nomination{}, fmt.Errorf("find nomination: %w", err)
	}

	return n, nil
}

func (r *awardsRepo) AdjustVoteCount(tx *sql.Tx, nominationID uuid.UUID, delta int64) error {
	res, err := tx.Exec(`
		UPDATE nominations
		SET vote_count = vote_count + $2
		WHERE id = $1
	`, nominationID, delta)
	if err != nil {
		return fmt.Errorf("adjust vote count: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return awards.ErrNominationNotFound
	}

	return nil
}
