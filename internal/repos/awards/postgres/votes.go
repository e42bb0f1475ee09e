package awards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/repos/awards"
)

func (r *awardsRepo) LockVoteTotal(tx *sql.Tx, awardID uuid.UUID, userID string) (awards.VoteTotal, bool, error) {
	// advisory lock covers the first-vote case where no row exists yet to lock
	_, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"vote_total:"+awardID.String()+":"+userID)
	if err != nil {
		return awards.VoteTotal{}, false, fmt.Errorf("lock vote total: %w", err)
	}

	vt := awards.VoteTotal{AwardID: awardID, UserID: userID}

	err = tx.QueryRow(`
		SELECT nomination_id, total, token_cost
		FROM vote_totals
		WHERE award_id = $1
		  AND user_id = $2
	`, awardID, userID).Scan(&vt.NominationID, &vt.Total, &vt.TokenCost)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vt, false, nil
		}

		return awards.VoteTotal{}, false, fmt.Errorf("read vote total: %w", err)
	}

	return vt, true, nil
}

func (r *awardsRepo) SaveVoteTotal(tx *sql.Tx, vt awards.VoteTotal) error {
	_, err := tx.Exec(`
		INSERT INTO vote_totals (award_id, user_id, nomination_id, total, token_cost)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (award_id, user_id) DO UPDATE
		SET nomination_id = EXCLUDED.nomination_id,
		    total = EXCLUDED.total,
		    token_cost = EXCLUDED.token_cost,
		    updated_at = now()
	`, vt.AwardID, vt.UserID, vt.NominationID, vt.Total, vt.TokenCost)
	if err != nil {
		return fmt.Errorf("save vote total: %w", err)
	}

	return nil
}

func (r *awardsRepo) InsertVote(tx *sql.Tx, v awards.Vote) (awards.Vote, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}

	err := tx.QueryRow(`
		INSERT INTO votes (id, award_id, user_id, nomination_id, vote_count, token_cost)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, v.ID, v.AwardID, v.UserID, v.NominationID, v.Count, v.TokenCost).Scan(&v.CreatedAt)
	if err != nil {
		return awards.Vote{}, fmt.Errorf("insert vote: %w", err)
	}

	return v, nil
}

func (r *awardsRepo) Tallies(ctx context.Context, awardID uuid.UUID) (int64, int64, error) {
	var nominationVotes, userVotes int64

	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(vote_count), 0) FROM nominations WHERE award_id = $1),
			(SELECT COALESCE(SUM(total), 0) FROM vote_totals WHERE award_id = $1)
	`, awardID).Scan(&nominationVotes, &userVotes)
	if err != nil {
		return 0, 0, fmt.Errorf("award tallies: %w", err)
	}

	return nominationVotes, userVotes, nil
}
