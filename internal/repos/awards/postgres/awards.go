package awards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/repos/awards"
)

const awardColumns = `id, title, status, voting_ends, max_votes_per_user, token_cost_per_vote, created_at, updated_at`

func scanAward(row rowScanner) (awards.Award, error) {
	var (
		a    awards.Award
		ends sql.NullTime
	)

	err := row.Scan(&a.ID, &a.Title, &a.Status, &ends, &a.MaxVotesPerUser, &a.TokenCostPerVote, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return awards.Award{}, err
	}

	if ends.Valid {
		t := ends.Time
		a.VotingEnds = &t
	}

	return a, nil
}

func (r *awardsRepo) Create(ctx context.Context, a awards.Award) (awards.Award, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	if a.Status == "" {
		a.Status = awards.StatusActive
	}

	out, err := scanAward(r.db.QueryRowContext(ctx, `
		INSERT INTO awards (id, title, status, voting_ends, max_votes_per_user, token_cost_per_vote)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+awardColumns,
		a.ID, a.Title, a.Status, a.VotingEnds, a.MaxVotesPerUser, a.TokenCostPerVote))
	if err != nil {
		return awards.Award{}, fmt.Errorf("insert award: %w", err)
	}

	return out, nil
}

func (r *awardsRepo) Get(ctx context.Context, id uuid.UUID) (awards.Award, error) {
	a, err := scanAward(r.db.QueryRowContext(ctx, `SELECT `+awardColumns+` FROM awards WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return awards.Award{}, awards.ErrAwardNotFound
		}

		return awards.Award{}, fmt.Errorf("get award: %w", err)
	}

	return a, nil
}

func (r *awardsRepo) GetShared(tx *sql.Tx, id uuid.UUID) (awards.Award, error) {
	a, err := scanAward(tx.QueryRow(`SELECT `+awardColumns+` FROM awards WHERE id = $1 FOR SHARE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return awards.Award{}, awards.ErrAwardNotFound
		}

		return awards.Award{}, fmt.Errorf("get award for share: %w", err)
	}

	return a, nil
}

func (r *awardsRepo) Transition(ctx context.Context, id uuid.UUID, from, to awards.Status) (awards.Award, error) {
	a, err := scanAward(r.db.QueryRowContext(ctx, `
		UPDATE awards
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+awardColumns, id, from, to))
	if err == nil {
		return a, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return awards.Award{}, fmt.Errorf("transition award: %w", err)
	}

	_, err = r.Get(ctx, id)
	if err != nil {
		return awards.Award{}, err
	}

	return awards.Award{}, awards.ErrInvalidTransition
}

func (r *awardsRepo) ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM awards
		WHERE status = 'ACTIVE'
		  AND voting_ends IS NOT NULL
		  AND voting_ends <= $1
		ORDER BY voting_ends
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired awards: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID

		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("scan award id: %w", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate expired awards: %w", err)
	}

	return ids, nil
}
