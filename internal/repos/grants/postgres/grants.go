package grants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/tokenledger/internal/repos/grants"
)

var _ grants.Grants = (*grantsRepo)(nil)

type grantsRepo struct{ db *sql.DB }

func New(db *sql.DB) *grantsRepo {
	return &grantsRepo{db: db}
}

func (r *grantsRepo) Create(tx *sql.Tx, g grants.Grant) (grants.Grant, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}

	if g.Multiplier.IsZero() {
		g.Multiplier = decimal.NewFromInt(1)
	}

	err := tx.QueryRow(`
		INSERT INTO grants (id, kind, user_id, profile_id, token_cost, multiplier, starts_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, g.ID, g.Kind, g.UserID, g.ProfileID, g.TokenCost, g.Multiplier.String(), g.StartsAt, g.ExpiresAt).
		Scan(&g.CreatedAt)
	if err != nil {
		return grants.Grant{}, fmt.Errorf("insert grant: %w", err)
	}

	return g, nil
}

func (r *grantsRepo) LatestExpiry(tx *sql.Tx, userID string, kind grants.Kind, profileID *uuid.UUID) (time.Time, bool, error) {
	var latest sql.NullTime

	err := tx.QueryRow(`
		SELECT max(expires_at)
		FROM grants
		WHERE user_id = $1
		  AND kind = $2
		  AND profile_id IS NOT DISTINCT FROM $3
	`, userID, kind, profileID).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest grant expiry: %w", err)
	}

	return latest.Time, latest.Valid, nil
}

func (r *grantsRepo) ListActive(ctx context.Context, userID string, now time.Time) ([]grants.Grant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, user_id, profile_id, token_cost, multiplier::text, starts_at, expires_at, created_at
		FROM grants
		WHERE user_id = $1
		  AND starts_at <= $2
		  AND expires_at > $2
		ORDER BY expires_at
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list active grants: %w", err)
	}
	defer rows.Close()

	var out []grants.Grant

	for rows.Next() {
		var (
			g       grants.Grant
			profile uuid.NullUUID
			mult    string
		)

		err := rows.Scan(&g.ID, &g.Kind, &g.UserID, &profile, &g.TokenCost, &mult, &g.StartsAt, &g.ExpiresAt, &g.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}

		if profile.Valid {
			id := profile.UUID
			g.ProfileID = &id
		}

		g.Multiplier, err = decimal.NewFromString(mult)
		if err != nil {
			return nil, fmt.Errorf("parse grant multiplier: %w", err)
		}

		out = append(out, g)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}

	return out, nil
}
