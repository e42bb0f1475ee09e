package spotlights

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/repos/spotlights"
)

const spotlightColumns = `id, profile_id, purchased_by, title, description, start_date, end_date,
	token_cost, approved, status, created_at, cancelled_at`

var _ spotlights.Spotlights = (*spotlightsRepo)(nil)

type spotlightsRepo struct{ db *sql.DB }

func New(db *sql.DB) *spotlightsRepo {
	return &spotlightsRepo{db: db}
}

func scanSpotlight(row interface{ Scan(...any) error }) (spotlights.Spotlight, error) {
	var (
		s         spotlights.Spotlight
		cancelled sql.NullTime
	)

	err := row.Scan(&s.ID, &s.ProfileID, &s.PurchasedBy, &s.Title, &s.Description, &s.StartDate, &s.EndDate,
		&s.TokenCost, &s.Approved, &s.Status, &s.CreatedAt, &cancelled)
	if err != nil {
		return spotlights.Spotlight{}, err
	}

	if cancelled.Valid {
		t := cancelled.Time
		s.CancelledAt = &t
	}

	return s, nil
}

func (r *spotlightsRepo) LockProfile(tx *sql.Tx, profileID uuid.UUID) error {
	_, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "spotlight:"+profileID.String())
	if err != nil {
		return fmt.Errorf("lock spotlight profile: %w", err)
	}

	return nil
}

func (r *spotlightsRepo) HasOverlap(tx *sql.Tx, profileID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool

	err := tx.QueryRow(`
		SELECT EXISTS (
			SELECT 1
			FROM spotlights
			WHERE profile_id = $1
			  AND status = 'BOOKED'
			  AND approved
			  AND start_date < $3
			  AND end_date > $2
		)
	`, profileID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check spotlight overlap: %w", err)
	}

	return exists, nil
}

func (r *spotlightsRepo) Create(tx *sql.Tx, s spotlights.Spotlight) (spotlights.Spotlight, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	out, err := scanSpotlight(tx.QueryRow(`
		INSERT INTO spotlights (id, profile_id, purchased_by, title, description, start_date, end_date, token_cost, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+spotlightColumns,
		s.ID, s.ProfileID, s.PurchasedBy, s.Title, s.Description, s.StartDate, s.EndDate, s.TokenCost, s.Approved))
	if err != nil {
		return spotlights.Spotlight{}, fmt.Errorf("insert spotlight: %w", err)
	}

	return out, nil
}

func (r *spotlightsRepo) GetForUpdate(tx *sql.Tx, id uuid.UUID) (spotlights.Spotlight, error) {
	s, err := scanSpotlight(tx.QueryRow(`SELECT `+spotlightColumns+` FROM spotlights WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spotlights.Spotlight{}, spotlights.ErrSpotlightNotFound
		}

		return spotlights.Spotlight{}, fmt.Errorf("get spotlight for update: %w", err)
	}

	return s, nil
}

func (r *spotlightsRepo) Cancel(tx *sql.Tx, id uuid.UUID, at time.Time) error {
	res, err := tx.Exec(`
		UPDATE spotlights
		SET status = 'CANCELLED',
		    cancelled_at = $2
		WHERE id = $1
		  AND status = 'BOOKED'
	`, id, at)
	if err != nil {
		return fmt.Errorf("cancel spotlight: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return spotlights.ErrAlreadyCancelled
	}

	return nil
}
