package posters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/repos/posters"
)

const jobColumns = `id, user_id, profile_id, template_id, token_cost, status, custom_data,
	generated_url, failure_reason, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (posters.Job, error) {
	var (
		j      posters.Job
		custom []byte
	)

	err := row.Scan(&j.ID, &j.UserID, &j.ProfileID, &j.TemplateID, &j.TokenCost, &j.Status, &custom,
		&j.GeneratedURL, &j.FailureReason, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return posters.Job{}, err
	}

	j.CustomData = custom

	return j, nil
}

func (r *postersRepo) HasOpenJob(tx *sql.Tx, userID string, profileID uuid.UUID) (bool, error) {
	var exists bool

	err := tx.QueryRow(`
		SELECT EXISTS (
			SELECT 1
			FROM poster_jobs
			WHERE user_id = $1
			  AND profile_id = $2
			  AND status IN ('PENDING', 'GENERATING')
		)
	`, userID, profileID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open poster job: %w", err)
	}

	return exists, nil
}

func (r *postersRepo) CreateJob(tx *sql.Tx, j posters.Job) (posters.Job, error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}

	out, err := scanJob(tx.QueryRow(`
		INSERT INTO poster_jobs (id, user_id, profile_id, template_id, token_cost, custom_data)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING `+jobColumns,
		j.ID, j.UserID, j.ProfileID, j.TemplateID, j.TokenCost, jsonOrEmpty(j.CustomData)))
	if err != nil {
		if pgutils.IsUniqueViolation(err, openJobKey) {
			return posters.Job{}, posters.ErrDuplicateOpenJob
		}

		return posters.Job{}, fmt.Errorf("insert poster job: %w", err)
	}

	return out, nil
}

func (r *postersRepo) GetJobForUpdate(tx *sql.Tx, id uuid.UUID) (posters.Job, error) {
	j, err := scanJob(tx.QueryRow(`SELECT `+jobColumns+` FROM poster_jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return posters.Job{}, posters.ErrJobNotFound
		}

		return posters.Job{}, fmt.Errorf("get poster job for update: %w", err)
	}

	return j, nil
}

func (r *postersRepo) CancelJob(tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.Exec(`
		UPDATE poster_jobs
		SET status = 'CANCELLED',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PENDING'
	`, id)
	if err != nil {
		return fmt.Errorf("cancel poster job: %w", err)
	}

	return expectOne(res, posters.ErrJobNotPending)
}

func (r *postersRepo) GetJob(ctx context.Context, id uuid.UUID) (posters.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM poster_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return posters.Job{}, posters.ErrJobNotFound
		}

		return posters.Job{}, fmt.Errorf("get poster job: %w", err)
	}

	return j, nil
}

func (r *postersRepo) Claim(ctx context.Context, id uuid.UUID) (posters.RenderInput, error) {
	var (
		in           posters.RenderInput
		first, last  string
		spec, custom []byte
	)

	err := r.db.QueryRowContext(ctx, `
		WITH claimed AS (
			UPDATE poster_jobs
			SET status = 'GENERATING',
			    updated_at = now()
			WHERE id = $1
			  AND status = 'PENDING'
			RETURNING id, profile_id, template_id, custom_data
		)
		SELECT c.id, c.profile_id, p.first_name, p.last_name, t.name, t.template, c.custom_data
		FROM claimed c
		JOIN profiles p ON p.id = c.profile_id
		JOIN poster_templates t ON t.id = c.template_id
	`, id).Scan(&in.JobID, &in.ProfileID, &first, &last, &in.TemplateName, &spec, &custom)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return posters.RenderInput{}, posters.ErrJobNotPending
		}

		return posters.RenderInput{}, fmt.Errorf("claim poster job: %w", err)
	}

	in.ProfileName = first
	if last != "" {
		in.ProfileName += " " + last
	}

	in.TemplateSpec = spec
	in.CustomData = custom

	return in, nil
}

func (r *postersRepo) Complete(ctx context.Context, id uuid.UUID, url string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE poster_jobs
		SET status = 'COMPLETED',
		    generated_url = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'GENERATING'
	`, id, url)
	if err != nil {
		return fmt.Errorf("complete poster job: %w", err)
	}

	return expectOne(res, posters.ErrJobNotFound)
}

func (r *postersRepo) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE poster_jobs
		SET status = 'FAILED',
		    failure_reason = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'GENERATING'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("fail poster job: %w", err)
	}

	return expectOne(res, posters.ErrJobNotFound)
}

func (r *postersRepo) Release(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE poster_jobs
		SET status = 'PENDING',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'GENERATING'
	`, id)
	if err != nil {
		return fmt.Errorf("release poster job: %w", err)
	}

	return expectOne(res, posters.ErrJobNotFound)
}

func (r *postersRepo) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE poster_jobs
		SET status = 'PENDING',
		    updated_at = now()
		WHERE status = 'GENERATING'
		  AND updated_at < now() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reset stale poster jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return n, nil
}

func (r *postersRepo) ListPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM poster_jobs
		WHERE status = 'PENDING'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending poster jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID

		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("scan poster job id: %w", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate pending poster jobs: %w", err)
	}

	return ids, nil
}

func expectOne(res sql.Result, none error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return none
	}

	return nil
}
