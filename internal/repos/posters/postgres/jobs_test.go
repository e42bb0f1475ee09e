package posters

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/infra/pgtestutil"
	"github.com/fastprodman/tokenledger/internal/repos/posters"
)

type fixture struct {
	db       *sql.DB
	repo     *postersRepo
	profile  uuid.UUID
	template uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db := pgtestutil.NewTestDB(t)
	pgtestutil.Exec(t, db, `INSERT INTO accounts (user_id, balance) VALUES ('coach', 100)`)

	f := fixture{db: db, repo: New(db), profile: uuid.New(), template: uuid.New()}
	pgtestutil.Exec(t, db, `INSERT INTO profiles (id, owner_id, first_name, last_name) VALUES ($1, 'athlete', 'Jo', 'Reyes')`, f.profile)
	pgtestutil.Exec(t, db, `INSERT INTO poster_templates (id, name, tier, template) VALUES ($1, 'Game Day', 'STARTER', '{"bg":"navy"}')`, f.template)

	return f
}

func (f fixture) createJob(t *testing.T) (posters.Job, error) {
	t.Helper()

	tx, err := f.db.BeginTx(t.Context(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	j, err := f.repo.CreateJob(tx, posters.Job{
		UserID: "coach", ProfileID: f.profile, TemplateID: f.template, TokenCost: 9,
		CustomData: json.RawMessage(`{"headline":"MVP"}`),
	})
	if err != nil {
		return j, err
	}

	return j, tx.Commit()
}

func TestPosters_GetTemplate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	tx, err := f.db.BeginTx(t.Context(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	tpl, err := f.repo.GetTemplate(tx, f.template)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}

	if tpl.Tier != "STARTER" || !tpl.Active || tpl.Name != "Game Day" {
		t.Fatalf("unexpected template: %+v", tpl)
	}

	_, err = f.repo.GetTemplate(tx, uuid.New())
	if !errors.Is(err, posters.ErrTemplateNotFound) {
		t.Fatalf("want ErrTemplateNotFound, got %v", err)
	}
}

func TestPosters_JobLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	job, err := f.createJob(t)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if job.Status != posters.StatusPending {
		t.Fatalf("new job status: %s", job.Status)
	}

	_, err = f.createJob(t)
	if !errors.Is(err, posters.ErrDuplicateOpenJob) {
		t.Fatalf("want ErrDuplicateOpenJob, got %v", err)
	}

	pending, err := f.repo.ListPending(ctx, 10)
	if err != nil || len(pending) != 1 || pending[0] != job.ID {
		t.Fatalf("list pending: %v %v", pending, err)
	}

	in, err := f.repo.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if in.ProfileName != "Jo Reyes" || in.TemplateName != "Game Day" {
		t.Fatalf("unexpected render input: %+v", in)
	}

	_, err = f.repo.Claim(ctx, job.ID)
	if !errors.Is(err, posters.ErrJobNotPending) {
		t.Fatalf("second claim: want ErrJobNotPending, got %v", err)
	}

	err = f.repo.Complete(ctx, job.ID, "https://cdn.example/p.png")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := f.repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}

	if got.Status != posters.StatusCompleted || got.GeneratedURL != "https://cdn.example/p.png" {
		t.Fatalf("unexpected job: %+v", got)
	}

	// terminal job frees the (user, profile) slot
	_, err = f.createJob(t)
	if err != nil {
		t.Fatalf("create after completion: %v", err)
	}
}

func TestPosters_FailAndCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	job, err := f.createJob(t)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	err = f.repo.Fail(ctx, job.ID, "renderer down")
	if !errors.Is(err, posters.ErrJobNotFound) {
		t.Fatalf("fail before claim: want ErrJobNotFound, got %v", err)
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	err = f.repo.CancelJob(tx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	err = tx.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, err = f.repo.Claim(ctx, job.ID)
	if !errors.Is(err, posters.ErrJobNotPending) {
		t.Fatalf("claim cancelled: want ErrJobNotPending, got %v", err)
	}

	second, err := f.createJob(t)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	_, err = f.repo.Claim(ctx, second.ID)
	if err != nil {
		t.Fatalf("claim second: %v", err)
	}

	err = f.repo.Fail(ctx, second.ID, "renderer down")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, err := f.repo.GetJob(ctx, second.ID)
	if err != nil || got.Status != posters.StatusFailed || got.FailureReason != "renderer down" {
		t.Fatalf("unexpected failed job: %+v %v", got, err)
	}

	tx, err = f.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = f.repo.CancelJob(tx, second.ID)
	if !errors.Is(err, posters.ErrJobNotPending) {
		t.Fatalf("cancel failed job: want ErrJobNotPending, got %v", err)
	}
}

func TestPosters_ReleaseAndResetStale(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	job, err := f.createJob(t)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	err = f.repo.Release(ctx, job.ID)
	if !errors.Is(err, posters.ErrJobNotFound) {
		t.Fatalf("release pending: want ErrJobNotFound, got %v", err)
	}

	_, err = f.repo.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	err = f.repo.Release(ctx, job.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}

	_, err = f.repo.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("claim after release: %v", err)
	}

	n, err := f.repo.ResetStale(ctx, time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("reset fresh job: n=%d err=%v", n, err)
	}

	pgtestutil.Exec(t, f.db, `UPDATE poster_jobs SET updated_at = now() - interval '5 minutes' WHERE id = $1`, job.ID)

	n, err = f.repo.ResetStale(ctx, time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("reset stale job: n=%d err=%v", n, err)
	}

	got, err := f.repo.GetJob(ctx, job.ID)
	if err != nil || got.Status != posters.StatusPending {
		t.Fatalf("unexpected job after reset: %+v %v", got, err)
	}
}
