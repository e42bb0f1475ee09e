package posters

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTemplateNotFound = errors.New("poster template not found")
	ErrJobNotFound      = errors.New("poster job not found")
	ErrDuplicateOpenJob = errors.New("poster job already open for profile")
	ErrJobNotPending    = errors.New("poster job is not pending")
)

type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusGenerating JobStatus = "GENERATING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusCancelled  JobStatus = "CANCELLED"
)

func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Template struct {
	ID     uuid.UUID
	Name   string
	Tier   string
	Active bool
	Spec   json.RawMessage
}

type Job struct {
	ID            uuid.UUID
	UserID        string
	ProfileID     uuid.UUID
	TemplateID    uuid.UUID
	TokenCost     int64
	Status        JobStatus
	CustomData    json.RawMessage
	GeneratedURL  string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RenderInput is everything the renderer needs for one job.
type RenderInput struct {
	JobID        uuid.UUID
	ProfileID    uuid.UUID
	ProfileName  string
	TemplateName string
	TemplateSpec json.RawMessage
	CustomData   json.RawMessage
}

type Posters interface {
	GetTemplate(tx *sql.Tx, id uuid.UUID) (Template, error)
	HasOpenJob(tx *sql.Tx, userID string, profileID uuid.UUID) (bool, error)
	CreateJob(tx *sql.Tx, j Job) (Job, error)
	GetJobForUpdate(tx *sql.Tx, id uuid.UUID) (Job, error)
	CancelJob(tx *sql.Tx, id uuid.UUID) error

	GetJob(ctx context.Context, id uuid.UUID) (Job, error)
	// Claim moves a PENDING job to GENERATING. Only one caller can win.
	Claim(ctx context.Context, id uuid.UUID) (RenderInput, error)
	Complete(ctx context.Context, id uuid.UUID, url string) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	// Release hands a GENERATING job back to PENDING.
	Release(ctx context.Context, id uuid.UUID) error
	// ResetStale releases GENERATING jobs untouched for longer than olderThan.
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ListPending(ctx context.Context, limit int) ([]uuid.UUID, error)
}
