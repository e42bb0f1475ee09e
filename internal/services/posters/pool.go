// Package posters generates paid-for posters in the background. Tokens are
// debited when the job is created; the workers here only move the job
// through GENERATING to COMPLETED or FAILED and never touch the ledger, so a
// failed render is not refunded.
package posters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fastprodman/tokenledger/internal/audit"
	"github.com/fastprodman/tokenledger/internal/infra/metrics"
	"github.com/fastprodman/tokenledger/internal/repos/posters"
	pgposters "github.com/fastprodman/tokenledger/internal/repos/posters/postgres"
)

const (
	maxFailureReason   = 500
	statusWriteTimeout = 10 * time.Second
)

// Pool is a fixed set of workers fed by Enqueue. Jobs that don't fit in the
// queue stay PENDING and are picked up by the next Requeue.
type Pool struct {
	repo     posters.Posters
	renderer Renderer
	emitter  audit.Emitter
	logger   *slog.Logger

	workers     int
	renderLimit time.Duration
	jobs        chan uuid.UUID
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) { p.workers = n }
}

// WithRenderTimeout bounds a single renderer call.
func WithRenderTimeout(d time.Duration) Option {
	return func(p *Pool) { p.renderLimit = d }
}

func WithQueueSize(n int) Option {
	return func(p *Pool) { p.jobs = make(chan uuid.UUID, n) }
}

func WithEmitter(e audit.Emitter) Option {
	return func(p *Pool) { p.emitter = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

func NewPool(db *sql.DB, renderer Renderer, opts ...Option) *Pool {
	p := &Pool{
		repo:        pgposters.New(db),
		renderer:    renderer,
		emitter:     audit.Nop{},
		logger:      slog.Default(),
		workers:     2,
		renderLimit: 2 * time.Minute,
		jobs:        make(chan uuid.UUID, 256),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.workers < 1 {
		p.workers = 1
	}

	return p
}

// Enqueue never blocks.
func (p *Pool) Enqueue(id uuid.UUID) {
	select {
	case p.jobs <- id:
	default:
		p.logger.Warn("poster queue full, job left pending", "job_id", id)
	}
}

// Requeue enqueues PENDING jobs left over from a restart or a full queue.
// GENERATING jobs idle for longer than the render timeout are orphans of a
// crash or a lost status write; they are released and enqueued too.
func (p *Pool) Requeue(ctx context.Context) (int, error) {
	reset, err := p.repo.ResetStale(ctx, p.renderLimit+statusWriteTimeout)
	if err != nil {
		return 0, fmt.Errorf("reset stale poster jobs: %w", err)
	}

	if reset > 0 {
		p.logger.WarnContext(ctx, "released stale poster jobs", "count", reset)
	}

	ids, err := p.repo.ListPending(ctx, cap(p.jobs))
	if err != nil {
		return 0, fmt.Errorf("list pending poster jobs: %w", err)
	}

	for _, id := range ids {
		p.Enqueue(id)
	}

	return len(ids), nil
}

// Run processes jobs until ctx is cancelled. A job being rendered when ctx
// ends goes back to PENDING for the next Requeue.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for range p.workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-p.jobs:
					p.Process(ctx, id)
				}
			}
		})
	}

	err := g.Wait()
	if err != nil {
		return fmt.Errorf("poster workers: %w", err)
	}

	return nil
}

// Process renders one job. Jobs that are no longer PENDING (cancelled, or
// claimed by another worker) are skipped.
func (p *Pool) Process(ctx context.Context, id uuid.UUID) {
	in, err := p.repo.Claim(ctx, id)
	if err != nil {
		if errors.Is(err, posters.ErrJobNotPending) {
			p.logger.DebugContext(ctx, "poster job not pending, skipped", "job_id", id)
			return
		}

		p.logger.ErrorContext(ctx, "claim poster job", "job_id", id, "error", err)

		return
	}

	renderCtx, cancel := context.WithTimeout(ctx, p.renderLimit)
	start := time.Now()
	url, renderErr := p.renderer.Render(renderCtx, in)
	elapsed := time.Since(start)
	cancel()

	// status updates must land even if ctx was cancelled mid-render
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancelWrite()

	if renderErr != nil && ctx.Err() != nil {
		err = p.repo.Release(writeCtx, id)
		if err != nil {
			p.logger.ErrorContext(writeCtx, "release poster job", "job_id", id, "error", err)
			return
		}

		p.logger.InfoContext(writeCtx, "poster job released on shutdown", "job_id", id)

		return
	}

	status := posters.StatusCompleted

	if renderErr != nil {
		status = posters.StatusFailed

		err = p.repo.Fail(writeCtx, id, truncate(renderErr.Error(), maxFailureReason))
		p.logger.WarnContext(ctx, "poster generation failed", "job_id", id, "error", renderErr)
	} else {
		err = p.repo.Complete(writeCtx, id, url)
		p.logger.InfoContext(ctx, "poster generated", "job_id", id, "url", url)
	}

	if err != nil {
		p.logger.ErrorContext(ctx, "store poster job result", "job_id", id, "status", status, "error", err)
		return
	}

	metrics.RecordPosterJob(string(status), elapsed)

	job, err := p.repo.GetJob(writeCtx, id)
	if err != nil {
		p.logger.WarnContext(ctx, "reload poster job", "job_id", id, "error", err)
		return
	}

	err = p.emitter.Emit(writeCtx, audit.Event{
		Type:       audit.TypePosterStatus,
		UserID:     job.UserID,
		Action:     string(status),
		TargetID:   id.String(),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		p.logger.WarnContext(ctx, "audit emit failed", "type", audit.TypePosterStatus, "job_id", id, "error", err)
	}
}

// truncate cuts s to at most n bytes of valid UTF-8. Renderer errors may echo
// arbitrary response bytes, which a TEXT column rejects.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "?")

	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
