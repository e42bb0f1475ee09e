// Package awards drives the award lifecycle. Nominations and votes are only
// accepted while an award is ACTIVE; this package moves awards on to CLOSED
// (admin action or expiry) and ARCHIVED, never skipping CLOSED.
package awards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/audit"
	"github.com/fastprodman/tokenledger/internal/infra/metrics"
	awardsrepo "github.com/fastprodman/tokenledger/internal/repos/awards"
	pgawards "github.com/fastprodman/tokenledger/internal/repos/awards/postgres"
)

var (
	ErrInvalidAward      = errors.New("invalid award")
	ErrInvalidTransition = awardsrepo.ErrInvalidTransition
	ErrAwardNotFound     = awardsrepo.ErrAwardNotFound
)

// Triggers recorded on transitions.
const (
	TriggerAdmin  = "admin"
	TriggerExpiry = "expiry"
)

// transitions lists the single legal predecessor of every target state.
var transitions = map[awardsrepo.Status]awardsrepo.Status{
	awardsrepo.StatusClosed:   awardsrepo.StatusActive,
	awardsrepo.StatusArchived: awardsrepo.StatusClosed,
}

// ParseStatus accepts any case.
func ParseStatus(s string) (awardsrepo.Status, error) {
	st := awardsrepo.Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case awardsrepo.StatusActive, awardsrepo.StatusClosed, awardsrepo.StatusArchived:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s)
	}
}

type Service struct {
	repo    awardsrepo.Awards
	emitter audit.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithEmitter(e audit.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		repo:    pgawards.New(db),
		emitter: audit.Nop{},
		logger:  slog.Default(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewAward is the input for Create. Zero MaxVotesPerUser means 10.
type NewAward struct {
	Title            string
	VotingEnds       *time.Time
	MaxVotesPerUser  int
	TokenCostPerVote int64
}

const defaultMaxVotes = 10

// Create opens a new ACTIVE award.
func (s *Service) Create(ctx context.Context, in NewAward) (awardsrepo.Award, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return awardsrepo.Award{}, fmt.Errorf("%w: title is required", ErrInvalidAward)
	}

	if in.MaxVotesPerUser == 0 {
		in.MaxVotesPerUser = defaultMaxVotes
	}

	if in.MaxVotesPerUser < 1 {
		return awardsrepo.Award{}, fmt.Errorf("%w: maxVotesPerUser must be at least 1", ErrInvalidAward)
	}

	if in.TokenCostPerVote < 0 {
		return awardsrepo.Award{}, fmt.Errorf("%w: tokenCostPerVote must not be negative", ErrInvalidAward)
	}

	if in.VotingEnds != nil && !in.VotingEnds.After(s.now()) {
		return awardsrepo.Award{}, fmt.Errorf("%w: votingEnds must be in the future", ErrInvalidAward)
	}

	a, err := s.repo.Create(ctx, awardsrepo.Award{
		Title:            title,
		Status:           awardsrepo.StatusActive,
		VotingEnds:       in.VotingEnds,
		MaxVotesPerUser:  in.MaxVotesPerUser,
		TokenCostPerVote: in.TokenCostPerVote,
	})
	if err != nil {
		return awardsrepo.Award{}, fmt.Errorf("create award: %w", err)
	}

	s.logger.InfoContext(ctx, "award created", "award_id", a.ID, "title", a.Title)

	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (awardsrepo.Award, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return awardsrepo.Award{}, fmt.Errorf("get award: %w", err)
	}

	return a, nil
}

// Close stops nominations and votes on an ACTIVE award.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (awardsrepo.Award, error) {
	return s.Transition(ctx, id, awardsrepo.StatusClosed, TriggerAdmin)
}

// Archive makes a CLOSED award read-only for good.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) (awardsrepo.Award, error) {
	return s.Transition(ctx, id, awardsrepo.StatusArchived, TriggerAdmin)
}

// Transition moves the award to `to` from its only legal predecessor. The
// update is conditional on the current status, so a concurrent transition
// makes one of the callers fail with ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to awardsrepo.Status, trigger string) (awardsrepo.Award, error) {
	from, ok := transitions[to]
	if !ok {
		return awardsrepo.Award{}, fmt.Errorf("%w: nothing transitions to %s", ErrInvalidTransition, to)
	}

	a, err := s.repo.Transition(ctx, id, from, to)
	if err != nil {
		return awardsrepo.Award{}, fmt.Errorf("transition award to %s: %w", to, err)
	}

	metrics.RecordAwardTransition(string(to), trigger)
	s.logger.InfoContext(ctx, "award status changed", "award_id", id, "from", from, "to", to, "trigger", trigger)

	err = s.emitter.Emit(ctx, audit.Event{
		Type:       audit.TypeAwardStatus,
		Action:     string(to),
		TargetID:   id.String(),
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "type", audit.TypeAwardStatus, "award_id", id, "error", err)
	}

	return a, nil
}

// SweepExpired closes every ACTIVE award whose voting window has passed and
// returns how many it closed. Awards closed concurrently by an admin are
// skipped, not reported as errors.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.repo.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired awards: %w", err)
	}

	closed := 0

	var errs []error

	for _, id := range ids {
		_, err := s.Transition(ctx, id, awardsrepo.StatusClosed, TriggerExpiry)
		switch {
		case err == nil:
			closed++
		case errors.Is(err, ErrInvalidTransition):
		default:
			errs = append(errs, err)
		}
	}

	return closed, errors.Join(errs...)
}

// Tally is the vote bookkeeping of one award.
type Tally struct {
	AwardID         uuid.UUID
	NominationVotes int64
	UserVotes       int64
}

// Consistent reports whether nomination counts agree with per-user totals.
func (t Tally) Consistent() bool {
	return t.NominationVotes == t.UserVotes
}

func (s *Service) Tally(ctx context.Context, id uuid.UUID) (Tally, error) {
	_, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tally{}, fmt.Errorf("get award: %w", err)
	}

	nom, users, err := s.repo.Tallies(ctx, id)
	if err != nil {
		return Tally{}, fmt.Errorf("award tallies: %w", err)
	}

	t := Tally{AwardID: id, NominationVotes: nom, UserVotes: users}
	if !t.Consistent() {
		s.logger.ErrorContext(ctx, "award vote tallies disagree",
			"award_id", id, "nomination_votes", nom, "user_votes", users)
	}

	return t, nil
}
