package awards

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAwardNotFound       = errors.New("award not found")
	ErrNominationNotFound  = errors.New("nomination not found")
	ErrDuplicateNomination = errors.New("profile already nominated for award")
	ErrInvalidTransition   = errors.New("invalid award status transition")
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusClosed   Status = "CLOSED"
	StatusArchived Status = "ARCHIVED"
)

type Award struct {
	ID               uuid.UUID
	Title            string
	Status           Status
	VotingEnds       *time.Time
	MaxVotesPerUser  int
	TokenCostPerVote int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the voting window has passed at now. Awards without
// an end date never expire.
func (a Award) Expired(now time.Time) bool {
	return a.VotingEnds != nil && !now.Before(*a.VotingEnds)
}

type Nomination struct {
	ID          uuid.UUID
	AwardID     uuid.UUID
	ProfileID   uuid.UUID
	NominatedBy string
	Reason      string
	TokenCost   int64
	VoteCount   int64
	CreatedAt   time.Time
}

// VoteTotal is one user's current allocation on an award. All of it points at
// a single nomination.
type VoteTotal struct {
	AwardID      uuid.UUID
	UserID       string
	NominationID uuid.UUID
	Total        int
	TokenCost    int64
}

// Vote is one cast, the domain record behind a VOTE ledger entry.
type Vote struct {
	ID           uuid.UUID
	AwardID      uuid.UUID
	UserID       string
	NominationID uuid.UUID
	Count        int
	TokenCost    int64
	CreatedAt    time.Time
}

type Awards interface {
	Create(ctx context.Context, a Award) (Award, error)
	Get(ctx context.Context, id uuid.UUID) (Award, error)
	// GetShared reads the award under FOR SHARE so a status transition
	// cannot commit underneath a running nomination or vote.
	GetShared(tx *sql.Tx, id uuid.UUID) (Award, error)
	Transition(ctx context.Context, id uuid.UUID, from, to Status) (Award, error)
	ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	CreateNomination(tx *sql.Tx, n Nomination) (Nomination, error)
	GetNomination(tx *sql.Tx, id uuid.UUID) (Nomination, error)
	FindNomination(tx *sql.Tx, awardID, profileID uuid.UUID) (Nomination, error)
	AdjustVoteCount(tx *sql.Tx, nominationID uuid.UUID, delta int64) error

	// LockVoteTotal serializes vote casting for (award, user) until tx ends
	// and returns the current allocation. found is false for a first vote.
	LockVoteTotal(tx *sql.Tx, awardID uuid.UUID, userID string) (vt VoteTotal, found bool, err error)
	SaveVoteTotal(tx *sql.Tx, vt VoteTotal) error
	InsertVote(tx *sql.Tx, v Vote) (Vote, error)

	// Tallies returns sum(nominations.vote_count) and sum(vote_totals.total)
	// for an award; the two must always agree.
	Tallies(ctx context.Context, awardID uuid.UUID) (nominationVotes, userVotes int64, err error)
}
