package awards

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/tokenledger/internal/audit"
	"github.com/fastprodman/tokenledger/internal/infra/logging"
	"github.com/fastprodman/tokenledger/internal/infra/pgtestutil"
	awardsrepo "github.com/fastprodman/tokenledger/internal/repos/awards"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)

	return nil
}

func newService(t *testing.T, now time.Time) (*Service, *recordingEmitter) {
	t.Helper()

	em := &recordingEmitter{}
	svc := New(pgtestutil.NewTestDB(t),
		WithEmitter(em),
		WithLogger(logging.NewJSON(io.Discard, slog.LevelError)),
		WithClock(func() time.Time { return now }),
	)

	return svc, em
}

func TestService_Lifecycle(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	svc, em := newService(t, now)
	ctx := t.Context()

	a, err := svc.Create(ctx, NewAward{Title: "  Player of the Month  "})
	require.NoError(t, err)
	assert.Equal(t, "Player of the Month", a.Title)
	assert.Equal(t, awardsrepo.StatusActive, a.Status)
	assert.Equal(t, 10, a.MaxVotesPerUser)

	// ARCHIVED is only reachable from CLOSED
	_, err = svc.Archive(ctx, a.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	closed, err := svc.Close(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, awardsrepo.StatusClosed, closed.Status)

	_, err = svc.Close(ctx, a.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	archived, err := svc.Archive(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, awardsrepo.StatusArchived, archived.Status)

	_, err = svc.Transition(ctx, a.ID, awardsrepo.StatusActive, TriggerAdmin)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.Len(t, em.events, 2)
	assert.Equal(t, audit.TypeAwardStatus, em.events[0].Type)
	assert.Equal(t, string(awardsrepo.StatusClosed), em.events[0].Action)
	assert.Equal(t, string(awardsrepo.StatusArchived), em.events[1].Action)
}

func TestService_CreateRejectsBadInput(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	svc, _ := newService(t, now)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		in   NewAward
	}{
		{name: "blank_title", in: NewAward{Title: "   "}},
		{name: "negative_cap", in: NewAward{Title: "MVP", MaxVotesPerUser: -1}},
		{name: "negative_vote_cost", in: NewAward{Title: "MVP", TokenCostPerVote: -1}},
		{name: "ends_in_past", in: NewAward{Title: "MVP", VotingEnds: &past}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(t.Context(), tt.in)
			require.ErrorIs(t, err, ErrInvalidAward)
		})
	}
}

func TestService_UnknownAward(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, time.Now())

	_, err := svc.Close(t.Context(), uuid.New())
	require.ErrorIs(t, err, ErrAwardNotFound)

	_, err = svc.Tally(t.Context(), uuid.New())
	require.ErrorIs(t, err, ErrAwardNotFound)
}

func TestService_SweepExpired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	svc, _ := newService(t, now)
	ctx := t.Context()

	soon := now.Add(time.Hour)
	later := now.Add(48 * time.Hour)

	expiring, err := svc.Create(ctx, NewAward{Title: "Expiring", VotingEnds: &soon})
	require.NoError(t, err)

	open, err := svc.Create(ctx, NewAward{Title: "Open", VotingEnds: &later})
	require.NoError(t, err)

	forever, err := svc.Create(ctx, NewAward{Title: "No end date"})
	require.NoError(t, err)

	// two hours on, only the first award has passed its window
	svc.now = func() time.Time { return now.Add(2 * time.Hour) }

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[uuid.UUID]awardsrepo.Status{
		expiring.ID: awardsrepo.StatusClosed,
		open.ID:     awardsrepo.StatusActive,
		forever.ID:  awardsrepo.StatusActive,
	} {
		a, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, a.Status, a.Title)
	}

	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_TallyOfFreshAward(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, time.Now())

	a, err := svc.Create(t.Context(), NewAward{Title: "MVP"})
	require.NoError(t, err)

	tally, err := svc.Tally(t.Context(), a.ID)
	require.NoError(t, err)
	assert.True(t, tally.Consistent())
	assert.Zero(t, tally.UserVotes)
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	st, err := ParseStatus(" closed ")
	require.NoError(t, err)
	assert.Equal(t, awardsrepo.StatusClosed, st)

	_, err = ParseStatus("pending")
	require.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestNewSweeper_RejectsBadSpec(t *testing.T) {
	t.Parallel()

	_, err := NewSweeper(&Service{}, "every minute", nil)
	require.Error(t, err)

	sw, err := NewSweeper(&Service{}, DefaultSweepSpec, nil)
	require.NoError(t, err)

	sw.Start()
	require.NoError(t, sw.Stop(t.Context()))
}
