package ledger

import (
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/tokenledger/internal/infra/logging"
	"github.com/fastprodman/tokenledger/internal/infra/pgtestutil"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (q *recordingQueue) Enqueue(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ids = append(q.ids, id)
}

type fixture struct {
	db    *sql.DB
	svc   *Service
	queue *recordingQueue
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db := pgtestutil.NewTestDB(t)
	f := &fixture{db: db, queue: &recordingQueue{}, now: time.Now().UTC().Truncate(time.Second)}

	base := []Option{
		WithLogger(logging.NewJSON(io.Discard, slog.LevelError)),
		WithPosterQueue(f.queue),
		WithClock(func() time.Time { return f.now }),
	}
	f.svc = New(db, append(base, opts...)...)

	return f
}

// fund opens userID and tops it up through a purchase so the stored balance
// always matches the ledger.
func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()

	pgtestutil.Exec(t, f.db, `INSERT INTO accounts (user_id) VALUES ($1)`, userID)

	if amount == 0 {
		return
	}

	_, err := f.svc.CreditPurchase(t.Context(), PurchaseCredit{
		UserID: userID, TokenAmount: amount, SourceID: "seed-" + userID,
	})
	require.NoError(t, err)
}

func (f *fixture) profile(t *testing.T, ownerID string, public bool) uuid.UUID {
	t.Helper()

	id := uuid.New()
	pgtestutil.Exec(t, f.db,
		`INSERT INTO profiles (id, owner_id, first_name, last_name, public) VALUES ($1, $2, 'Sam', 'Rivera', $3)`,
		id, ownerID, public)

	return id
}

func (f *fixture) award(t *testing.T, maxVotes int, votingEnds *time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	pgtestutil.Exec(t, f.db,
		`INSERT INTO awards (id, title, voting_ends, max_votes_per_user, token_cost_per_vote) VALUES ($1, 'Player of the Week', $2, $3, 1)`,
		id, votingEnds, maxVotes)

	return id
}

func (f *fixture) template(t *testing.T, tier catalog.Tier) uuid.UUID {
	t.Helper()

	id := uuid.New()
	pgtestutil.Exec(t, f.db,
		`INSERT INTO poster_templates (id, name, tier) VALUES ($1, $2, $3)`, id, "Game Day "+string(tier), string(tier))

	return id
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()

	b, err := f.svc.GetBalance(t.Context(), userID)
	require.NoError(t, err)

	return b
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()

	var n int

	require.NoError(t, f.db.QueryRowContext(t.Context(), query, args...).Scan(&n))

	return n
}

func fan(userID string) Principal {
	return Principal{UserID: userID, Role: "FAN", Tier: catalog.TierFree}
}

func (f *fixture) mustExec(t *testing.T, query string, args ...any) {
	t.Helper()

	pgtestutil.Exec(t, f.db, query, args...)
}
