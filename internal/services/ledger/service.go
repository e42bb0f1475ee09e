// Package ledger is the transactional core: it validates token-gated actions,
// prices them, and applies the balance change, the ledger entry and the
// domain record as one atomic unit.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/audit"
	"github.com/fastprodman/tokenledger/internal/infra/metrics"
	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/tokenledger/internal/repos/accounts/postgres"
	"github.com/fastprodman/tokenledger/internal/repos/awards"
	pgawards "github.com/fastprodman/tokenledger/internal/repos/awards/postgres"
	"github.com/fastprodman/tokenledger/internal/repos/grants"
	pggrants "github.com/fastprodman/tokenledger/internal/repos/grants/postgres"
	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	pgledger "github.com/fastprodman/tokenledger/internal/repos/ledger/postgres"
	"github.com/fastprodman/tokenledger/internal/repos/posters"
	pgposters "github.com/fastprodman/tokenledger/internal/repos/posters/postgres"
	"github.com/fastprodman/tokenledger/internal/repos/profiles"
	pgprofiles "github.com/fastprodman/tokenledger/internal/repos/profiles/postgres"
	"github.com/fastprodman/tokenledger/internal/repos/spotlights"
	pgspotlights "github.com/fastprodman/tokenledger/internal/repos/spotlights/postgres"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
)

// DefaultVerificationReward is credited per verified stat.
const DefaultVerificationReward = 5

// PosterQueue receives poster jobs once their spend has committed.
type PosterQueue interface {
	Enqueue(jobID uuid.UUID)
}

type Service struct {
	db         *sql.DB
	accounts   accounts.Accounts
	entries    ledgerrepo.Ledger
	awards     awards.Awards
	profiles   profiles.Profiles
	spotlights spotlights.Spotlights
	posters    posters.Posters
	grants     grants.Grants

	catalog            *catalog.Catalog
	emitter            audit.Emitter
	queue              PosterQueue
	logger             *slog.Logger
	now                func() time.Time
	retry              pgutils.RetryPolicy
	verificationReward int64
}

type Option func(*Service)

func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithEmitter(e audit.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

func WithPosterQueue(q PosterQueue) Option {
	return func(s *Service) { s.queue = q }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetries sets how many times a conflicting transaction is attempted.
func WithRetries(attempts int) Option {
	return func(s *Service) { s.retry.Attempts = attempts }
}

func WithVerificationReward(amount int64) Option {
	return func(s *Service) { s.verificationReward = amount }
}

func New(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:                 db,
		accounts:           pgaccounts.New(db),
		entries:            pgledger.New(db),
		awards:             pgawards.New(db),
		profiles:           pgprofiles.New(db),
		spotlights:         pgspotlights.New(db),
		posters:            pgposters.New(db),
		grants:             pggrants.New(db),
		catalog:            catalog.New(),
		emitter:            audit.Nop{},
		logger:             slog.Default(),
		now:                time.Now,
		retry:              pgutils.DefaultRetryPolicy,
		verificationReward: DefaultVerificationReward,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.retry.OnRetry = func(int, error) { metrics.RecordTxRetry() }

	return s
}

// inTx runs fn as one atomic unit with bounded conflict retries and maps the
// outcome onto the service error taxonomy.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	err := pgutils.WithRetryTx(ctx, s.db, s.retry, fn)
	if err == nil {
		return nil
	}

	if expected(err) {
		return unwrapExpected(err)
	}

	if errors.Is(err, pgutils.ErrRetriesExhausted) {
		s.logger.WarnContext(ctx, "transaction retry budget exhausted", "op", op, "error", err)
		return fmt.Errorf("%s: %w", op, ErrConcurrencyConflict)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.ErrorContext(ctx, "transaction rolled back", "op", op, "error", err)

	return &TransactionError{Op: op, Cause: err}
}

// unwrapExpected strips the transaction helper's wrapping so handlers see the
// taxonomy error itself.
func unwrapExpected(err error) error {
	var (
		ve *ValidationError
		ie *InsufficientFundsError
	)

	switch {
	case errors.As(err, &ve):
		return ve
	case errors.As(err, &ie):
		return ie
	case errors.Is(err, ErrDuplicateEvent):
		return ErrDuplicateEvent
	case errors.Is(err, ErrAccountNotFound):
		return ErrAccountNotFound
	default:
		return err
	}
}

func (s *Service) emit(ctx context.Context, e audit.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}

	err := s.emitter.Emit(ctx, e)
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "type", e.Type, "user_id", e.UserID, "error", err)
	}
}

func (s *Service) committed(ctx context.Context, eventType string, e ledgerrepo.Entry) {
	metrics.RecordTokens(string(e.Kind), e.Amount)

	s.emit(ctx, audit.Event{
		Type:     eventType,
		UserID:   e.AccountID,
		Action:   e.SourceAction,
		TargetID: e.SourceID,
		Amount:   e.Amount,
		Balance:  e.BalanceAfter,
		EntryID:  e.ID.String(),
	})
}

// applyAndRecord is the balance + entry half of every atomic unit. A negative
// amount is a debit; ErrInsufficientFunds leaves the balance untouched.
func (s *Service) applyAndRecord(tx *sql.Tx, e ledgerrepo.Entry) (ledgerrepo.Entry, error) {
	balance, err := s.accounts.ApplyDelta(tx, e.AccountID, e.Amount)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrInsufficientFunds):
			return ledgerrepo.Entry{}, insufficient(-e.Amount, balance)
		case errors.Is(err, accounts.ErrAccountNotFound):
			return ledgerrepo.Entry{}, ErrAccountNotFound
		default:
			return ledgerrepo.Entry{}, fmt.Errorf("apply delta: %w", err)
		}
	}

	e.BalanceAfter = balance

	recorded, err := s.entries.Record(tx, e)
	if err != nil {
		return ledgerrepo.Entry{}, fmt.Errorf("record entry: %w", err)
	}

	return recorded, nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.accounts.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return 0, ErrAccountNotFound
		}

		return 0, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}
