package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateEntry = errors.New("duplicate ledger entry")
	ErrEntryNotFound  = errors.New("ledger entry not found")
)

type Kind string

const (
	KindEarned    Kind = "EARNED"
	KindSpent     Kind = "SPENT"
	KindPurchased Kind = "PURCHASED"
	KindRefunded  Kind = "REFUNDED"
)

func (k Kind) Valid() bool {
	switch k {
	case KindEarned, KindSpent, KindPurchased, KindRefunded:
		return true
	default:
		return false
	}
}

// Source actions recorded on entries.
const (
	SourceNomination        = "NOMINATION"
	SourceVote              = "VOTE"
	SourceSpotlight         = "SPOTLIGHT"
	SourcePoster            = "POSTER"
	SourceLeaderboardBoost  = "LEADERBOARD_BOOST"
	SourceAdFree            = "AD_FREE"
	SourcePurchase          = "PURCHASE"
	SourceVerificationBonus = "STAT_VERIFICATION_REWARD"
	SourceSignupBonus       = "SIGNUP_BONUS"
	SourceSpotlightCancel   = "SPOTLIGHT_CANCELLATION"
	SourcePosterCancel      = "POSTER_CANCELLATION"
)

type Entry struct {
	ID           uuid.UUID
	AccountID    string
	Kind         Kind
	Amount       int64
	BalanceAfter int64
	SourceAction string
	SourceID     string
	Description  string
	CreatedAt    time.Time
}

// Filter narrows ListByAccount. Zero fields match everything; To is exclusive.
type Filter struct {
	Kind         Kind
	SourceAction string
	From         time.Time
	To           time.Time
}

type Page struct {
	Number int // 1-based
	Size   int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}

	return (p.Number - 1) * p.Size
}

type KindTotal struct {
	Kind   Kind
	Count  int64
	Amount int64
}

// Ledger is append-only; entries are never updated or deleted.
type Ledger interface {
	// Record inserts e inside tx. A second EARNED/PURCHASED entry for the same
	// (SourceAction, SourceID) fails with ErrDuplicateEntry and aborts tx.
	Record(tx *sql.Tx, e Entry) (Entry, error)
	FindCredit(tx *sql.Tx, sourceAction, sourceID string) (Entry, error)
	FindSpend(tx *sql.Tx, accountID, sourceAction, sourceID string) (Entry, error)
	ListByAccount(ctx context.Context, accountID string, f Filter, p Page) ([]Entry, int, error)
	Sum(ctx context.Context, accountID string) (int64, error)
	// SumTx is Sum inside tx, for comparing against a locked balance.
	SumTx(tx *sql.Tx, accountID string) (int64, error)
	Totals(ctx context.Context, accountID string, since time.Time) ([]KindTotal, error)
}
