package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/repos/accounts"
	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
)

const summaryWindow = 30 * 24 * time.Hour

// History is one page of an account's entries, newest first.
type History struct {
	Entries []ledgerrepo.Entry
	Page    int
	Limit   int
	Total   int
	Pages   int
	HasNext bool
	HasPrev bool
	Summary Summary
}

// Summary aggregates entries per kind.
type Summary struct {
	Last30Days []ledgerrepo.KindTotal
	AllTime    []ledgerrepo.KindTotal
}

func (s *Service) GetHistory(ctx context.Context, userID string, q HistoryQuery) (History, error) {
	if userID == "" {
		return History{}, required("userId")
	}

	q, err := q.normalized()
	if err != nil {
		return History{}, err
	}

	entries, total, err := s.entries.ListByAccount(ctx, userID, ledgerrepo.Filter{
		Kind:         q.Kind,
		SourceAction: q.Source,
		From:         q.From,
		To:           q.To,
	}, ledgerrepo.Page{Number: q.Page, Size: q.Limit})
	if err != nil {
		return History{}, fmt.Errorf("list entries: %w", err)
	}

	recent, err := s.entries.Totals(ctx, userID, s.now().Add(-summaryWindow))
	if err != nil {
		return History{}, fmt.Errorf("recent totals: %w", err)
	}

	all, err := s.entries.Totals(ctx, userID, time.Time{})
	if err != nil {
		return History{}, fmt.Errorf("all-time totals: %w", err)
	}

	pages := (total + q.Limit - 1) / q.Limit

	return History{
		Entries: entries,
		Page:    q.Page,
		Limit:   q.Limit,
		Total:   total,
		Pages:   pages,
		HasNext: q.Page < pages,
		HasPrev: q.Page > 1,
		Summary: Summary{Last30Days: recent, AllTime: all},
	}, nil
}

// Reconciliation compares the stored balance with the sum of the account's
// entries. They differ only if the ledger was bypassed.
type Reconciliation struct {
	UserID     string
	Balance    int64
	LedgerSum  int64
	Consistent bool
}

// Reconcile locks the account so no spend can land between the two reads.
func (s *Service) Reconcile(ctx context.Context, userID string) (Reconciliation, error) {
	if userID == "" {
		return Reconciliation{}, required("userId")
	}

	rec := Reconciliation{UserID: userID}

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		balance, err := s.accounts.LockAndGetBalance(tx, userID)
		if err != nil {
			return err
		}

		sum, err := s.entries.SumTx(tx, userID)
		if err != nil {
			return err
		}

		rec.Balance = balance
		rec.LedgerSum = sum

		return nil
	})
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return Reconciliation{}, ErrAccountNotFound
		}

		return Reconciliation{}, &TransactionError{Op: "reconcile", Cause: err}
	}

	rec.Consistent = rec.Balance == rec.LedgerSum
	if !rec.Consistent {
		s.logger.ErrorContext(ctx, "balance does not match ledger",
			"user_id", userID, "balance", rec.Balance, "ledger_sum", rec.LedgerSum)
	}

	return rec, nil
}
