package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/tokenledger/internal/audit"
	"github.com/fastprodman/tokenledger/internal/infra/metrics"
	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/repos/accounts"
	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
)

// EarnResult describes a credit. Duplicate is set when the source event had
// already been credited; Entry is then the original entry and nothing changed.
type EarnResult struct {
	NewBalance int64
	Entry      ledgerrepo.Entry
	Duplicate  bool
}

// Earn credits an EARNED entry, idempotent on (Source, SourceID). Source must
// be one of the earn actions; spend and purchase sources are rejected.
func (s *Service) Earn(ctx context.Context, r EarnRequest) (EarnResult, error) {
	err := r.checkSource()
	if err != nil {
		metrics.RecordLedgerOp("earn", resultLabel(err))
		return EarnResult{}, err
	}

	res, err := s.credit(ctx, ledgerrepo.KindEarned, r)
	metrics.RecordLedgerOp("earn", earnLabel(res, err))

	return res, err
}

// CreditPurchase credits a verified token pack purchase. Redelivery of the
// same payment session is a no-op reported with Duplicate set.
func (s *Service) CreditPurchase(ctx context.Context, pc PurchaseCredit) (EarnResult, error) {
	desc := fmt.Sprintf("Purchased %d tokens", pc.TokenAmount)
	if pc.PackageName != "" {
		desc = fmt.Sprintf("Purchased %s (%d tokens)", pc.PackageName, pc.TokenAmount)
	}

	res, err := s.credit(ctx, ledgerrepo.KindPurchased, EarnRequest{
		UserID:      pc.UserID,
		Source:      ledgerrepo.SourcePurchase,
		SourceID:    pc.SourceID,
		Amount:      pc.TokenAmount,
		Description: desc,
	})
	metrics.RecordLedgerOp("purchase", earnLabel(res, err))

	return res, err
}

// CreditVerificationReward pays the fixed reward for a verified stat, once
// per stat.
func (s *Service) CreditVerificationReward(ctx context.Context, userID, statID string) (EarnResult, error) {
	res, err := s.credit(ctx, ledgerrepo.KindEarned, EarnRequest{
		UserID:      userID,
		Source:      ledgerrepo.SourceVerificationBonus,
		SourceID:    statID,
		Amount:      s.verificationReward,
		Description: "Stat verification reward",
	})
	metrics.RecordLedgerOp("verification_reward", earnLabel(res, err))

	return res, err
}

func earnLabel(res EarnResult, err error) string {
	if err == nil && res.Duplicate {
		return "DUPLICATE_EVENT"
	}

	return resultLabel(err)
}

func (s *Service) credit(ctx context.Context, kind ledgerrepo.Kind, r EarnRequest) (EarnResult, error) {
	err := r.check()
	if err != nil {
		return EarnResult{}, err
	}

	var entry ledgerrepo.Entry

	err = s.inTx(ctx, "credit "+r.Source, func(tx *sql.Tx) error {
		_, err := s.entries.FindCredit(tx, r.Source, r.SourceID)
		switch {
		case err == nil:
			return ErrDuplicateEvent
		case !errors.Is(err, ledgerrepo.ErrEntryNotFound):
			return fmt.Errorf("check credit source: %w", err)
		}

		recorded, err := s.applyAndRecord(tx, ledgerrepo.Entry{
			AccountID:    r.UserID,
			Kind:         kind,
			Amount:       r.Amount,
			SourceAction: r.Source,
			SourceID:     r.SourceID,
			Description:  r.Description,
		})
		if err != nil {
			if errors.Is(err, ledgerrepo.ErrDuplicateEntry) {
				// lost the race against a concurrent delivery
				return ErrDuplicateEvent
			}

			return err
		}

		entry = recorded

		return nil
	})
	if errors.Is(err, ErrDuplicateEvent) {
		return s.duplicateCredit(ctx, r)
	}

	if err != nil {
		return EarnResult{}, err
	}

	s.logger.InfoContext(ctx, "tokens credited",
		"user_id", r.UserID, "source", r.Source, "source_id", r.SourceID, "amount", r.Amount, "balance", entry.BalanceAfter)

	eventType := audit.TypeEarned
	if kind == ledgerrepo.KindPurchased {
		eventType = audit.TypePurchased
	}

	s.committed(ctx, eventType, entry)

	return EarnResult{NewBalance: entry.BalanceAfter, Entry: entry}, nil
}

func (s *Service) duplicateCredit(ctx context.Context, r EarnRequest) (EarnResult, error) {
	var original ledgerrepo.Entry

	err := pgutils.WithTxOptions(ctx, s.db, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		e, err := s.entries.FindCredit(tx, r.Source, r.SourceID)
		if err != nil {
			return fmt.Errorf("load original credit: %w", err)
		}

		original = e

		return nil
	})
	if err != nil {
		return EarnResult{}, &TransactionError{Op: "credit " + r.Source, Cause: err}
	}

	if original.AccountID != r.UserID {
		s.logger.WarnContext(ctx, "duplicate credit event names a different account",
			"source", r.Source, "source_id", r.SourceID, "user_id", r.UserID, "credited_user_id", original.AccountID)
	} else {
		s.logger.InfoContext(ctx, "duplicate credit event ignored",
			"source", r.Source, "source_id", r.SourceID, "user_id", r.UserID)
	}

	balance, err := s.GetBalance(ctx, r.UserID)
	if err != nil {
		return EarnResult{}, err
	}

	return EarnResult{NewBalance: balance, Entry: original, Duplicate: true}, nil
}

// OpenResult reports whether OpenAccount created the account.
type OpenResult struct {
	Balance int64
	Bonus   int64
	Created bool
}

// OpenAccount creates the account and credits the role's signup bonus in the
// same transaction. Opening an existing account changes nothing.
func (s *Service) OpenAccount(ctx context.Context, userID, role string) (OpenResult, error) {
	if userID == "" {
		return OpenResult{}, required("userId")
	}

	bonus := catalog.SignupBonus(role)

	var entry ledgerrepo.Entry

	err := s.inTx(ctx, "open account", func(tx *sql.Tx) error {
		err := s.accounts.Create(tx, userID)
		if err != nil {
			if errors.Is(err, accounts.ErrAccountExists) {
				return ErrDuplicateEvent
			}

			return fmt.Errorf("create account: %w", err)
		}

		entry, err = s.applyAndRecord(tx, ledgerrepo.Entry{
			AccountID:    userID,
			Kind:         ledgerrepo.KindEarned,
			Amount:       bonus,
			SourceAction: ledgerrepo.SourceSignupBonus,
			SourceID:     userID,
			Description:  "Welcome bonus",
		})

		return err
	})

	switch {
	case errors.Is(err, ErrDuplicateEvent):
		metrics.RecordLedgerOp("open_account", "DUPLICATE_EVENT")

		balance, err := s.GetBalance(ctx, userID)
		if err != nil {
			return OpenResult{}, err
		}

		return OpenResult{Balance: balance}, nil
	case err != nil:
		metrics.RecordLedgerOp("open_account", resultLabel(err))
		return OpenResult{}, err
	}

	metrics.RecordLedgerOp("open_account", "ok")
	s.logger.InfoContext(ctx, "account opened", "user_id", userID, "role", role, "bonus", bonus)

	s.emit(ctx, audit.Event{Type: audit.TypeAccountOpened, UserID: userID, Amount: bonus, Balance: entry.BalanceAfter})
	s.committed(ctx, audit.TypeEarned, entry)

	return OpenResult{Balance: entry.BalanceAfter, Bonus: bonus, Created: true}, nil
}
