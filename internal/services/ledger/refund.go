package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/audit"
	"github.com/fastprodman/tokenledger/internal/infra/metrics"
	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	"github.com/fastprodman/tokenledger/internal/repos/posters"
	"github.com/fastprodman/tokenledger/internal/repos/spotlights"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
)

// CancelResult describes a committed cancellation and its partial refund.
type CancelResult struct {
	Action       string
	TargetID     uuid.UUID
	RefundAmount int64
	NewBalance   int64
	Entry        ledgerrepo.Entry
}

// Cancel cancels a future spotlight or a still-pending poster job owned by the
// caller and credits the partial refund, all in one transaction.
func (s *Service) Cancel(ctx context.Context, p Principal, targetID uuid.UUID) (CancelResult, error) {
	res, err := s.cancel(ctx, p, targetID)
	metrics.RecordLedgerOp("cancel", resultLabel(err))

	return res, err
}

func (s *Service) cancel(ctx context.Context, p Principal, targetID uuid.UUID) (CancelResult, error) {
	if p.UserID == "" {
		return CancelResult{}, required("userId")
	}

	if targetID == uuid.Nil {
		return CancelResult{}, required("targetId")
	}

	var res CancelResult

	err := s.inTx(ctx, "cancel", func(tx *sql.Tx) error {
		var err error

		res, err = s.cancelSpotlight(tx, p, targetID)
		if !errors.Is(err, spotlights.ErrSpotlightNotFound) {
			return err
		}

		res, err = s.cancelPoster(tx, p, targetID)
		if errors.Is(err, posters.ErrJobNotFound) {
			return invalid(ReasonTargetNotFound, "nothing to cancel", map[string]any{"targetId": targetID})
		}

		return err
	})
	if err != nil {
		return CancelResult{}, err
	}

	s.logger.InfoContext(ctx, "purchase cancelled",
		"user_id", p.UserID, "action", res.Action, "target_id", res.TargetID,
		"refund", res.RefundAmount, "balance", res.NewBalance)

	s.committed(ctx, audit.TypeRefunded, res.Entry)

	return res, nil
}

func notOwner(p Principal, owner string) error {
	if owner == p.UserID {
		return nil
	}

	return invalid(ReasonPermissionDenied, "only the purchaser may cancel", nil)
}

func (s *Service) cancelSpotlight(tx *sql.Tx, p Principal, id uuid.UUID) (CancelResult, error) {
	spot, err := s.spotlights.GetForUpdate(tx, id)
	if err != nil {
		if errors.Is(err, spotlights.ErrSpotlightNotFound) {
			return CancelResult{}, err
		}

		return CancelResult{}, fmt.Errorf("load spotlight: %w", err)
	}

	err = notOwner(p, spot.PurchasedBy)
	if err != nil {
		return CancelResult{}, err
	}

	now := s.now()
	if spot.Status != spotlights.StatusBooked || !spot.Approved || !spot.StartDate.After(now) {
		return CancelResult{}, invalid(ReasonNotCancellable, "only spotlights that have not started can be cancelled",
			map[string]any{"status": string(spot.Status), "startDate": spot.StartDate})
	}

	err = s.spotlights.Cancel(tx, spot.ID, now)
	if err != nil {
		if errors.Is(err, spotlights.ErrAlreadyCancelled) {
			return CancelResult{}, invalid(ReasonNotCancellable, "spotlight is already cancelled", nil)
		}

		return CancelResult{}, fmt.Errorf("cancel spotlight: %w", err)
	}

	return s.refund(tx, p, ledgerrepo.SourceSpotlight, ledgerrepo.SourceSpotlightCancel, spot.ID, spot.TokenCost,
		"Spotlight cancelled: "+spot.Title)
}

func (s *Service) cancelPoster(tx *sql.Tx, p Principal, id uuid.UUID) (CancelResult, error) {
	job, err := s.posters.GetJobForUpdate(tx, id)
	if err != nil {
		if errors.Is(err, posters.ErrJobNotFound) {
			return CancelResult{}, err
		}

		return CancelResult{}, fmt.Errorf("load poster job: %w", err)
	}

	err = notOwner(p, job.UserID)
	if err != nil {
		return CancelResult{}, err
	}

	if job.Status != posters.StatusPending {
		return CancelResult{}, invalid(ReasonNotCancellable, "only pending poster jobs can be cancelled",
			map[string]any{"status": string(job.Status)})
	}

	err = s.posters.CancelJob(tx, job.ID)
	if err != nil {
		if errors.Is(err, posters.ErrJobNotPending) {
			return CancelResult{}, invalid(ReasonNotCancellable, "poster job is no longer pending", nil)
		}

		return CancelResult{}, fmt.Errorf("cancel poster job: %w", err)
	}

	return s.refund(tx, p, ledgerrepo.SourcePoster, ledgerrepo.SourcePosterCancel, job.ID, job.TokenCost,
		"Poster request cancelled")
}

// refund credits the catalog refund of the original spend. The spend entry is
// looked up so the refund is based on what was actually charged.
func (s *Service) refund(tx *sql.Tx, p Principal, spendSource, refundSource string, id uuid.UUID, cost int64, desc string) (CancelResult, error) {
	spent, err := s.entries.FindSpend(tx, p.UserID, spendSource, id.String())
	switch {
	case err == nil:
		cost = -spent.Amount
	case !errors.Is(err, ledgerrepo.ErrEntryNotFound):
		return CancelResult{}, fmt.Errorf("load original spend: %w", err)
	}

	amount := catalog.Refund(cost)

	res := CancelResult{Action: spendSource, TargetID: id, RefundAmount: amount}

	entry, err := s.applyAndRecord(tx, ledgerrepo.Entry{
		AccountID:    p.UserID,
		Kind:         ledgerrepo.KindRefunded,
		Amount:       amount,
		SourceAction: refundSource,
		SourceID:     id.String(),
		Description:  desc,
	})
	if err != nil {
		return CancelResult{}, err
	}

	res.NewBalance = entry.BalanceAfter
	res.Entry = entry

	return res, nil
}
