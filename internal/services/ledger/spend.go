package ledger

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/audit"
	"github.com/fastprodman/tokenledger/internal/infra/metrics"
	"github.com/fastprodman/tokenledger/internal/repos/awards"
	"github.com/fastprodman/tokenledger/internal/repos/grants"
	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	"github.com/fastprodman/tokenledger/internal/repos/posters"
	"github.com/fastprodman/tokenledger/internal/repos/spotlights"
)

// SpendResult describes a committed spend. Exactly one of the domain record
// pointers is set, matching the request variant.
type SpendResult struct {
	Action      string
	TargetID    uuid.UUID
	TokensSpent int64
	NewBalance  int64
	Entry       ledgerrepo.Entry

	Nomination *awards.Nomination
	Vote       *awards.Vote
	VoteTotal  int
	Spotlight  *spotlights.Spotlight
	PosterJob  *posters.Job
	Grant      *grants.Grant
}

// Spend validates req, debits its cost and creates the domain record in one
// transaction. Validation failures and ErrInsufficientFunds leave every
// balance and record untouched.
func (s *Service) Spend(ctx context.Context, p Principal, req SpendRequest) (SpendResult, error) {
	res, err := s.spend(ctx, p, req)
	metrics.RecordLedgerOp("spend", resultLabel(err))

	return res, err
}

func (s *Service) spend(ctx context.Context, p Principal, req SpendRequest) (SpendResult, error) {
	if req == nil {
		return SpendResult{}, invalid(ReasonInvalidRequest, "action is required", nil)
	}

	if p.UserID == "" {
		return SpendResult{}, required("userId")
	}

	err := req.check()
	if err != nil {
		return SpendResult{}, err
	}

	var res SpendResult

	now := s.now()

	err = s.inTx(ctx, "spend "+req.Source(), func(tx *sql.Tx) error {
		res = SpendResult{}

		plan, err := s.plan(tx, p, req, now)
		if err != nil {
			return err
		}

		entry, err := s.applyAndRecord(tx, ledgerrepo.Entry{
			AccountID:    p.UserID,
			Kind:         ledgerrepo.KindSpent,
			Amount:       -plan.cost,
			SourceAction: plan.source,
			SourceID:     plan.targetID.String(),
			Description:  plan.description,
		})
		if err != nil {
			return err
		}

		err = plan.create(tx, &res)
		if err != nil {
			return err
		}

		res.Action = plan.source
		res.TargetID = plan.targetID
		res.TokensSpent = plan.cost
		res.NewBalance = entry.BalanceAfter
		res.Entry = entry

		return nil
	})
	if err != nil {
		return SpendResult{}, err
	}

	s.logger.InfoContext(ctx, "tokens spent",
		"user_id", p.UserID, "action", res.Action, "target_id", res.TargetID,
		"amount", res.TokensSpent, "balance", res.NewBalance)

	s.committed(ctx, audit.TypeSpent, res.Entry)

	if res.PosterJob != nil && s.queue != nil {
		s.queue.Enqueue(res.PosterJob.ID)
	}

	return res, nil
}

// Nominate is Spend for a NominateRequest.
func (s *Service) Nominate(ctx context.Context, p Principal, r NominateRequest) (SpendResult, error) {
	return s.Spend(ctx, p, r)
}

// Vote is Spend for a VoteRequest.
func (s *Service) Vote(ctx context.Context, p Principal, r VoteRequest) (SpendResult, error) {
	return s.Spend(ctx, p, r)
}
