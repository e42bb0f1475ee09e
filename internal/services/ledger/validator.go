package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/repos/awards"
	"github.com/fastprodman/tokenledger/internal/repos/grants"
	"github.com/fastprodman/tokenledger/internal/repos/posters"
	"github.com/fastprodman/tokenledger/internal/repos/profiles"
	"github.com/fastprodman/tokenledger/internal/repos/spotlights"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
)

// spendPlan is the validated, priced form of a SpendRequest. Building one
// reads and locks but never writes; create performs the domain write once
// the debit has succeeded.
type spendPlan struct {
	source      string
	targetID    uuid.UUID
	cost        int64
	description string
	create      func(tx *sql.Tx, res *SpendResult) error
}

func (s *Service) plan(tx *sql.Tx, p Principal, req SpendRequest, now time.Time) (spendPlan, error) {
	switch r := req.(type) {
	case NominateRequest:
		return s.planNomination(tx, p, r, now)
	case VoteRequest:
		return s.planVote(tx, p, r, now)
	case SpotlightRequest:
		return s.planSpotlight(tx, p, r, now)
	case PosterRequest:
		return s.planPoster(tx, p, r)
	case BoostRequest:
		return s.planBoost(tx, p, r, now)
	case AdFreeRequest:
		return s.planAdFree(tx, p, r, now)
	default:
		return spendPlan{}, invalid(ReasonInvalidRequest, fmt.Sprintf("unsupported action %T", req), nil)
	}
}

func (s *Service) openAward(tx *sql.Tx, awardID uuid.UUID, now time.Time) (awards.Award, error) {
	award, err := s.awards.GetShared(tx, awardID)
	if err != nil {
		if errors.Is(err, awards.ErrAwardNotFound) {
			return awards.Award{}, invalid(ReasonTargetNotFound, "award not found", map[string]any{"awardId": awardID})
		}

		return awards.Award{}, fmt.Errorf("load award: %w", err)
	}

	if award.Status != awards.StatusActive {
		return awards.Award{}, invalid(ReasonAwardNotActive, "award is not accepting nominations or votes",
			map[string]any{"status": string(award.Status)})
	}

	if award.Expired(now) {
		return awards.Award{}, invalid(ReasonAwardExpired, "voting has ended",
			map[string]any{"votingEnds": award.VotingEnds})
	}

	return award, nil
}

func (s *Service) loadProfile(tx *sql.Tx, id uuid.UUID) (profiles.Profile, error) {
	prof, err := s.profiles.Get(tx, id)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return profiles.Profile{}, invalid(ReasonTargetNotFound, "profile not found", map[string]any{"profileId": id})
		}

		return profiles.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	return prof, nil
}

// authorize allows the profile owner and the elevated roles.
func authorize(p Principal, prof profiles.Profile) error {
	if prof.OwnerID == p.UserID || catalog.Elevated(p.Role) {
		return nil
	}

	return invalid(ReasonPermissionDenied, "only the profile owner or a parent, coach or admin may do this",
		map[string]any{"role": p.Role})
}

func (s *Service) planNomination(tx *sql.Tx, p Principal, r NominateRequest, now time.Time) (spendPlan, error) {
	award, err := s.openAward(tx, r.AwardID, now)
	if err != nil {
		return spendPlan{}, err
	}

	prof, err := s.loadProfile(tx, r.ProfileID)
	if err != nil {
		return spendPlan{}, err
	}

	if !prof.Public {
		return spendPlan{}, invalid(ReasonProfileNotPublic, "profile is not discoverable", nil)
	}

	_, err = s.awards.FindNomination(tx, award.ID, prof.ID)
	switch {
	case err == nil:
		return spendPlan{}, invalid(ReasonDuplicateNomination, "profile is already nominated for this award", nil)
	case !errors.Is(err, awards.ErrNominationNotFound):
		return spendPlan{}, fmt.Errorf("check nomination: %w", err)
	}

	id := uuid.New()
	cost := s.catalog.Cost(catalog.Nomination, p.Tier, 1)

	return spendPlan{
		source:      r.Source(),
		targetID:    id,
		cost:        cost,
		description: fmt.Sprintf("Nominated %s for %s", prof.DisplayName(), award.Title),
		create: func(tx *sql.Tx, res *SpendResult) error {
			nom, err := s.awards.CreateNomination(tx, awards.Nomination{
				ID: id, AwardID: award.ID, ProfileID: prof.ID, NominatedBy: p.UserID, Reason: r.Reason, TokenCost: cost,
			})
			if err != nil {
				if errors.Is(err, awards.ErrDuplicateNomination) {
					return invalid(ReasonDuplicateNomination, "profile is already nominated for this award", nil)
				}

				return fmt.Errorf("create nomination: %w", err)
			}

			res.Nomination = &nom

			return nil
		},
	}, nil
}

func (s *Service) planVote(tx *sql.Tx, p Principal, r VoteRequest, now time.Time) (spendPlan, error) {
	nom, err := s.awards.GetNomination(tx, r.NominationID)
	if err != nil {
		if errors.Is(err, awards.ErrNominationNotFound) {
			return spendPlan{}, invalid(ReasonTargetNotFound, "nomination not found", map[string]any{"nominationId": r.NominationID})
		}

		return spendPlan{}, fmt.Errorf("load nomination: %w", err)
	}

	award, err := s.openAward(tx, nom.AwardID, now)
	if err != nil {
		return spendPlan{}, err
	}

	current, found, err := s.awards.LockVoteTotal(tx, award.ID, p.UserID)
	if err != nil {
		return spendPlan{}, fmt.Errorf("lock vote total: %w", err)
	}

	newTotal := current.Total + r.Votes
	if newTotal > award.MaxVotesPerUser {
		return spendPlan{}, invalid(ReasonVoteLimitExceeded, "vote limit for this award exceeded", map[string]any{
			"current":   current.Total,
			"requested": r.Votes,
			"max":       award.MaxVotesPerUser,
			"remaining": award.MaxVotesPerUser - current.Total,
		})
	}

	voteID := uuid.New()
	cost := s.catalog.CostFromBase(award.TokenCostPerVote, catalog.Vote, p.Tier, r.Votes)

	return spendPlan{
		source:      r.Source(),
		targetID:    voteID,
		cost:        cost,
		description: fmt.Sprintf("Cast %d vote(s) in %s", r.Votes, award.Title),
		create: func(tx *sql.Tx, res *SpendResult) error {
			// switching support moves the whole existing allocation along
			// with the new votes
			if found && current.Total > 0 && current.NominationID != nom.ID {
				err := s.awards.AdjustVoteCount(tx, current.NominationID, -int64(current.Total))
				if err != nil {
					return fmt.Errorf("move votes off previous nomination: %w", err)
				}

				err = s.awards.AdjustVoteCount(tx, nom.ID, int64(newTotal))
				if err != nil {
					return fmt.Errorf("move votes onto nomination: %w", err)
				}
			} else {
				err := s.awards.AdjustVoteCount(tx, nom.ID, int64(r.Votes))
				if err != nil {
					return fmt.Errorf("add votes: %w", err)
				}
			}

			err := s.awards.SaveVoteTotal(tx, awards.VoteTotal{
				AwardID: award.ID, UserID: p.UserID, NominationID: nom.ID,
				Total: newTotal, TokenCost: current.TokenCost + cost,
			})
			if err != nil {
				return fmt.Errorf("save vote total: %w", err)
			}

			vote, err := s.awards.InsertVote(tx, awards.Vote{
				ID: voteID, AwardID: award.ID, UserID: p.UserID, NominationID: nom.ID, Count: r.Votes, TokenCost: cost,
			})
			if err != nil {
				return fmt.Errorf("insert vote: %w", err)
			}

			res.Vote = &vote
			res.VoteTotal = newTotal

			return nil
		},
	}, nil
}

func spotlightKind(d Duration) catalog.ActionKind {
	if d == DurationMonth {
		return catalog.SpotlightMonth
	}

	return catalog.SpotlightWeek
}

func (s *Service) planSpotlight(tx *sql.Tx, p Principal, r SpotlightRequest, now time.Time) (spendPlan, error) {
	prof, err := s.loadProfile(tx, r.ProfileID)
	if err != nil {
		return spendPlan{}, err
	}

	err = authorize(p, prof)
	if err != nil {
		return spendPlan{}, err
	}

	start := now
	if r.StartDate != nil {
		if r.StartDate.Before(now.Add(-time.Minute)) {
			return spendPlan{}, invalid(ReasonInvalidRequest, "startDate is in the past", nil)
		}

		start = *r.StartDate
	}

	kind := spotlightKind(r.Duration)
	end := start.Add(s.catalog.Duration(kind))

	err = s.spotlights.LockProfile(tx, prof.ID)
	if err != nil {
		return spendPlan{}, fmt.Errorf("lock profile spotlights: %w", err)
	}

	overlap, err := s.spotlights.HasOverlap(tx, prof.ID, start, end)
	if err != nil {
		return spendPlan{}, fmt.Errorf("check overlap: %w", err)
	}

	if overlap {
		return spendPlan{}, invalid(ReasonSpotlightOverlap, "profile already has a spotlight in this window",
			map[string]any{"startDate": start, "endDate": end})
	}

	id := uuid.New()
	cost := s.catalog.Cost(kind, p.Tier, 1)

	return spendPlan{
		source:      r.Source(),
		targetID:    id,
		cost:        cost,
		description: fmt.Sprintf("Spotlight (%s) for %s", r.Duration, prof.DisplayName()),
		create: func(tx *sql.Tx, res *SpendResult) error {
			spot, err := s.spotlights.Create(tx, spotlights.Spotlight{
				ID: id, ProfileID: prof.ID, PurchasedBy: p.UserID, Title: r.Title, Description: r.Description,
				StartDate: start, EndDate: end, TokenCost: cost, Approved: true,
			})
			if err != nil {
				return fmt.Errorf("create spotlight: %w", err)
			}

			res.Spotlight = &spot

			return nil
		},
	}, nil
}

func (s *Service) planPoster(tx *sql.Tx, p Principal, r PosterRequest) (spendPlan, error) {
	prof, err := s.loadProfile(tx, r.ProfileID)
	if err != nil {
		return spendPlan{}, err
	}

	err = authorize(p, prof)
	if err != nil {
		return spendPlan{}, err
	}

	tpl, err := s.posters.GetTemplate(tx, r.TemplateID)
	if err != nil {
		if errors.Is(err, posters.ErrTemplateNotFound) {
			return spendPlan{}, invalid(ReasonTargetNotFound, "template not found", map[string]any{"templateId": r.TemplateID})
		}

		return spendPlan{}, fmt.Errorf("load template: %w", err)
	}

	if !tpl.Active {
		return spendPlan{}, invalid(ReasonTargetNotFound, "template is not available", map[string]any{"templateId": r.TemplateID})
	}

	needTier := catalog.ParseTier(tpl.Tier)
	if !p.Tier.AtLeast(needTier) {
		return spendPlan{}, invalid(ReasonTemplateTierRequired, "subscription tier too low for this template",
			map[string]any{"required": string(needTier), "current": string(p.Tier)})
	}

	open, err := s.posters.HasOpenJob(tx, p.UserID, prof.ID)
	if err != nil {
		return spendPlan{}, fmt.Errorf("check open poster job: %w", err)
	}

	if open {
		return spendPlan{}, invalid(ReasonDuplicatePendingRequest, "a poster for this profile is already being generated", nil)
	}

	id := uuid.New()
	cost := s.catalog.Cost(catalog.PosterAction(needTier), p.Tier, 1)

	return spendPlan{
		source:      r.Source(),
		targetID:    id,
		cost:        cost,
		description: fmt.Sprintf("Poster %q for %s", tpl.Name, prof.DisplayName()),
		create: func(tx *sql.Tx, res *SpendResult) error {
			job, err := s.posters.CreateJob(tx, posters.Job{
				ID: id, UserID: p.UserID, ProfileID: prof.ID, TemplateID: tpl.ID, TokenCost: cost, CustomData: r.Customization,
			})
			if err != nil {
				if errors.Is(err, posters.ErrDuplicateOpenJob) {
					return invalid(ReasonDuplicatePendingRequest, "a poster for this profile is already being generated", nil)
				}

				return fmt.Errorf("create poster job: %w", err)
			}

			res.PosterJob = &job

			return nil
		},
	}, nil
}

// grantWindow starts a grant when the caller's previous one of the same kind
// ends, so repeat purchases extend instead of overlapping.
func (s *Service) grantWindow(tx *sql.Tx, userID string, kind grants.Kind, profileID *uuid.UUID, now time.Time, d time.Duration) (time.Time, time.Time, error) {
	start := now

	latest, found, err := s.grants.LatestExpiry(tx, userID, kind, profileID)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("latest grant expiry: %w", err)
	}

	if found && latest.After(now) {
		start = latest
	}

	return start, start.Add(d), nil
}

func (s *Service) planBoost(tx *sql.Tx, p Principal, r BoostRequest, now time.Time) (spendPlan, error) {
	prof, err := s.loadProfile(tx, r.ProfileID)
	if err != nil {
		return spendPlan{}, err
	}

	err = authorize(p, prof)
	if err != nil {
		return spendPlan{}, err
	}

	profileID := prof.ID

	start, end, err := s.grantWindow(tx, p.UserID, grants.KindLeaderboardBoost, &profileID, now, s.catalog.Duration(catalog.LeaderboardBoost))
	if err != nil {
		return spendPlan{}, err
	}

	id := uuid.New()
	cost := s.catalog.Cost(catalog.LeaderboardBoost, p.Tier, 1)

	return spendPlan{
		source:      r.Source(),
		targetID:    id,
		cost:        cost,
		description: "Leaderboard boost for " + prof.DisplayName(),
		create: func(tx *sql.Tx, res *SpendResult) error {
			g, err := s.grants.Create(tx, grants.Grant{
				ID: id, Kind: grants.KindLeaderboardBoost, UserID: p.UserID, ProfileID: &profileID, TokenCost: cost,
				Multiplier: catalog.BoostMultiplier(), StartsAt: start, ExpiresAt: end,
			})
			if err != nil {
				return fmt.Errorf("create boost: %w", err)
			}

			res.Grant = &g

			return nil
		},
	}, nil
}

func (s *Service) planAdFree(tx *sql.Tx, p Principal, r AdFreeRequest, now time.Time) (spendPlan, error) {
	kind := catalog.AdFreeWeek
	if r.Duration == DurationMonth {
		kind = catalog.AdFreeMonth
	}

	start, end, err := s.grantWindow(tx, p.UserID, grants.KindAdFree, nil, now, s.catalog.Duration(kind))
	if err != nil {
		return spendPlan{}, err
	}

	id := uuid.New()
	cost := s.catalog.Cost(kind, p.Tier, 1)

	return spendPlan{
		source:      r.Source(),
		targetID:    id,
		cost:        cost,
		description: fmt.Sprintf("Ad-free (%s)", r.Duration),
		create: func(tx *sql.Tx, res *SpendResult) error {
			g, err := s.grants.Create(tx, grants.Grant{
				ID: id, Kind: grants.KindAdFree, UserID: p.UserID, TokenCost: cost, StartsAt: start, ExpiresAt: end,
			})
			if err != nil {
				return fmt.Errorf("create ad-free grant: %w", err)
			}

			res.Grant = &g

			return nil
		},
	}, nil
}
