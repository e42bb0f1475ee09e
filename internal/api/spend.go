package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	"github.com/fastprodman/tokenledger/internal/services/ledger"
)

// spendBody is the envelope for POST /me/spend. Params is decoded into the
// struct for Action, and unknown fields there are rejected too.
type spendBody struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

type nominateParams struct {
	AwardID   uuid.UUID `json:"awardId"`
	ProfileID uuid.UUID `json:"profileId"`
	Reason    string    `json:"reason"`
}

type voteParams struct {
	NominationID uuid.UUID `json:"nominationId"`
	Votes        int       `json:"votes"`
}

type spotlightParams struct {
	ProfileID   uuid.UUID  `json:"profileId"`
	Duration    string     `json:"duration"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"startDate"`
}

type posterParams struct {
	ProfileID     uuid.UUID       `json:"profileId"`
	TemplateID    uuid.UUID       `json:"templateId"`
	Customization json.RawMessage `json:"customization"`
}

type boostParams struct {
	ProfileID uuid.UUID `json:"profileId"`
}

type adFreeParams struct {
	Duration string `json:"duration"`
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}

	return nil
}

// toSpendRequest turns the envelope into the closed request variant for its
// action. Field-level requirements are checked by the ledger service.
func toSpendRequest(b spendBody) (ledger.SpendRequest, error) {
	switch strings.ToUpper(strings.TrimSpace(b.Action)) {
	case ledgerrepo.SourceNomination:
		var p nominateParams
		if err := decodeParams(b.Params, &p); err != nil {
			return nil, err
		}

		return ledger.NominateRequest{AwardID: p.AwardID, ProfileID: p.ProfileID, Reason: p.Reason}, nil
	case ledgerrepo.SourceVote:
		var p voteParams
		if err := decodeParams(b.Params, &p); err != nil {
			return nil, err
		}

		return ledger.VoteRequest{NominationID: p.NominationID, Votes: p.Votes}, nil
	case ledgerrepo.SourceSpotlight:
		var p spotlightParams
		if err := decodeParams(b.Params, &p); err != nil {
			return nil, err
		}

		return ledger.SpotlightRequest{
			ProfileID:   p.ProfileID,
			Duration:    ledger.Duration(strings.ToUpper(p.Duration)),
			Title:       p.Title,
			Description: p.Description,
			StartDate:   p.StartDate,
		}, nil
	case ledgerrepo.SourcePoster:
		var p posterParams
		if err := decodeParams(b.Params, &p); err != nil {
			return nil, err
		}

		return ledger.PosterRequest{ProfileID: p.ProfileID, TemplateID: p.TemplateID, Customization: p.Customization}, nil
	case ledgerrepo.SourceLeaderboardBoost:
		var p boostParams
		if err := decodeParams(b.Params, &p); err != nil {
			return nil, err
		}

		return ledger.BoostRequest{ProfileID: p.ProfileID}, nil
	case ledgerrepo.SourceAdFree:
		var p adFreeParams
		if err := decodeParams(b.Params, &p); err != nil {
			return nil, err
		}

		return ledger.AdFreeRequest{Duration: ledger.Duration(strings.ToUpper(p.Duration))}, nil
	case "":
		return nil, fmt.Errorf("action is required")
	default:
		return nil, fmt.Errorf("unknown action %q", b.Action)
	}
}

// SpendHandler handles POST /me/spend
func (h *HandlerProvider) SpendHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	var body spendBody

	err := decodeBody(w, r, &body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: string(ledger.ReasonInvalidRequest)})
		return
	}

	req, err := toSpendRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: string(ledger.ReasonInvalidRequest)})
		return
	}

	res, err := h.svc.Spend(r.Context(), p, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"action":      res.Action,
		"targetId":    res.TargetID,
		"tokensSpent": res.TokensSpent,
		"newBalance":  res.NewBalance,
		"entryId":     res.Entry.ID,
		"result":      viewSpendResult(res),
	})
}

func viewSpendResult(res ledger.SpendResult) map[string]any {
	switch {
	case res.Nomination != nil:
		n := res.Nomination
		return map[string]any{"nominationId": n.ID, "awardId": n.AwardID, "profileId": n.ProfileID, "voteCount": n.VoteCount}
	case res.Vote != nil:
		v := res.Vote
		return map[string]any{
			"voteId": v.ID, "awardId": v.AwardID, "nominationId": v.NominationID,
			"votes": v.Count, "userVoteTotal": res.VoteTotal,
		}
	case res.Spotlight != nil:
		s := res.Spotlight
		return map[string]any{"spotlightId": s.ID, "profileId": s.ProfileID, "startDate": s.StartDate, "endDate": s.EndDate}
	case res.PosterJob != nil:
		j := res.PosterJob
		return map[string]any{"posterId": j.ID, "profileId": j.ProfileID, "templateId": j.TemplateID, "status": j.Status}
	case res.Grant != nil:
		g := res.Grant
		return map[string]any{"grantId": g.ID, "kind": g.Kind, "startsAt": g.StartsAt, "expiresAt": g.ExpiresAt}
	default:
		return nil
	}
}

type cancelBody struct {
	TargetID uuid.UUID `json:"targetId"`
}

// CancelHandler handles POST /me/cancel
func (h *HandlerProvider) CancelHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	var body cancelBody

	err := decodeBody(w, r, &body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: string(ledger.ReasonInvalidRequest)})
		return
	}

	res, err := h.svc.Cancel(r.Context(), p, body.TargetID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"action":       res.Action,
		"targetId":     res.TargetID,
		"refundAmount": res.RefundAmount,
		"newBalance":   res.NewBalance,
		"entryId":      res.Entry.ID,
	})
}
