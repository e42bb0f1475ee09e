package ledger

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
)

// Principal is the authenticated caller, resolved upstream.
type Principal struct {
	UserID string
	Role   string
	Tier   catalog.Tier
}

// SpendRequest is one of NominateRequest, VoteRequest, SpotlightRequest,
// PosterRequest, BoostRequest or AdFreeRequest.
type SpendRequest interface {
	// Source is the ledger source action recorded for the spend.
	Source() string
	check() error
	spendRequest()
}

type NominateRequest struct {
	AwardID   uuid.UUID
	ProfileID uuid.UUID
	Reason    string
}

type VoteRequest struct {
	NominationID uuid.UUID
	Votes        int
}

type Duration string

const (
	DurationWeek  Duration = "WEEK"
	DurationMonth Duration = "MONTH"
)

type SpotlightRequest struct {
	ProfileID   uuid.UUID
	Duration    Duration
	Title       string
	Description string
	// StartDate defaults to now.
	StartDate *time.Time
}

type PosterRequest struct {
	ProfileID     uuid.UUID
	TemplateID    uuid.UUID
	Customization json.RawMessage
}

type BoostRequest struct {
	ProfileID uuid.UUID
}

type AdFreeRequest struct {
	Duration Duration
}

const (
	maxReasonLen = 1000
	maxTitleLen  = 120
	maxVotesOnce = 1000
)

func (NominateRequest) Source() string  { return ledgerrepo.SourceNomination }
func (VoteRequest) Source() string      { return ledgerrepo.SourceVote }
func (SpotlightRequest) Source() string { return ledgerrepo.SourceSpotlight }
func (PosterRequest) Source() string    { return ledgerrepo.SourcePoster }
func (BoostRequest) Source() string     { return ledgerrepo.SourceLeaderboardBoost }
func (AdFreeRequest) Source() string    { return ledgerrepo.SourceAdFree }

func (NominateRequest) spendRequest()  {}
func (VoteRequest) spendRequest()      {}
func (SpotlightRequest) spendRequest() {}
func (PosterRequest) spendRequest()    {}
func (BoostRequest) spendRequest()     {}
func (AdFreeRequest) spendRequest()    {}

func required(field string) error {
	return invalid(ReasonInvalidRequest, field+" is required", map[string]any{"field": field})
}

func (r NominateRequest) check() error {
	switch {
	case r.AwardID == uuid.Nil:
		return required("awardId")
	case r.ProfileID == uuid.Nil:
		return required("profileId")
	case len(r.Reason) > maxReasonLen:
		return invalid(ReasonInvalidRequest, "reason is too long", map[string]any{"max": maxReasonLen})
	}

	return nil
}

func (r VoteRequest) check() error {
	if r.NominationID == uuid.Nil {
		return required("nominationId")
	}

	if r.Votes < 1 || r.Votes > maxVotesOnce {
		return invalid(ReasonInvalidRequest, "votes must be between 1 and 1000", map[string]any{"votes": r.Votes})
	}

	return nil
}

func (d Duration) check() error {
	switch d {
	case DurationWeek, DurationMonth:
		return nil
	case "":
		return required("duration")
	default:
		return invalid(ReasonInvalidRequest, "duration must be WEEK or MONTH", map[string]any{"duration": string(d)})
	}
}

func (r SpotlightRequest) check() error {
	if r.ProfileID == uuid.Nil {
		return required("profileId")
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		return required("title")
	}

	if len(title) > maxTitleLen {
		return invalid(ReasonInvalidRequest, "title is too long", map[string]any{"max": maxTitleLen})
	}

	return r.Duration.check()
}

func (r PosterRequest) check() error {
	switch {
	case r.ProfileID == uuid.Nil:
		return required("profileId")
	case r.TemplateID == uuid.Nil:
		return required("templateId")
	case len(r.Customization) > 0 && !json.Valid(r.Customization):
		return invalid(ReasonInvalidRequest, "customization must be valid JSON", nil)
	}

	return nil
}

func (r BoostRequest) check() error {
	if r.ProfileID == uuid.Nil {
		return required("profileId")
	}

	return nil
}

func (r AdFreeRequest) check() error {
	return r.Duration.check()
}

// EarnRequest credits tokens for an authenticated external event. SourceID is
// the dedupe key.
type EarnRequest struct {
	UserID      string
	Source      string
	SourceID    string
	Amount      int64
	Description string
}

func (r EarnRequest) check() error {
	switch {
	case r.UserID == "":
		return required("userId")
	case r.Source == "":
		return required("source")
	case r.SourceID == "":
		return required("sourceId")
	case r.Amount <= 0:
		return invalid(ReasonInvalidRequest, "amount must be positive", map[string]any{"amount": r.Amount})
	}

	return nil
}

// earnSources are the source actions an external earn event may carry.
// Purchases and refunds have their own entry points.
var earnSources = map[string]bool{
	ledgerrepo.SourceVerificationBonus: true,
	ledgerrepo.SourceSignupBonus:       true,
}

func (r EarnRequest) checkSource() error {
	if r.Source == "" || earnSources[r.Source] {
		return nil
	}

	return invalid(ReasonInvalidRequest, "source is not an earn action", map[string]any{"source": r.Source})
}

// PurchaseCredit is a verified payment-completion event.
type PurchaseCredit struct {
	UserID      string
	TokenAmount int64
	// SourceID is the payment session id.
	SourceID    string
	PackageID   string
	PackageName string
	PriceCents  int64
}

// HistoryQuery filters GetHistory. Zero values match everything.
type HistoryQuery struct {
	Kind   ledgerrepo.Kind
	Source string
	From   time.Time
	To     time.Time
	Page   int
	Limit  int
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (q HistoryQuery) normalized() (HistoryQuery, error) {
	if q.Kind != "" && !q.Kind.Valid() {
		return q, invalid(ReasonInvalidRequest, "unknown entry type", map[string]any{"type": string(q.Kind)})
	}

	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, invalid(ReasonInvalidRequest, "endDate is before startDate", nil)
	}

	if q.Page < 1 {
		q.Page = 1
	}

	switch {
	case q.Limit < 1:
		q.Limit = defaultHistoryLimit
	case q.Limit > maxHistoryLimit:
		q.Limit = maxHistoryLimit
	}

	return q, nil
}
