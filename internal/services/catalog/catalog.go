// Package catalog prices every token-gated action.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ActionKind string

const (
	Nomination       ActionKind = "NOMINATION"
	Vote             ActionKind = "VOTE"
	SpotlightWeek    ActionKind = "SPOTLIGHT_WEEK"
	SpotlightMonth   ActionKind = "SPOTLIGHT_MONTH"
	PosterFree       ActionKind = "POSTER_FREE"
	PosterStarter    ActionKind = "POSTER_STARTER"
	PosterPro        ActionKind = "POSTER_PRO"
	PosterElite      ActionKind = "POSTER_ELITE"
	LeaderboardBoost ActionKind = "LEADERBOARD_BOOST"
	AdFreeWeek       ActionKind = "AD_FREE_WEEK"
	AdFreeMonth      ActionKind = "AD_FREE_MONTH"
)

type Tier string

const (
	TierFree    Tier = "FREE"
	TierStarter Tier = "STARTER"
	TierPro     Tier = "PRO"
	TierElite   Tier = "ELITE"
)

var tierRank = map[Tier]int{TierFree: 0, TierStarter: 1, TierPro: 2, TierElite: 3}

// ParseTier accepts any case; unknown or empty input is FREE.
func ParseTier(s string) Tier {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := tierRank[t]; ok {
		return t
	}

	return TierFree
}

func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// AtLeast reports whether t meets or exceeds required.
func (t Tier) AtLeast(required Tier) bool {
	return tierRank[t] >= tierRank[required]
}

// PosterAction maps a template tier to its poster action kind.
func PosterAction(templateTier Tier) ActionKind {
	switch templateTier {
	case TierStarter:
		return PosterStarter
	case TierPro:
		return PosterPro
	case TierElite:
		return PosterElite
	default:
		return PosterFree
	}
}

type Price struct {
	BaseCost  int64
	Discounts map[Tier]decimal.Decimal
	// Duration is how long the bought placement or grant lasts, if timed.
	Duration time.Duration
}

const day = 24 * time.Hour

var posterDiscounts = map[Tier]decimal.Decimal{
	TierFree:    decimal.Zero,
	TierStarter: decimal.RequireFromString("0.10"),
	TierPro:     decimal.RequireFromString("0.20"),
	TierElite:   decimal.RequireFromString("0.35"),
}

// DefaultPrices is the production price list.
func DefaultPrices() map[ActionKind]Price {
	return map[ActionKind]Price{
		Nomination:       {BaseCost: 5},
		Vote:             {BaseCost: 1},
		SpotlightWeek:    {BaseCost: 25, Duration: 7 * day},
		SpotlightMonth:   {BaseCost: 75, Duration: 30 * day},
		PosterFree:       {BaseCost: 5, Discounts: posterDiscounts},
		PosterStarter:    {BaseCost: 10, Discounts: posterDiscounts},
		PosterPro:        {BaseCost: 20, Discounts: posterDiscounts},
		PosterElite:      {BaseCost: 35, Discounts: posterDiscounts},
		LeaderboardBoost: {BaseCost: 15, Duration: day},
		AdFreeWeek:       {BaseCost: 10, Duration: 7 * day},
		AdFreeMonth:      {BaseCost: 30, Duration: 30 * day},
	}
}

var (
	refundRatio     = decimal.RequireFromString("0.8")
	boostMultiplier = decimal.RequireFromString("1.5")
)

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	prices map[ActionKind]Price
}

func New() *Catalog {
	return &Catalog{prices: DefaultPrices()}
}

// NewWithPrices builds a catalog from an explicit price list.
func NewWithPrices(prices map[ActionKind]Price) *Catalog {
	cp := make(map[ActionKind]Price, len(prices))
	for k, p := range prices {
		cp[k] = p
	}

	return &Catalog{prices: cp}
}

func (c *Catalog) price(kind ActionKind) Price {
	p, ok := c.prices[kind]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown action kind %q", kind))
	}

	return p
}

// Cost is the total for quantity units of kind at the caller's tier.
// It panics on an unknown kind.
func (c *Catalog) Cost(kind ActionKind, tier Tier, quantity int) int64 {
	return c.CostFromBase(c.price(kind).BaseCost, kind, tier, quantity)
}

// CostFromBase prices kind with an overriding per-unit base, used for votes
// where each award carries its own per-vote cost.
func (c *Catalog) CostFromBase(base int64, kind ActionKind, tier Tier, quantity int) int64 {
	p := c.price(kind)

	if quantity < 1 {
		quantity = 1
	}

	return unitCost(base, p.Discounts[tier]) * int64(quantity)
}

func unitCost(base int64, discount decimal.Decimal) int64 {
	if base <= 0 {
		return 0
	}

	unit := decimal.NewFromInt(base).Mul(decimal.NewFromInt(1).Sub(discount)).Floor().IntPart()
	if unit < 1 {
		return 1
	}

	return unit
}

// Duration returns how long a timed action lasts, zero if untimed.
func (c *Catalog) Duration(kind ActionKind) time.Duration {
	return c.price(kind).Duration
}

// Refund is the partial refund granted on cancellation.
func Refund(originalCost int64) int64 {
	if originalCost <= 0 {
		return 0
	}

	return decimal.NewFromInt(originalCost).Mul(refundRatio).Floor().IntPart()
}

// BoostMultiplier is the leaderboard weight applied while a boost is live.
func BoostMultiplier() decimal.Decimal {
	return boostMultiplier
}

// SignupBonus is credited when an account is opened.
func SignupBonus(role string) int64 {
	if strings.EqualFold(role, "ATHLETE") {
		return 10
	}

	return 5
}

var elevatedRoles = map[string]struct{}{
	"PARENT": {},
	"COACH":  {},
	"ADMIN":  {},
}

// Elevated reports whether role may act on profiles it does not own.
func Elevated(role string) bool {
	_, ok := elevatedRoles[strings.ToUpper(role)]
	return ok
}
