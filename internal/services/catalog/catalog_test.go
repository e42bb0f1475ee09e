package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	t.Parallel()

	c := New()

	tests := []struct {
		name     string
		kind     ActionKind
		tier     Tier
		quantity int
		want     int64
	}{
		{name: "nomination", kind: Nomination, tier: TierFree, quantity: 1, want: 5},
		{name: "nomination_tier_has_no_discount", kind: Nomination, tier: TierElite, quantity: 1, want: 5},
		{name: "votes_multiply", kind: Vote, tier: TierFree, quantity: 3, want: 3},
		{name: "spotlight_week", kind: SpotlightWeek, tier: TierPro, quantity: 1, want: 25},
		{name: "spotlight_month", kind: SpotlightMonth, tier: TierFree, quantity: 1, want: 75},
		{name: "poster_starter_no_discount", kind: PosterStarter, tier: TierFree, quantity: 1, want: 10},
		{name: "poster_starter_starter_discount", kind: PosterStarter, tier: TierStarter, quantity: 1, want: 9},
		{name: "poster_pro_pro_discount", kind: PosterPro, tier: TierPro, quantity: 1, want: 16},
		{name: "poster_elite_elite_discount", kind: PosterElite, tier: TierElite, quantity: 1, want: 22},
		{name: "poster_free_elite_floor", kind: PosterFree, tier: TierElite, quantity: 1, want: 3},
		{name: "boost", kind: LeaderboardBoost, tier: TierFree, quantity: 1, want: 15},
		{name: "ad_free_month", kind: AdFreeMonth, tier: TierFree, quantity: 1, want: 30},
		{name: "quantity_below_one_counts_as_one", kind: Nomination, tier: TierFree, quantity: 0, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, c.Cost(tt.kind, tt.tier, tt.quantity))
		})
	}
}

func TestCostFromBase(t *testing.T) {
	t.Parallel()

	c := New()

	assert.Equal(t, int64(0), c.CostFromBase(0, Vote, TierFree, 4), "free votes stay free")
	assert.Equal(t, int64(8), c.CostFromBase(2, Vote, TierFree, 4))
}

func TestCost_MinimumOneToken(t *testing.T) {
	t.Parallel()

	c := NewWithPrices(map[ActionKind]Price{
		PosterFree: {BaseCost: 1, Discounts: posterDiscounts},
	})

	assert.Equal(t, int64(1), c.Cost(PosterFree, TierElite, 1))
	assert.Equal(t, int64(2), c.Cost(PosterFree, TierElite, 2))
}

func TestCost_UnknownKindPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { New().Cost("TELEPORT", TierFree, 1) })
}

func TestRefund(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(60), Refund(75))
	assert.Equal(t, int64(20), Refund(25))
	assert.Equal(t, int64(7), Refund(9))
	assert.Equal(t, int64(0), Refund(1))
	assert.Equal(t, int64(0), Refund(0))
}

func TestTiers(t *testing.T) {
	t.Parallel()

	assert.True(t, TierElite.AtLeast(TierPro))
	assert.True(t, TierPro.AtLeast(TierPro))
	assert.False(t, TierStarter.AtLeast(TierPro))
	assert.Equal(t, TierPro, ParseTier(" pro "))
	assert.Equal(t, TierFree, ParseTier(""))
	assert.Equal(t, TierFree, ParseTier("PLATINUM"))
	assert.Equal(t, PosterElite, PosterAction(TierElite))
	assert.Equal(t, PosterFree, PosterAction("bogus"))
}

func TestRolesAndBonuses(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(10), SignupBonus("ATHLETE"))
	assert.Equal(t, int64(5), SignupBonus("COACH"))
	assert.True(t, Elevated("coach"))
	assert.True(t, Elevated("ADMIN"))
	assert.False(t, Elevated("ATHLETE"))
	assert.Equal(t, 7*24*time.Hour, New().Duration(SpotlightWeek))
	assert.Equal(t, "1.5", BoostMultiplier().String())
}

func writeFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pricing.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	c, err := LoadFile(writeFile(t, `
[actions.NOMINATION]
base_cost = 6

[actions.POSTER_PRO.discounts]
ELITE = "0.50"
`))
	require.NoError(t, err)

	assert.Equal(t, int64(6), c.Cost(Nomination, TierFree, 1))
	assert.Equal(t, int64(10), c.Cost(PosterPro, TierElite, 1))
	assert.Equal(t, int64(16), c.Cost(PosterPro, TierPro, 1), "untouched tiers keep their defaults")
	assert.Equal(t, int64(25), c.Cost(SpotlightWeek, TierFree, 1))
}

func TestLoadFile_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "unknown_action", body: "[actions.TELEPORT]\nbase_cost = 1\n"},
		{name: "negative_cost", body: "[actions.VOTE]\nbase_cost = -1\n"},
		{name: "unknown_tier", body: "[actions.POSTER_PRO.discounts]\nGOLD = \"0.1\"\n"},
		{name: "discount_out_of_range", body: "[actions.POSTER_PRO.discounts]\nPRO = \"1.0\"\n"},
		{name: "unknown_key", body: "[actions.VOTE]\nprice = 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadFile(writeFile(t, tt.body))
			require.Error(t, err)
		})
	}
}
