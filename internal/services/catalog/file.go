package catalog

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

type fileFormat struct {
	Actions map[string]filePrice `toml:"actions"`
}

type filePrice struct {
	BaseCost  *int64            `toml:"base_cost"`
	Discounts map[string]string `toml:"discounts"`
}

// LoadFile overlays a TOML price file onto the defaults:
//
//	[actions.NOMINATION]
//	base_cost = 6
//
//	[actions.POSTER_PRO.discounts]
//	ELITE = "0.40"
//
// Only known action kinds and tiers are accepted.
func LoadFile(path string) (*Catalog, error) {
	var ff fileFormat

	meta, err := toml.DecodeFile(path, &ff)
	if err != nil {
		return nil, fmt.Errorf("decode pricing file: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("pricing file: unknown keys %v", undecoded)
	}

	prices := DefaultPrices()

	for name, fp := range ff.Actions {
		kind := ActionKind(name)

		p, ok := prices[kind]
		if !ok {
			return nil, fmt.Errorf("pricing file: unknown action %q", name)
		}

		if fp.BaseCost != nil {
			if *fp.BaseCost < 0 {
				return nil, fmt.Errorf("pricing file: %s base_cost must be >= 0", name)
			}

			p.BaseCost = *fp.BaseCost
		}

		if len(fp.Discounts) > 0 {
			discounts := make(map[Tier]decimal.Decimal, len(p.Discounts)+len(fp.Discounts))
			for t, d := range p.Discounts {
				discounts[t] = d
			}

			for t, raw := range fp.Discounts {
				tier := Tier(t)
				if !tier.Valid() {
					return nil, fmt.Errorf("pricing file: %s unknown tier %q", name, t)
				}

				d, err := decimal.NewFromString(raw)
				if err != nil {
					return nil, fmt.Errorf("pricing file: %s discount %s: %w", name, t, err)
				}

				if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
					return nil, fmt.Errorf("pricing file: %s discount %s must be in [0,1)", name, t)
				}

				discounts[tier] = d
			}

			p.Discounts = discounts
		}

		prices[kind] = p
	}

	return NewWithPrices(prices), nil
}
