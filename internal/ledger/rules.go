package ledger

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type TierRule struct {
	Tier     Tier
	MinSpend decimal.Decimal
	// percent of the order total paid back in coins
	EarnRate int64
}

type Rules struct {
	// sorted by MinSpend, highest first
	Tiers []TierRule
	// smallest amount accepted by RedeemToCoupon
	MinRedeem int64
	// currency units per coin
	CoinValue      decimal.Decimal
	CouponValidity time.Duration
	// share of the subtotal payable in coins at checkout
	CheckoutCapPercent int64
}

func DefaultRules() Rules {
	return Rules{
		Tiers: []TierRule{
			{Tier: TierGold, MinSpend: decimal.NewFromInt(15000), EarnRate: 6},
			{Tier: TierSilver, MinSpend: decimal.NewFromInt(5000), EarnRate: 4},
			{Tier: TierBronze, MinSpend: decimal.Zero, EarnRate: 2},
		},
		MinRedeem:          10,
		CoinValue:          decimal.NewFromInt(1),
		CouponValidity:     30 * 24 * time.Hour,
		CheckoutCapPercent: 50,
	}
}

// TierFor picks the tier for a cumulative spend.
func (r Rules) TierFor(totalSpent decimal.Decimal) TierRule {
	for _, t := range r.Tiers {
		if totalSpent.GreaterThanOrEqual(t.MinSpend) {
			return t
		}
	}
	return TierRule{Tier: TierBronze}
}

// CoinsEarned = floor(total * rate / 100).
func CoinsEarned(total decimal.Decimal, rate int64) int64 {
	if !total.IsPositive() || rate <= 0 {
		return 0
	}
	return total.Mul(decimal.NewFromInt(rate)).Div(decimal.NewFromInt(100)).Floor().IntPart()
}

// MaxRedeemable is the coin cap for a checkout of subtotal.
func (r Rules) MaxRedeemable(subtotal decimal.Decimal) int64 {
	if !subtotal.IsPositive() || r.CheckoutCapPercent <= 0 {
		return 0
	}
	capped := subtotal.Mul(decimal.NewFromInt(r.CheckoutCapPercent)).Div(decimal.NewFromInt(100)).Floor()
	if r.CoinValue.IsPositive() && !r.CoinValue.Equal(decimal.NewFromInt(1)) {
		capped = capped.Div(r.CoinValue).Floor()
	}
	return capped.IntPart()
}

// CoinsToCurrency converts a coin amount to its currency value.
func (r Rules) CoinsToCurrency(coins int64) decimal.Decimal {
	return r.CoinValue.Mul(decimal.NewFromInt(coins))
}

type rulesFile struct {
	Tiers []struct {
		Tier     string  `yaml:"tier"`
		MinSpend float64 `yaml:"min_spend"`
		EarnRate int64   `yaml:"earn_rate"`
	} `yaml:"tiers"`
	MinRedeem          *int64   `yaml:"min_redeem"`
	CoinValue          *float64 `yaml:"coin_value"`
	CouponValidityDays *int     `yaml:"coupon_validity_days"`
	CheckoutCapPercent *int64   `yaml:"checkout_cap_percent"`
}

// LoadRules reads a YAML rules file over DefaultRules. An empty path returns
// the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read loyalty rules: %w", err)
	}
	return ParseRules(b)
}

func ParseRules(b []byte) (Rules, error) {
	rules := DefaultRules()
	var f rulesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return rules, fmt.Errorf("parse loyalty rules: %w", err)
	}
	if len(f.Tiers) > 0 {
		tiers := make([]TierRule, 0, len(f.Tiers))
		for _, t := range f.Tiers {
			tier := Tier(t.Tier)
			switch tier {
			case TierBronze, TierSilver, TierGold:
			default:
				return rules, fmt.Errorf("parse loyalty rules: unknown tier %q", t.Tier)
			}
			if t.EarnRate < 0 || t.MinSpend < 0 {
				return rules, fmt.Errorf("parse loyalty rules: negative value for tier %s", t.Tier)
			}
			tiers = append(tiers, TierRule{Tier: tier, MinSpend: decimal.NewFromFloat(t.MinSpend), EarnRate: t.EarnRate})
		}
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinSpend.GreaterThan(tiers[j].MinSpend) })
		// every spend must land in a tier with an earn rate
		if lowest := tiers[len(tiers)-1]; !lowest.MinSpend.IsZero() {
			return rules, fmt.Errorf("parse loyalty rules: lowest tier %s must start at min_spend 0", lowest.Tier)
		}
		rules.Tiers = tiers
	}
	if f.MinRedeem != nil {
		rules.MinRedeem = *f.MinRedeem
	}
	if f.CoinValue != nil {
		if *f.CoinValue <= 0 {
			return rules, fmt.Errorf("parse loyalty rules: coin_value must be positive")
		}
		rules.CoinValue = decimal.NewFromFloat(*f.CoinValue)
	}
	if f.CouponValidityDays != nil {
		rules.CouponValidity = time.Duration(*f.CouponValidityDays) * 24 * time.Hour
	}
	if f.CheckoutCapPercent != nil {
		if *f.CheckoutCapPercent < 0 || *f.CheckoutCapPercent > 100 {
			return rules, fmt.Errorf("parse loyalty rules: checkout_cap_percent out of range")
		}
		rules.CheckoutCapPercent = *f.CheckoutCapPercent
	}
	return rules, nil
}
