package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	r := DefaultRules()
	cases := []struct {
		spend int64
		tier  Tier
		rate  int64
	}{
		{0, TierBronze, 2},
		{4999, TierBronze, 2},
		{5000, TierSilver, 4},
		{5200, TierSilver, 4},
		{14999, TierSilver, 4},
		{15000, TierGold, 6},
		{90000, TierGold, 6},
	}
	for _, tc := range cases {
		got := r.TierFor(decimal.NewFromInt(tc.spend))
		require.Equal(t, tc.tier, got.Tier, "spend %d", tc.spend)
		require.Equal(t, tc.rate, got.EarnRate, "spend %d", tc.spend)
	}
}

func TestCoinsEarned(t *testing.T) {
	require.EqualValues(t, 28, CoinsEarned(decimal.NewFromInt(700), 4))
	require.EqualValues(t, 14, CoinsEarned(decimal.NewFromInt(700), 2))
	require.EqualValues(t, 0, CoinsEarned(decimal.NewFromInt(49), 2))
	require.EqualValues(t, 1, CoinsEarned(decimal.RequireFromString("99.99"), 2))
	require.EqualValues(t, 0, CoinsEarned(decimal.Zero, 6))
}

func TestMaxRedeemable(t *testing.T) {
	r := DefaultRules()
	require.EqualValues(t, 500, r.MaxRedeemable(decimal.NewFromInt(1000)))
	require.EqualValues(t, 61, r.MaxRedeemable(decimal.RequireFromString("123.45")))
	require.EqualValues(t, 0, r.MaxRedeemable(decimal.Zero))

	r.CoinValue = decimal.NewFromInt(2)
	require.EqualValues(t, 250, r.MaxRedeemable(decimal.NewFromInt(1000)))
	require.Equal(t, "20", r.CoinsToCurrency(10).String())
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(`
tiers:
  - tier: BRONZE
    min_spend: 0
    earn_rate: 1
  - tier: GOLD
    min_spend: 20000
    earn_rate: 8
  - tier: SILVER
    min_spend: 8000
    earn_rate: 3
min_redeem: 25
coupon_validity_days: 14
checkout_cap_percent: 30
`))
	require.NoError(t, err)
	require.Len(t, rules.Tiers, 3)
	require.Equal(t, TierGold, rules.Tiers[0].Tier)
	require.Equal(t, TierSilver, rules.Tiers[1].Tier)
	require.Equal(t, TierBronze, rules.Tiers[2].Tier)
	require.EqualValues(t, 25, rules.MinRedeem)
	require.Equal(t, 14*24*time.Hour, rules.CouponValidity)
	require.EqualValues(t, 30, rules.CheckoutCapPercent)
	require.True(t, rules.CoinValue.Equal(decimal.NewFromInt(1)), "coin value keeps its default")
	require.Equal(t, TierSilver, rules.TierFor(decimal.NewFromInt(8000)).Tier)
}

func TestParseRulesRejectsBadInput(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown tier": "tiers:\n  - tier: PLATINUM\n    min_spend: 1\n    earn_rate: 1\n",
		"negative":     "tiers:\n  - tier: GOLD\n    min_spend: -1\n    earn_rate: 1\n",
		"coin value":   "coin_value: 0\n",
		"cap":          "checkout_cap_percent: 120\n",
		"yaml":         "tiers: [",
		"no base tier": "tiers:\n  - tier: GOLD\n    min_spend: 15000\n    earn_rate: 6\n  - tier: SILVER\n    min_spend: 5000\n    earn_rate: 4\n",
	} {
		_, err := ParseRules([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestLoadRulesDefaults(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	require.EqualValues(t, 10, rules.MinRedeem)

	_, err = LoadRules("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestExampleRulesFileMatchesDefaults(t *testing.T) {
	rules, err := LoadRules("../../loyalty.example.yaml")
	require.NoError(t, err)
	def := DefaultRules()
	require.Len(t, rules.Tiers, len(def.Tiers))
	for i := range def.Tiers {
		require.Equal(t, def.Tiers[i].Tier, rules.Tiers[i].Tier)
		require.True(t, def.Tiers[i].MinSpend.Equal(rules.Tiers[i].MinSpend))
		require.Equal(t, def.Tiers[i].EarnRate, rules.Tiers[i].EarnRate)
	}
	require.Equal(t, def.MinRedeem, rules.MinRedeem)
	require.True(t, def.CoinValue.Equal(rules.CoinValue))
	require.Equal(t, def.CouponValidity, rules.CouponValidity)
	require.Equal(t, def.CheckoutCapPercent, rules.CheckoutCapPercent)
}

func TestParseRulesRequiresBaseTier(t *testing.T) {
	_, err := ParseRules([]byte("tiers:\n  - tier: SILVER\n    min_spend: 5000\n    earn_rate: 4\n  - tier: BRONZE\n    min_spend: 100\n    earn_rate: 2\n"))
	require.ErrorContains(t, err, "lowest tier BRONZE must start at min_spend 0")
}
