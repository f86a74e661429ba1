package ration_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartration/ration-engine/ration"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// QUOTA TABLE TESTS
// =============================================================================

func TestCalculator_Quota_PerTier(t *testing.T) {
	// GIVEN: The standard quota table
	// WHEN: Computing quotas for each tier at various household sizes
	// THEN: Quotas scale linearly per member

	calc := ration.NewCalculator(0)

	tests := []struct {
		name     string
		card     ration.CardType
		members  int
		rice     string
		wheat    string
		sugar    string
		kerosene string
	}{
		{"lowest tier single member", ration.CardSubsidizedLowest, 1, "5", "5", "1", "2"},
		{"lowest tier four members", ration.CardSubsidizedLowest, 4, "20", "20", "4", "8"},
		{"subsidized tier single member", ration.CardSubsidized, 1, "4", "4", "1", "1.5"},
		{"subsidized tier three members", ration.CardSubsidized, 3, "12", "12", "3", "4.5"},
		{"standard tier single member", ration.CardStandard, 1, "3", "3", "0.5", "1"},
		{"standard tier five members", ration.CardStandard, 5, "15", "15", "2.5", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quota, err := calc.Quota(tt.card, tt.members)
			require.NoError(t, err)

			assert.True(t, quota.Get(ration.Rice).Equal(dec(tt.rice)), "rice: got %s", quota.Get(ration.Rice))
			assert.True(t, quota.Get(ration.Wheat).Equal(dec(tt.wheat)), "wheat: got %s", quota.Get(ration.Wheat))
			assert.True(t, quota.Get(ration.Sugar).Equal(dec(tt.sugar)), "sugar: got %s", quota.Get(ration.Sugar))
			assert.True(t, quota.Get(ration.Kerosene).Equal(dec(tt.kerosene)), "kerosene: got %s", quota.Get(ration.Kerosene))
		})
	}
}

func TestCalculator_Quota_MemberCap(t *testing.T) {
	// GIVEN: A ten-member household on the lowest tier
	// WHEN: Computing the quota with the default cap of six
	// THEN: Scaling stops at six members

	calc := ration.NewCalculator(0)

	quota, err := calc.Quota(ration.CardSubsidizedLowest, 10)
	require.NoError(t, err)

	capped, err := calc.Quota(ration.CardSubsidizedLowest, 6)
	require.NoError(t, err)

	for _, c := range ration.Commodities {
		assert.True(t, quota.Get(c).Equal(capped.Get(c)), "%s should be capped at six members", c)
	}
	assert.True(t, quota.Get(ration.Rice).Equal(dec("30")))
}

func TestCalculator_Quota_ZeroMembersTreatedAsOne(t *testing.T) {
	// GIVEN: A household record with zero members (registrant only)
	// WHEN: Computing the quota
	// THEN: It equals the single-member quota

	calc := ration.NewCalculator(0)

	quota, err := calc.Quota(ration.CardStandard, 0)
	require.NoError(t, err)
	assert.True(t, quota.Get(ration.Rice).Equal(dec("3")))
}

func TestCalculator_Quota_UnknownCardType(t *testing.T) {
	// GIVEN: An unrecognized card tier
	// WHEN: Computing the quota
	// THEN: ErrInvalidCardType with the tier named

	calc := ration.NewCalculator(0)

	_, err := calc.Quota(ration.CardType("gold"), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ration.ErrInvalidCardType)
	assert.Contains(t, err.Error(), "gold")
}

func TestCalculator_CustomCap(t *testing.T) {
	calc := ration.NewCalculator(3)
	assert.Equal(t, 3, calc.MemberCap())

	quota, err := calc.Quota(ration.CardStandard, 8)
	require.NoError(t, err)
	assert.True(t, quota.Get(ration.Rice).Equal(dec("9")), "scaling should stop at three members")
}

// =============================================================================
// PRICING TESTS
// =============================================================================

func TestBasketTotal(t *testing.T) {
	// GIVEN: 5kg rice @ 3, 4kg wheat @ 3, 1kg sugar @ 20, 2L kerosene @ 25
	// THEN: 15 + 12 + 20 + 50 = 97

	b := ration.NewBasket(5, 4, 1, 2)
	assert.True(t, ration.BasketTotal(b).Equal(dec("97")))
}

func TestPriceItems_CanonicalOrderAndZeroDrop(t *testing.T) {
	// GIVEN: A request with zero sugar and kerosene
	// WHEN: Pricing the items
	// THEN: Only rice and wheat appear, in canonical order

	items := ration.PriceItems(ration.NewBasket(2, 1, 0, 0))
	require.Len(t, items, 2)
	assert.Equal(t, ration.Rice, items[0].Commodity)
	assert.Equal(t, ration.Wheat, items[1].Commodity)
	assert.True(t, items[0].Amount.Equal(dec("6")))
	assert.Equal(t, "kg", items[0].Unit)
}
