package ration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smartration/ration-engine/ration"
)

func TestBasket_CoversAndShortfalls(t *testing.T) {
	// GIVEN: 10kg rice and 1L kerosene remaining
	remaining := ration.Basket{
		ration.Rice:     dec("10"),
		ration.Kerosene: dec("1"),
	}

	// WHEN: Requesting within the balance
	assert.True(t, remaining.Covers(ration.Basket{ration.Rice: dec("10")}))

	// WHEN: Requesting past the balance on two commodities
	short := remaining.Shortfalls(ration.Basket{
		ration.Rice:  dec("12"),
		ration.Sugar: dec("0.5"),
	})

	// THEN: Each overdrawn commodity reports its missing quantity
	assert.Len(t, short, 2)
	assert.True(t, short.Get(ration.Rice).Equal(dec("2")))
	assert.True(t, short.Get(ration.Sugar).Equal(dec("0.5")))
}

func TestBasket_SubAndAddRoundTrip(t *testing.T) {
	start := ration.NewBasket(5, 5, 1, 2)
	taken := ration.Basket{ration.Rice: dec("2"), ration.Sugar: dec("1")}

	after := start.Sub(taken).Add(taken)
	for _, c := range ration.Commodities {
		assert.True(t, after.Get(c).Equal(start.Get(c)), "%s should round-trip", c)
	}
}

func TestBasket_CloneIsIndependent(t *testing.T) {
	original := ration.NewBasket(1, 1, 1, 1)
	clone := original.Clone()
	clone[ration.Rice] = dec("99")

	assert.True(t, original.Get(ration.Rice).Equal(dec("1")))
}

func TestBasket_EmptyAndNegative(t *testing.T) {
	assert.True(t, ration.Basket{}.IsEmpty())
	assert.True(t, ration.Basket{ration.Rice: dec("0")}.IsEmpty())
	assert.False(t, ration.NewBasket(1, 0, 0, 0).IsEmpty())
	assert.True(t, ration.Basket{ration.Wheat: dec("-1")}.HasNegative())
}

func TestApplyRecompute_PreservesConsumed(t *testing.T) {
	// GIVEN: A 4-member balance with 2kg rice consumed
	old := ration.MonthlyBalance{
		Entitlement: ration.NewBasket(12, 12, 2, 4),
		Remaining:   ration.NewBasket(10, 12, 2, 4),
	}

	// WHEN: The entitlement drops to 3 members worth
	remaining := ration.ApplyRecompute(old, ration.NewBasket(9, 9, 1.5, 3))

	// THEN: remaining = new entitlement - consumed, never negative
	assert.True(t, remaining.Get(ration.Rice).Equal(dec("7")))
	assert.True(t, remaining.Get(ration.Wheat).Equal(dec("9")))
}

func TestApplyRecompute_ClampsAtZero(t *testing.T) {
	// GIVEN: More already consumed than the new entitlement allows
	old := ration.MonthlyBalance{
		Entitlement: ration.NewBasket(12, 12, 2, 4),
		Remaining:   ration.NewBasket(1, 12, 2, 4),
	}

	remaining := ration.ApplyRecompute(old, ration.NewBasket(9, 9, 1.5, 3))
	assert.True(t, remaining.Get(ration.Rice).IsZero(), "rice remaining should clamp to zero, got %s", remaining.Get(ration.Rice))
}

func TestDistributionEntry_ContentHashRoundTrip(t *testing.T) {
	// GIVEN: A priced entry with its content hash set
	entry := ration.DistributionEntry{
		ID:          "dist-1",
		HouseholdID: "hh-1",
		Items:       ration.PriceItems(ration.NewBasket(2, 1, 0, 1)),
	}
	for _, item := range entry.Items {
		entry.TotalAmount = entry.TotalAmount.Add(item.Amount)
	}
	entry.ContentHash = entry.ComputeContentHash()

	// THEN: Verification passes, and any content change breaks it
	assert.True(t, entry.VerifyContent())

	tampered := entry
	tampered.TotalAmount = tampered.TotalAmount.Add(dec("1"))
	assert.False(t, tampered.VerifyContent())
}

func TestDistributionEntry_HashIgnoresChainLinkage(t *testing.T) {
	// The content hash witnesses what was distributed; where the entry sits
	// in the chain must not affect it.
	entry := ration.DistributionEntry{
		HouseholdID: "hh-1",
		Items:       ration.PriceItems(ration.NewBasket(1, 0, 0, 0)),
		TotalAmount: dec("3"),
	}
	h1 := entry.ComputeContentHash()
	entry.PreviousHash = "abc123"
	entry.ID = "different-id"
	assert.Equal(t, h1, entry.ComputeContentHash())
}
