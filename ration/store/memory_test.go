package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/smartration/ration-engine/ration"
	"github.com/smartration/ration-engine/ration/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestStore(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory(ration.NewCalculator(0))
	err := m.SaveHousehold(context.Background(), ration.Household{
		ID:          "hh-1",
		CardType:    ration.CardSubsidized,
		MemberCount: 2,
	})
	require.NoError(t, err)
	return m
}

// =============================================================================
// BALANCE INITIALIZATION
// =============================================================================

func TestMemory_GetOrInit_CreatesFromEntitlement(t *testing.T) {
	// GIVEN: A 2-member subsidized household with no balance row yet
	// WHEN: First touching March 2026
	// THEN: Entitlement and remaining both equal the computed quota

	m := newTestStore(t)
	ctx := context.Background()

	mb, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)

	assert.True(t, mb.Entitlement.Get(ration.Rice).Equal(dec("8")))
	assert.True(t, mb.Remaining.Get(ration.Rice).Equal(dec("8")))
	assert.Equal(t, int64(1), mb.Version)
}

func TestMemory_GetOrInit_Idempotent(t *testing.T) {
	// GIVEN: A balance row already decremented
	// WHEN: GetOrInit runs again for the same key
	// THEN: The existing row is returned, not a fresh one

	m := newTestStore(t)
	ctx := context.Background()

	mb, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)
	_, err = m.Decrement(ctx, "hh-1", 2026, 3, ration.Basket{ration.Rice: dec("3")}, mb.Version)
	require.NoError(t, err)

	again, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)
	assert.True(t, again.Remaining.Get(ration.Rice).Equal(dec("5")))
	assert.Equal(t, int64(2), again.Version)
}

func TestMemory_GetOrInit_ConcurrentFirstTouch(t *testing.T) {
	// GIVEN: No balance row for the month
	// WHEN: Many goroutines first-touch the same key
	// THEN: All observe the same single row

	m := newTestStore(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			mb, err := m.GetOrInit(ctx, "hh-1", 2026, 4)
			if err != nil {
				return err
			}
			if !mb.Remaining.Get(ration.Rice).Equal(dec("8")) {
				t.Errorf("unexpected remaining %s", mb.Remaining.Get(ration.Rice))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestMemory_GetOrInit_UnknownHousehold(t *testing.T) {
	m := newTestStore(t)
	_, err := m.GetOrInit(context.Background(), "nope", 2026, 3)
	assert.ErrorIs(t, err, ration.ErrHouseholdNotFound)
}

// =============================================================================
// DECREMENT SEMANTICS
// =============================================================================

func TestMemory_Decrement_AllOrNothing(t *testing.T) {
	// GIVEN: 8kg rice and 2kg sugar remaining
	// WHEN: Requesting 5kg rice and 3kg sugar (sugar overdrawn)
	// THEN: Nothing changes, and the error names the sugar shortfall only

	m := newTestStore(t)
	ctx := context.Background()

	mb, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)

	_, err = m.Decrement(ctx, "hh-1", 2026, 3, ration.Basket{
		ration.Rice:  dec("5"),
		ration.Sugar: dec("3"),
	}, mb.Version)

	var short *ration.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.ErrorIs(t, err, ration.ErrInsufficientBalance)
	assert.Len(t, short.Shortfalls, 1)
	assert.True(t, short.Shortfalls.Get(ration.Sugar).Equal(dec("1")))

	after, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)
	assert.True(t, after.Remaining.Get(ration.Rice).Equal(dec("8")), "rice must be untouched")
	assert.Equal(t, mb.Version, after.Version, "version must not advance on rejection")
}

func TestMemory_Decrement_StaleVersion(t *testing.T) {
	// GIVEN: A row advanced past the observed version
	// WHEN: Decrementing with the stale version
	// THEN: ErrConcurrentModification

	m := newTestStore(t)
	ctx := context.Background()

	mb, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)
	_, err = m.Decrement(ctx, "hh-1", 2026, 3, ration.Basket{ration.Rice: dec("1")}, mb.Version)
	require.NoError(t, err)

	_, err = m.Decrement(ctx, "hh-1", 2026, 3, ration.Basket{ration.Rice: dec("1")}, mb.Version)
	assert.ErrorIs(t, err, ration.ErrConcurrentModification)
}

func TestMemory_Decrement_ExactToZero(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	mb, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)

	updated, err := m.Decrement(ctx, "hh-1", 2026, 3, mb.Remaining.Clone(), mb.Version)
	require.NoError(t, err)
	for _, c := range ration.Commodities {
		assert.True(t, updated.Remaining.Get(c).IsZero(), "%s should be exactly zero", c)
	}
}

// =============================================================================
// CREDIT AND RECOMPUTE
// =============================================================================

func TestMemory_Credit_ClampsToEntitlement(t *testing.T) {
	// GIVEN: 1kg rice consumed
	// WHEN: Crediting 5kg back
	// THEN: Remaining clamps at the entitlement

	m := newTestStore(t)
	ctx := context.Background()

	mb, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)
	_, err = m.Decrement(ctx, "hh-1", 2026, 3, ration.Basket{ration.Rice: dec("1")}, mb.Version)
	require.NoError(t, err)

	restored, err := m.Credit(ctx, "hh-1", 2026, 3, ration.Basket{ration.Rice: dec("5")})
	require.NoError(t, err)
	assert.True(t, restored.Remaining.Get(ration.Rice).Equal(dec("8")))
}

func TestMemory_Recompute_MissingRowIsNoop(t *testing.T) {
	m := newTestStore(t)

	mb, err := m.Recompute(context.Background(), "hh-1", 2030, 1, ration.NewBasket(9, 9, 1.5, 3))
	require.NoError(t, err)
	assert.Empty(t, mb.HouseholdID)
}

func TestMemory_Recompute_ReplacesEntitlement(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	mb, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)
	_, err = m.Decrement(ctx, "hh-1", 2026, 3, ration.Basket{ration.Rice: dec("2")}, mb.Version)
	require.NoError(t, err)

	updated, err := m.Recompute(ctx, "hh-1", 2026, 3, ration.NewBasket(12, 12, 3, 4.5))
	require.NoError(t, err)
	assert.True(t, updated.Entitlement.Get(ration.Rice).Equal(dec("12")))
	assert.True(t, updated.Remaining.Get(ration.Rice).Equal(dec("10")), "consumed 2kg must stay consumed")
}
