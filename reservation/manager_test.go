package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartration/ration-engine/notify"
	"github.com/smartration/ration-engine/ration"
	"github.com/smartration/ration-engine/ration/store"
	"github.com/smartration/ration-engine/reservation"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestManager(t *testing.T) (*reservation.Manager, *store.Memory) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	m := store.NewMemory(ration.NewCalculator(0))
	manager := reservation.NewManager(m, m, m, notify.NewLogDispatcher(log), log)

	err := m.SaveHousehold(context.Background(), ration.Household{
		ID:          "hh-1",
		CardType:    ration.CardSubsidized,
		MemberCount: 2,
	})
	require.NoError(t, err)
	return manager, m
}

func tomorrow() time.Time {
	return time.Now().UTC().Add(24 * time.Hour)
}

// =============================================================================
// BOOKING
// =============================================================================

func TestManager_Reserve_CreatesHeldBooking(t *testing.T) {
	manager, m := newTestManager(t)
	ctx := context.Background()

	res, err := manager.Reserve(ctx, reservation.ReserveRequest{
		HouseholdID: "hh-1",
		ShopID:      "shop-7",
		Items:       ration.Basket{ration.Rice: dec("4")},
		TargetDate:  tomorrow(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, ration.ReservationHeld, res.Status)

	// Advisory only: the balance is untouched.
	year, month := ration.MonthOf(res.TargetDate)
	mb, err := m.GetOrInit(ctx, "hh-1", year, month)
	require.NoError(t, err)
	assert.True(t, mb.Remaining.Get(ration.Rice).Equal(dec("8")))
}

func TestManager_Reserve_AdvisoryBalanceCheck(t *testing.T) {
	// GIVEN: An 8kg rice entitlement
	// WHEN: Booking 9kg
	// THEN: Rejected with the shortfall, like a real distribution would be

	manager, _ := newTestManager(t)

	_, err := manager.Reserve(context.Background(), reservation.ReserveRequest{
		HouseholdID: "hh-1",
		Items:       ration.Basket{ration.Rice: dec("9")},
		TargetDate:  tomorrow(),
	})

	var short *ration.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.True(t, short.Shortfalls.Get(ration.Rice).Equal(dec("1")))
}

func TestManager_Reserve_RejectsBadBaskets(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Reserve(ctx, reservation.ReserveRequest{
		HouseholdID: "hh-1",
		Items:       ration.Basket{},
		TargetDate:  tomorrow(),
	})
	assert.ErrorIs(t, err, ration.ErrInvalidQuantity)

	_, err = manager.Reserve(ctx, reservation.ReserveRequest{
		HouseholdID: "hh-1",
		Items:       ration.Basket{"salt": dec("1")},
		TargetDate:  tomorrow(),
	})
	assert.ErrorIs(t, err, ration.ErrInvalidQuantity)
}

func TestManager_Reserve_UnknownHousehold(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Reserve(context.Background(), reservation.ReserveRequest{
		HouseholdID: "nope",
		Items:       ration.Basket{ration.Rice: dec("1")},
		TargetDate:  tomorrow(),
	})
	assert.ErrorIs(t, err, ration.ErrHouseholdNotFound)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestManager_FulfillThenCancelRejected(t *testing.T) {
	// GIVEN: A fulfilled reservation
	// WHEN: Cancelling it
	// THEN: ErrReservationClosed; terminal states are dead ends

	manager, _ := newTestManager(t)
	ctx := context.Background()

	res, err := manager.Reserve(ctx, reservation.ReserveRequest{
		HouseholdID: "hh-1",
		Items:       ration.Basket{ration.Rice: dec("2")},
		TargetDate:  tomorrow(),
	})
	require.NoError(t, err)

	fulfilled, err := manager.Fulfill(ctx, res.ID, "dist-1")
	require.NoError(t, err)
	assert.Equal(t, ration.ReservationFulfilled, fulfilled.Status)
	assert.Equal(t, ration.DistributionID("dist-1"), fulfilled.DistributionID)

	_, err = manager.Cancel(ctx, res.ID)
	assert.ErrorIs(t, err, ration.ErrReservationClosed)

	_, err = manager.Fulfill(ctx, res.ID, "dist-2")
	assert.ErrorIs(t, err, ration.ErrReservationClosed)
}

func TestManager_Cancel(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	res, err := manager.Reserve(ctx, reservation.ReserveRequest{
		HouseholdID: "hh-1",
		Items:       ration.Basket{ration.Wheat: dec("1")},
		TargetDate:  tomorrow(),
	})
	require.NoError(t, err)

	cancelled, err := manager.Cancel(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ration.ReservationCancelled, cancelled.Status)
}

// =============================================================================
// EXPIRY SWEEP
// =============================================================================

func TestManager_ExpireDue(t *testing.T) {
	// GIVEN: Two held bookings, one past its target date
	// WHEN: The sweep runs
	// THEN: Only the lapsed one expires, and balances stay untouched

	manager, m := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	manager.SetClock(func() time.Time { return base })

	past, err := manager.Reserve(ctx, reservation.ReserveRequest{
		HouseholdID: "hh-1",
		Items:       ration.Basket{ration.Rice: dec("2")},
		TargetDate:  base.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	future, err := manager.Reserve(ctx, reservation.ReserveRequest{
		HouseholdID: "hh-1",
		Items:       ration.Basket{ration.Rice: dec("2")},
		TargetDate:  base.Add(10 * 24 * time.Hour),
	})
	require.NoError(t, err)

	expired, err := manager.ExpireDue(ctx, base.Add(3*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	r1, err := manager.Get(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, ration.ReservationExpired, r1.Status)

	r2, err := manager.Get(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, ration.ReservationHeld, r2.Status)

	// Expiry is pure bookkeeping; nothing to restore.
	mb, err := m.GetOrInit(ctx, "hh-1", 2026, 3)
	require.NoError(t, err)
	assert.True(t, mb.Remaining.Get(ration.Rice).Equal(dec("8")))
}

func TestManager_ExpiredCannotBeFulfilled(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	manager.SetClock(func() time.Time { return base })

	res, err := manager.Reserve(ctx, reservation.ReserveRequest{
		HouseholdID: "hh-1",
		Items:       ration.Basket{ration.Rice: dec("2")},
		TargetDate:  base.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	_, err = manager.ExpireDue(ctx, base.Add(48*time.Hour))
	require.NoError(t, err)

	_, err = manager.Fulfill(ctx, res.ID, "dist-1")
	assert.ErrorIs(t, err, ration.ErrReservationClosed)
}
