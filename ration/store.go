/*
store.go - Persistence interfaces for the ration engine

PURPOSE:
  Defines the interface between domain logic and the database. Stores are
  injected into the engine via constructors, so the engine is testable with
  the in-memory implementations and runs in production on SQLite.

KEY INTERFACES:
  HouseholdStore:   Read-mostly household registry
  BalanceStore:     Monthly balances with atomic conditional decrement
  ReservationStore: Advisory booking records

CONCURRENCY CONTRACT:
  GetOrInit must be safe under concurrent first-touch: two simultaneous
  callers for the same (household, year, month) key must observe exactly one
  row. Implementations resolve this with a uniqueness constraint plus
  insert-or-ignore followed by a re-read.

  Decrement and Credit are optimistic: they take the version observed by the
  caller and fail with ErrConcurrentModification when the row moved. The
  engine retries a bounded number of times.

IMPLEMENTATIONS:
  - ration/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go: Durable SQLite store
*/
package ration

import (
	"context"
	"time"
)

// =============================================================================
// HOUSEHOLD STORE
// =============================================================================

// HouseholdStore is the registry view the engine needs. Registration data
// itself is owned elsewhere; the engine treats records as reference data.
type HouseholdStore interface {
	// GetHousehold returns the household or ErrHouseholdNotFound.
	GetHousehold(ctx context.Context, id HouseholdID) (Household, error)

	// SaveHousehold inserts or updates a household record.
	SaveHousehold(ctx context.Context, h Household) error

	// UpdateMemberCount changes a household's size and returns the updated
	// record. Entitlement recompute is the caller's concern.
	UpdateMemberCount(ctx context.Context, id HouseholdID, members int) (Household, error)
}

// =============================================================================
// BALANCE STORE
// =============================================================================

// BalanceStore owns the non-negativity invariant of monthly balances.
type BalanceStore interface {
	// GetOrInit returns the balance row for the key, creating it from the
	// entitlement calculator exactly once if absent. Idempotent under
	// concurrent first-touch.
	GetOrInit(ctx context.Context, id HouseholdID, year, month int) (MonthlyBalance, error)

	// Decrement atomically checks remaining >= requested for every commodity
	// and subtracts all quantities, or changes nothing. Returns the updated
	// balance, an *InsufficientBalanceError, or ErrConcurrentModification
	// when the row's version no longer matches.
	Decrement(ctx context.Context, id HouseholdID, year, month int, requested Basket, version int64) (MonthlyBalance, error)

	// Credit adds quantities back, clamped to the entitlement. Used by the
	// engine to compensate a decrement whose ledger append failed.
	Credit(ctx context.Context, id HouseholdID, year, month int, quantities Basket) (MonthlyBalance, error)

	// Recompute replaces the entitlement of an existing row and adjusts
	// remaining per ApplyRecompute. No-op (nil error, zero balance) if the
	// row does not exist yet.
	Recompute(ctx context.Context, id HouseholdID, year, month int, entitlement Basket) (MonthlyBalance, error)
}

// CurrentBalance is the convenience accessor for the caller's present month.
func CurrentBalance(ctx context.Context, s BalanceStore, id HouseholdID, now time.Time) (MonthlyBalance, error) {
	year, month := MonthOf(now)
	return s.GetOrInit(ctx, id, year, month)
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

type ReservationStore interface {
	// SaveReservation inserts or updates a reservation record.
	SaveReservation(ctx context.Context, r Reservation) error

	// GetReservation returns the reservation or ErrReservationNotFound.
	GetReservation(ctx context.Context, id ReservationID) (Reservation, error)

	// ListHeldBefore returns held reservations whose target date is strictly
	// before the cutoff. Used by the expiry sweep.
	ListHeldBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error)

	// ListReservations returns a household's reservations, newest first.
	ListReservations(ctx context.Context, id HouseholdID) ([]Reservation, error)
}
