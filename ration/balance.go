/*
balance.go - Monthly balance record and entitlement cutover policy

PURPOSE:
  MonthlyBalance is the durable remaining-quantity record for one
  (household, year, month) key. It is created lazily exactly once, mutated
  only by the engine's decrement path, and never deleted: stale months are
  retained for audit and history.

INVARIANTS:
  - 0 <= remaining[c] <= entitlement[c] for every commodity c, always
  - Exactly one row per (household, year, month), enforced by the store's
    uniqueness constraint plus insert-or-ignore initialization
  - The version counter increases on every successful mutation and backs
    optimistic concurrency control in durable stores
*/
package ration

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyBalance tracks what a household may still draw in a given month.
type MonthlyBalance struct {
	HouseholdID HouseholdID
	Year        int
	Month       int // 1-12

	Entitlement Basket
	Remaining   Basket

	// Version backs optimistic concurrency in durable stores. Incremented
	// on every successful decrement, credit, or recompute.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Consumed returns entitlement minus remaining.
func (mb *MonthlyBalance) Consumed() Basket {
	return mb.Entitlement.Sub(mb.Remaining)
}

// MonthOf splits a time into the (year, month) balance key.
func MonthOf(t time.Time) (year, month int) {
	y, m, _ := t.UTC().Date()
	return y, int(m)
}

// =============================================================================
// ENTITLEMENT CUTOVER
// =============================================================================

// EntitlementCutover controls when a membership change takes effect on the
// household's balance. The business intent is ambiguous in the source
// system, so the cutover point is an explicit configuration choice.
type EntitlementCutover string

const (
	// CutoverNextMonth leaves the current month untouched; the new member
	// count applies the first time a future month is initialized. Default.
	CutoverNextMonth EntitlementCutover = "next-month"

	// CutoverImmediate recomputes the current open month: entitlement is
	// replaced, remaining is shifted by the entitlement delta and clamped
	// into [0, entitlement].
	CutoverImmediate EntitlementCutover = "immediate"
)

// Valid reports whether ec is a recognized cutover mode.
func (ec EntitlementCutover) Valid() bool {
	return ec == CutoverNextMonth || ec == CutoverImmediate
}

// ApplyRecompute derives the new remaining basket when an entitlement
// changes mid-month under CutoverImmediate. Already-consumed quantities are
// preserved: remaining' = clamp(newEntitlement - consumed, 0, newEntitlement).
func ApplyRecompute(old MonthlyBalance, newEntitlement Basket) Basket {
	consumed := old.Consumed()
	remaining := Basket{}
	for _, c := range Commodities {
		r := newEntitlement.Get(c).Sub(consumed.Get(c))
		if r.IsNegative() {
			r = decimal.Zero
		}
		remaining[c] = r
	}
	return remaining
}
