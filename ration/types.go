/*
Package ration provides the core entitlement and distribution domain.

PURPOSE:
  This package contains the domain types and algorithms for monthly ration
  entitlements: commodities and quantities, card tiers, households, monthly
  balances, and the entitlement calculator. It has no I/O of its own; the
  store interfaces defined in store.go are implemented elsewhere.

KEY CONCEPTS IN THIS FILE (types.go):
  - Commodity: A rationed item with its unit (rice/wheat/sugar in kg,
    kerosene in liters)
  - Basket: Per-commodity quantities (entitlements, balances, requests)
  - CardType: The entitlement tier a household's ration card belongs to
  - Household: Read-only reference data owned by the registration subsystem

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Immutability: Basket operations return new baskets, never mutate
  3. Type Safety: Strong typing for household/member/reservation IDs

SEE ALSO:
  - entitlement.go: Quota calculation from card type and household size
  - balance.go: MonthlyBalance and its invariants
  - store.go: Persistence interfaces
*/
package ration

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMODITIES
// =============================================================================

type Commodity string

const (
	Rice     Commodity = "rice"
	Wheat    Commodity = "wheat"
	Sugar    Commodity = "sugar"
	Kerosene Commodity = "kerosene"
)

// Commodities lists every rationed commodity in canonical order.
// Canonical ordering matters: content hashes serialize baskets in this order.
var Commodities = []Commodity{Rice, Wheat, Sugar, Kerosene}

// Unit returns the distribution unit for the commodity.
func (c Commodity) Unit() string {
	if c == Kerosene {
		return "L"
	}
	return "kg"
}

// Valid reports whether c is a known commodity.
func (c Commodity) Valid() bool {
	for _, known := range Commodities {
		if c == known {
			return true
		}
	}
	return false
}

// =============================================================================
// BASKET - Per-commodity quantities
// =============================================================================

// Basket maps commodities to quantities. Used for entitlements, remaining
// balances, and distribution requests. A missing key means zero.
type Basket map[Commodity]decimal.Decimal

// NewBasket builds a basket from float quantities (test/config convenience).
func NewBasket(rice, wheat, sugar, kerosene float64) Basket {
	return Basket{
		Rice:     decimal.NewFromFloat(rice),
		Wheat:    decimal.NewFromFloat(wheat),
		Sugar:    decimal.NewFromFloat(sugar),
		Kerosene: decimal.NewFromFloat(kerosene),
	}
}

func (b Basket) Get(c Commodity) decimal.Decimal {
	if q, ok := b[c]; ok {
		return q
	}
	return decimal.Zero
}

// Clone returns an independent copy of the basket.
func (b Basket) Clone() Basket {
	out := make(Basket, len(b))
	for c, q := range b {
		out[c] = q
	}
	return out
}

// Scale multiplies every quantity by n.
func (b Basket) Scale(n int64) Basket {
	factor := decimal.NewFromInt(n)
	out := make(Basket, len(b))
	for c, q := range b {
		out[c] = q.Mul(factor)
	}
	return out
}

// Add returns b + other, commodity-wise.
func (b Basket) Add(other Basket) Basket {
	out := b.Clone()
	for c, q := range other {
		out[c] = out.Get(c).Add(q)
	}
	return out
}

// Sub returns b - other, commodity-wise. The caller is responsible for
// checking Covers first; Sub does not guard against negatives.
func (b Basket) Sub(other Basket) Basket {
	out := b.Clone()
	for c, q := range other {
		out[c] = out.Get(c).Sub(q)
	}
	return out
}

// Covers reports whether every requested quantity is available in b.
func (b Basket) Covers(requested Basket) bool {
	for c, q := range requested {
		if b.Get(c).LessThan(q) {
			return false
		}
	}
	return true
}

// Shortfalls returns, for each requested commodity that b cannot cover, the
// missing quantity. An empty result means the request is fully covered.
func (b Basket) Shortfalls(requested Basket) Basket {
	short := Basket{}
	for c, q := range requested {
		if have := b.Get(c); have.LessThan(q) {
			short[c] = q.Sub(have)
		}
	}
	return short
}

// IsEmpty reports whether every quantity in the basket is zero.
func (b Basket) IsEmpty() bool {
	for _, q := range b {
		if !q.IsZero() {
			return false
		}
	}
	return true
}

// HasNegative reports whether any quantity is below zero.
func (b Basket) HasNegative() bool {
	for _, q := range b {
		if q.IsNegative() {
			return true
		}
	}
	return false
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type HouseholdID string
type MemberID string
type ReservationID string
type DistributionID string

// =============================================================================
// CARD TYPES
// =============================================================================

// CardType is the entitlement tier of a household's ration card.
type CardType string

const (
	// CardSubsidizedLowest is the highest-priority tier (largest quotas).
	CardSubsidizedLowest CardType = "subsidized-lowest"
	// CardSubsidized is the intermediate tier.
	CardSubsidized CardType = "subsidized"
	// CardStandard is the base tier.
	CardStandard CardType = "standard"
)

// Valid reports whether ct is a recognized card type.
func (ct CardType) Valid() bool {
	switch ct {
	case CardSubsidizedLowest, CardSubsidized, CardStandard:
		return true
	}
	return false
}

// =============================================================================
// HOUSEHOLD - Read-only reference data
// =============================================================================

// Household is the registered beneficiary unit. Owned by the registration
// subsystem; the engine never mutates it except for member-count updates,
// which trigger an entitlement recompute per the configured cutover.
type Household struct {
	ID          HouseholdID
	CardType    CardType
	MemberCount int
	Mobile      string // notification destination, not identity
	CreatedAt   time.Time
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentUPI  PaymentMethod = "upi"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether pm is a supported payment method.
func (pm PaymentMethod) Valid() bool {
	switch pm {
	case PaymentCash, PaymentUPI, PaymentCard:
		return true
	}
	return false
}
