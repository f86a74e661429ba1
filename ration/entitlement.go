/*
entitlement.go - Monthly quota calculation

PURPOSE:
  Computes a household's per-commodity monthly entitlement from its card
  tier and member count. Pure and deterministic: the only failure mode is
  an unrecognized card type.

ALGORITHM:
  quota = baseQuota[cardType] * min(max(memberCount, 1), cap)

  The cap bounds linear scaling for implausibly large households and is a
  configurable policy choice, not a hard business rule. A member count of
  zero is treated as one: a household always has at least the registrant.
*/
package ration

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultMemberCap bounds the per-person scaling of entitlements.
const DefaultMemberCap = 6

// baseQuotas holds the fixed per-person monthly quota for each card tier.
// Quantities are kg, except kerosene (liters).
var baseQuotas = map[CardType]Basket{
	CardSubsidizedLowest: NewBasket(5, 5, 1, 2),
	CardSubsidized:       NewBasket(4, 4, 1, 1.5),
	CardStandard:         NewBasket(3, 3, 0.5, 1),
}

// Calculator derives monthly entitlements. The zero value is not usable;
// construct with NewCalculator.
type Calculator struct {
	cap    int
	quotas map[CardType]Basket
}

// NewCalculator returns a Calculator with the standard quota table and the
// given member cap. A non-positive cap falls back to DefaultMemberCap.
func NewCalculator(memberCap int) *Calculator {
	if memberCap <= 0 {
		memberCap = DefaultMemberCap
	}
	return &Calculator{cap: memberCap, quotas: baseQuotas}
}

// Quota computes the per-commodity monthly entitlement.
func (c *Calculator) Quota(cardType CardType, memberCount int) (Basket, error) {
	base, ok := c.quotas[cardType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCardType, cardType)
	}
	if memberCount < 1 {
		memberCount = 1
	}
	if memberCount > c.cap {
		memberCount = c.cap
	}
	return base.Scale(int64(memberCount)), nil
}

// MemberCap returns the configured scaling bound.
func (c *Calculator) MemberCap() int {
	return c.cap
}

// =============================================================================
// PRICING
// =============================================================================

// unitPrices is the subsidized price per unit (kg or liter).
var unitPrices = map[Commodity]decimal.Decimal{
	Rice:     decimal.NewFromInt(3),
	Wheat:    decimal.NewFromInt(3),
	Sugar:    decimal.NewFromInt(20),
	Kerosene: decimal.NewFromInt(25),
}

// UnitPrice returns the subsidized per-unit price of a commodity.
func UnitPrice(c Commodity) decimal.Decimal {
	return unitPrices[c]
}

// BasketTotal prices a basket at subsidized rates.
func BasketTotal(b Basket) decimal.Decimal {
	total := decimal.Zero
	for _, c := range Commodities {
		if q, ok := b[c]; ok {
			total = total.Add(q.Mul(UnitPrice(c)))
		}
	}
	return total
}
