/*
distribution.go - Immutable distribution entries and content hashing

PURPOSE:
  A DistributionEntry records one act of handing commodities to a household.
  Entries are immutable once appended to the ledger; corrections require a
  new offsetting entry, never an edit.

CONTENT HASH:
  The content hash is SHA-256 over a canonical serialization of the fields
  that define the distribution: household, line items (in canonical
  commodity order), total amount, and timestamp. Verification recomputes it
  from stored fields, so the serialization must be deterministic: decimals
  are rendered as strings, timestamps as Unix seconds, and items sorted by
  the fixed commodity order.
*/
package ration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one priced commodity line of a distribution.
type LineItem struct {
	Commodity Commodity       `json:"commodity"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// DistributionEntry is the immutable ledger record of one distribution.
type DistributionEntry struct {
	ID            DistributionID  `json:"id"`
	HouseholdID   HouseholdID     `json:"household_id"`
	MemberID      MemberID        `json:"member_id,omitempty"`
	ReservationID ReservationID   `json:"reservation_id,omitempty"`
	Items         []LineItem      `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Timestamp     time.Time       `json:"timestamp"`

	// ContentHash covers the fields above; PreviousHash links the entry to
	// the chain head at append time.
	ContentHash  string `json:"content_hash"`
	PreviousHash string `json:"previous_hash"`
}

// Quantities returns the entry's items as a basket.
func (e *DistributionEntry) Quantities() Basket {
	b := Basket{}
	for _, item := range e.Items {
		b[item.Commodity] = b.Get(item.Commodity).Add(item.Quantity)
	}
	return b
}

// PriceItems converts a requested basket into priced line items in canonical
// commodity order, dropping zero quantities.
func PriceItems(requested Basket) []LineItem {
	var items []LineItem
	for _, c := range Commodities {
		q := requested.Get(c)
		if q.IsZero() {
			continue
		}
		price := UnitPrice(c)
		items = append(items, LineItem{
			Commodity: c,
			Quantity:  q,
			Unit:      c.Unit(),
			UnitPrice: price,
			Amount:    q.Mul(price),
		})
	}
	return items
}

// hashedContent is the canonical serialization the content hash covers.
type hashedContent struct {
	HouseholdID HouseholdID  `json:"household_id"`
	Items       []hashedItem `json:"items"`
	TotalAmount string       `json:"total_amount"`
	Timestamp   int64        `json:"timestamp"`
}

type hashedItem struct {
	Commodity Commodity `json:"commodity"`
	Quantity  string    `json:"quantity"`
	Amount    string    `json:"amount"`
}

// ComputeContentHash returns the deterministic hash of the entry's content
// fields. The entry's ID and chain linkage are deliberately excluded: the
// hash witnesses what was distributed, not where it sits in the chain.
func (e *DistributionEntry) ComputeContentHash() string {
	content := hashedContent{
		HouseholdID: e.HouseholdID,
		TotalAmount: e.TotalAmount.String(),
		Timestamp:   e.Timestamp.UTC().Unix(),
	}
	for _, item := range e.Items {
		content.Items = append(content.Items, hashedItem{
			Commodity: item.Commodity,
			Quantity:  item.Quantity.String(),
			Amount:    item.Amount.String(),
		})
	}
	raw, _ := json.Marshal(content)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// VerifyContent recomputes the content hash and compares it to the stored
// one. A mismatch means the stored entry was mutated out-of-band.
func (e *DistributionEntry) VerifyContent() bool {
	return e.ContentHash == e.ComputeContentHash()
}
