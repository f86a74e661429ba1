/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  Request baskets arrive as commodity -> quantity JSON objects with float
  quantities; they are converted to decimals at the boundary. Response
  quantities are rendered as strings to keep exact decimal values.

VALIDATION:
  Validation is done in handlers and domain code, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ration/types.go: Domain counterparts
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/smartration/ration-engine/ration"
)

// =============================================================================
// BASKETS
// =============================================================================

// BasketDTO renders per-commodity quantities as exact decimal strings.
type BasketDTO map[string]string

func toBasketDTO(b ration.Basket) BasketDTO {
	out := BasketDTO{}
	for _, c := range ration.Commodities {
		if q, ok := b[c]; ok {
			out[string(c)] = q.String()
		}
	}
	return out
}

// parseBasket converts a request's commodity -> quantity object into a
// domain basket. Unknown commodities are kept so the domain layer can
// reject them with a precise error.
func parseBasket(items map[string]float64) ration.Basket {
	b := ration.Basket{}
	for c, q := range items {
		b[ration.Commodity(c)] = decimal.NewFromFloat(q)
	}
	return b
}

// =============================================================================
// HOUSEHOLDS
// =============================================================================

// HouseholdDTO represents a household in API responses.
type HouseholdDTO struct {
	ID          string `json:"id"`
	CardType    string `json:"card_type"`
	MemberCount int    `json:"member_count"`
	Mobile      string `json:"mobile,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func toHouseholdDTO(h ration.Household) HouseholdDTO {
	return HouseholdDTO{
		ID:          string(h.ID),
		CardType:    string(h.CardType),
		MemberCount: h.MemberCount,
		Mobile:      h.Mobile,
		CreatedAt:   h.CreatedAt.Format(time.RFC3339),
	}
}

// RegisterHouseholdRequest is the request to register a household.
type RegisterHouseholdRequest struct {
	ID          string `json:"id,omitempty"`
	CardType    string `json:"card_type"`
	MemberCount int    `json:"member_count"`
	Mobile      string `json:"mobile,omitempty"`
}

// UpdateMembersRequest changes a household's member count.
type UpdateMembersRequest struct {
	MemberCount int `json:"member_count"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO represents a monthly balance in API responses.
type BalanceDTO struct {
	HouseholdID string    `json:"household_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Entitlement BasketDTO `json:"entitlement"`
	Remaining   BasketDTO `json:"remaining"`
	Consumed    BasketDTO `json:"consumed"`
	UpdatedAt   string    `json:"updated_at"`
}

func toBalanceDTO(mb ration.MonthlyBalance) BalanceDTO {
	return BalanceDTO{
		HouseholdID: string(mb.HouseholdID),
		Year:        mb.Year,
		Month:       mb.Month,
		Entitlement: toBasketDTO(mb.Entitlement),
		Remaining:   toBasketDTO(mb.Remaining),
		Consumed:    toBasketDTO(mb.Consumed()),
		UpdatedAt:   mb.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

// DistributeRequest is the request to record a distribution.
type DistributeRequest struct {
	HouseholdID   string             `json:"household_id"`
	MemberID      string             `json:"member_id,omitempty"`
	ReservationID string             `json:"reservation_id,omitempty"`
	Items         map[string]float64 `json:"items"`
	PaymentMethod string             `json:"payment_method,omitempty"`
}

// LineItemDTO is one priced commodity line.
type LineItemDTO struct {
	Commodity string `json:"commodity"`
	Quantity  string `json:"quantity"`
	Unit      string `json:"unit"`
	UnitPrice string `json:"unit_price"`
	Amount    string `json:"amount"`
}

// DistributionDTO represents a ledger entry in API responses.
type DistributionDTO struct {
	ID            string        `json:"id"`
	HouseholdID   string        `json:"household_id"`
	MemberID      string        `json:"member_id,omitempty"`
	ReservationID string        `json:"reservation_id,omitempty"`
	Items         []LineItemDTO `json:"items"`
	TotalAmount   string        `json:"total_amount"`
	PaymentMethod string        `json:"payment_method"`
	Timestamp     string        `json:"timestamp"`
	ContentHash   string        `json:"content_hash"`
	PreviousHash  string        `json:"previous_hash"`
}

func toDistributionDTO(e ration.DistributionEntry) DistributionDTO {
	dto := DistributionDTO{
		ID:            string(e.ID),
		HouseholdID:   string(e.HouseholdID),
		MemberID:      string(e.MemberID),
		ReservationID: string(e.ReservationID),
		TotalAmount:   e.TotalAmount.String(),
		PaymentMethod: string(e.PaymentMethod),
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339),
		ContentHash:   e.ContentHash,
		PreviousHash:  e.PreviousHash,
	}
	for _, item := range e.Items {
		dto.Items = append(dto.Items, LineItemDTO{
			Commodity: string(item.Commodity),
			Quantity:  item.Quantity.String(),
			Unit:      item.Unit,
			UnitPrice: item.UnitPrice.String(),
			Amount:    item.Amount.String(),
		})
	}
	return dto
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// ReserveRequest is the request to book a collection slot.
type ReserveRequest struct {
	HouseholdID string             `json:"household_id"`
	MemberID    string             `json:"member_id,omitempty"`
	ShopID      string             `json:"shop_id,omitempty"`
	Items       map[string]float64 `json:"items"`
	TargetDate  string             `json:"target_date"` // YYYY-MM-DD
}

// ReservationDTO represents a booking in API responses.
type ReservationDTO struct {
	ID             string    `json:"id"`
	HouseholdID    string    `json:"household_id"`
	MemberID       string    `json:"member_id,omitempty"`
	ShopID         string    `json:"shop_id,omitempty"`
	Items          BasketDTO `json:"items"`
	TargetDate     string    `json:"target_date"`
	Status         string    `json:"status"`
	DistributionID string    `json:"distribution_id,omitempty"`
	CreatedAt      string    `json:"created_at"`
}

func toReservationDTO(r ration.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:             string(r.ID),
		HouseholdID:    string(r.HouseholdID),
		MemberID:       string(r.MemberID),
		ShopID:         r.ShopID,
		Items:          toBasketDTO(r.Items),
		TargetDate:     r.TargetDate.UTC().Format("2006-01-02"),
		Status:         string(r.Status),
		DistributionID: string(r.DistributionID),
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// CHAIN
// =============================================================================

// BlockDTO summarizes a chain block without its full entries.
type BlockDTO struct {
	Index        int64  `json:"index"`
	Timestamp    string `json:"timestamp"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	Nonce        int64  `json:"nonce"`
	EntryCount   int    `json:"entry_count"`
}

// ChainValidationDTO reports a full-chain walk.
type ChainValidationDTO struct {
	Valid  bool   `json:"valid"`
	Blocks int64  `json:"blocks"`
	Error  string `json:"error,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// Shortfalls is set on insufficient-balance rejections so the client
	// can show what is missing per commodity.
	Shortfalls BasketDTO `json:"shortfalls,omitempty"`
}
