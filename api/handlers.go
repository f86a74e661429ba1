/*
handlers.go - HTTP API handlers for the ration distribution engine

PURPOSE:
  Exposes the distribution engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Households:
    POST   /api/households                     Register household
    GET    /api/households/{id}                Get household
    PUT    /api/households/{id}/members        Update member count
    GET    /api/households/{id}/balance        Current month balance
    GET    /api/households/{id}/distributions  Distribution history
    GET    /api/households/{id}/reservations   Booking history

  Distributions:
    POST   /api/distributions                  Record a distribution
    GET    /api/distributions/{id}             Get ledger entry
    GET    /api/distributions/{id}/verify      Verify entry and chain

  Reservations:
    POST   /api/reservations                   Book a collection slot
    GET    /api/reservations/{id}              Get booking
    POST   /api/reservations/{id}/cancel       Cancel booking

  Chain:
    GET    /api/chain/head                     Current head block
    GET    /api/chain/validate                 Full chain walk

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Insufficient balance, closed reservation
  - 503: Concurrency retries exhausted (client should retry)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/smartration/ration-engine/engine"
	"github.com/smartration/ration-engine/ration"
	"github.com/smartration/ration-engine/reservation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine       *engine.Engine
	Reservations *reservation.Manager
	Log          *logrus.Logger
}

// NewHandler creates a new handler.
func NewHandler(eng *engine.Engine, reservations *reservation.Manager, log *logrus.Logger) *Handler {
	return &Handler{Engine: eng, Reservations: reservations, Log: log}
}

// =============================================================================
// HOUSEHOLD HANDLERS
// =============================================================================

// RegisterHousehold creates a household record.
// POST /api/households
func (h *Handler) RegisterHousehold(w http.ResponseWriter, r *http.Request) {
	var req RegisterHouseholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	household, err := h.Engine.RegisterHousehold(r.Context(), ration.Household{
		ID:          ration.HouseholdID(req.ID),
		CardType:    ration.CardType(req.CardType),
		MemberCount: req.MemberCount,
		Mobile:      req.Mobile,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to register household", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHouseholdDTO(household))
}

// GetHousehold returns a single household.
// GET /api/households/{id}
func (h *Handler) GetHousehold(w http.ResponseWriter, r *http.Request) {
	id := ration.HouseholdID(chi.URLParam(r, "id"))

	household, err := h.Engine.GetHousehold(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get household", err)
		return
	}
	writeJSON(w, http.StatusOK, toHouseholdDTO(household))
}

// UpdateMembers changes a household's member count and applies the
// configured entitlement cutover.
// PUT /api/households/{id}/members
func (h *Handler) UpdateMembers(w http.ResponseWriter, r *http.Request) {
	id := ration.HouseholdID(chi.URLParam(r, "id"))

	var req UpdateMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	household, err := h.Engine.UpdateMembers(r.Context(), id, req.MemberCount)
	if err != nil {
		h.writeDomainError(w, "Failed to update member count", err)
		return
	}
	writeJSON(w, http.StatusOK, toHouseholdDTO(household))
}

// GetBalance returns the household's balance for the current month, or for
// an explicit ?year=&month= pair.
// GET /api/households/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ration.HouseholdID(chi.URLParam(r, "id"))

	var (
		mb  ration.MonthlyBalance
		err error
	)
	yearStr, monthStr := r.URL.Query().Get("year"), r.URL.Query().Get("month")
	if yearStr != "" || monthStr != "" {
		year, yErr := strconv.Atoi(yearStr)
		month, mErr := strconv.Atoi(monthStr)
		if yErr != nil || mErr != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "Invalid year/month query parameters", nil)
			return
		}
		mb, err = h.Engine.BalanceFor(r.Context(), id, year, month)
	} else {
		mb, err = h.Engine.Balance(r.Context(), id)
	}
	if err != nil {
		h.writeDomainError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(mb))
}

// GetDistributions returns the household's distribution history, newest
// first. ?limit= caps the result (default 100).
// GET /api/households/{id}/distributions
func (h *Handler) GetDistributions(w http.ResponseWriter, r *http.Request) {
	id := ration.HouseholdID(chi.URLParam(r, "id"))

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.Engine.History(r.Context(), id, limit)
	if err != nil {
		h.writeDomainError(w, "Failed to list distributions", err)
		return
	}

	dtos := make([]DistributionDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toDistributionDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReservations returns the household's bookings, newest first.
// GET /api/households/{id}/reservations
func (h *Handler) GetReservations(w http.ResponseWriter, r *http.Request) {
	id := ration.HouseholdID(chi.URLParam(r, "id"))

	reservations, err := h.Reservations.List(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list reservations", err)
		return
	}

	dtos := make([]ReservationDTO, len(reservations))
	for i, res := range reservations {
		dtos[i] = toReservationDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DISTRIBUTION HANDLERS
// =============================================================================

// Distribute records a ration handover: balance decrement plus ledger
// append.
// POST /api/distributions
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Engine.Distribute(r.Context(), engine.DistributeRequest{
		HouseholdID:   ration.HouseholdID(req.HouseholdID),
		MemberID:      ration.MemberID(req.MemberID),
		ReservationID: ration.ReservationID(req.ReservationID),
		Items:         parseBasket(req.Items),
		PaymentMethod: ration.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		h.writeDomainError(w, "Distribution failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDistributionDTO(entry))
}

// GetDistribution returns a single ledger entry.
// GET /api/distributions/{id}
func (h *Handler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	id := ration.DistributionID(chi.URLParam(r, "id"))

	entry, err := h.Engine.GetDistribution(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get distribution", err)
		return
	}
	writeJSON(w, http.StatusOK, toDistributionDTO(entry))
}

// VerifyDistribution recomputes the entry's content hash and walks the
// chain up to its block.
// GET /api/distributions/{id}/verify
func (h *Handler) VerifyDistribution(w http.ResponseWriter, r *http.Request) {
	id := ration.DistributionID(chi.URLParam(r, "id"))

	result, err := h.Engine.Verify(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Verification failed", err)
		return
	}
	if !result.Found {
		writeError(w, http.StatusNotFound, "Distribution not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// Reserve books a collection slot after an advisory balance check.
// POST /api/reservations
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	targetDate, err := time.Parse("2006-01-02", req.TargetDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid target_date, expected YYYY-MM-DD", err)
		return
	}

	res, err := h.Reservations.Reserve(r.Context(), reservation.ReserveRequest{
		HouseholdID: ration.HouseholdID(req.HouseholdID),
		MemberID:    ration.MemberID(req.MemberID),
		ShopID:      req.ShopID,
		Items:       parseBasket(req.Items),
		TargetDate:  targetDate,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create reservation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(res))
}

// GetReservation returns a single booking.
// GET /api/reservations/{id}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := ration.ReservationID(chi.URLParam(r, "id"))

	res, err := h.Reservations.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// CancelReservation voids a held booking.
// POST /api/reservations/{id}/cancel
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := ration.ReservationID(chi.URLParam(r, "id"))

	res, err := h.Reservations.Cancel(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// =============================================================================
// CHAIN HANDLERS
// =============================================================================

// ChainHead returns the current head block summary.
// GET /api/chain/head
func (h *Handler) ChainHead(w http.ResponseWriter, r *http.Request) {
	head, err := h.Engine.ChainHead(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to read chain head", err)
		return
	}
	writeJSON(w, http.StatusOK, BlockDTO{
		Index:        head.Index,
		Timestamp:    head.Timestamp.UTC().Format(time.RFC3339),
		Hash:         head.Hash,
		PreviousHash: head.PreviousHash,
		Nonce:        head.Nonce,
		EntryCount:   len(head.Entries),
	})
}

// ValidateChain walks the whole chain and reports the first defect, if any.
// GET /api/chain/validate
func (h *Handler) ValidateChain(w http.ResponseWriter, r *http.Request) {
	head, err := h.Engine.ChainHead(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to read chain head", err)
		return
	}

	dto := ChainValidationDTO{Valid: true, Blocks: head.Index + 1}
	if err := h.Engine.ValidateChain(r.Context()); err != nil {
		dto.Valid = false
		dto.Error = err.Error()
		h.Log.WithError(err).Error("chain validation failed")
	}
	writeJSON(w, http.StatusOK, dto)
}

// Health is the liveness probe.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError maps domain errors to HTTP status codes. Insufficient
// balance carries its per-commodity shortfall in the payload.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var short *ration.InsufficientBalanceError
	if errors.As(err, &short) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:      message,
			Details:    short.Error(),
			Shortfalls: toBasketDTO(short.Shortfalls),
		})
		return
	}

	switch {
	case ration.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ration.ErrReservationClosed):
		writeError(w, http.StatusConflict, message, err)
	case ration.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ration.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		h.Log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
