/*
errors.go - Centralized error types for the ration engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations and the engine wrap these with additional context.

ERROR CATEGORIES:
  1. Business outcomes - Insufficient balance (expected, reportable)
  2. Caller mistakes - Unknown household, invalid card type
  3. Transient faults - Concurrent modification (retried internally)
  4. Integrity faults - Chain verification failures (reported, never hidden)

USAGE:
  if errors.Is(err, ration.ErrInsufficientBalance) {
      var short *ration.InsufficientBalanceError
      errors.As(err, &short) // per-commodity shortfall for the operator
  }
*/
package ration

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrHouseholdNotFound is returned when a referenced household does not
	// exist in the registry.
	ErrHouseholdNotFound = errors.New("household not found")

	// ErrInvalidCardType is returned when entitlement computation receives an
	// unrecognized card tier. Indicates a data-integrity bug upstream and is
	// logged loudly; it should not occur in steady-state operation.
	ErrInvalidCardType = errors.New("invalid card type")

	// ErrInsufficientBalance is an expected business outcome, not a system
	// fault. The balance is left unchanged when it is returned.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConcurrentModification is returned when optimistic locking detects a
	// conflict. Callers retry a bounded number of times before surfacing it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrChainIntegrityViolation is returned by verification when a stored
	// entry or block fails hash recomputation. It never blocks new appends.
	ErrChainIntegrityViolation = errors.New("chain integrity violation")

	// ErrDistributionNotFound is returned when a ledger lookup misses.
	ErrDistributionNotFound = errors.New("distribution not found")

	// ErrReservationNotFound is returned when a referenced reservation does
	// not exist.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationClosed is returned on transitions out of a terminal
	// reservation state (fulfilled or cancelled).
	ErrReservationClosed = errors.New("reservation already closed")

	// ErrInvalidQuantity is returned when a request contains a negative,
	// empty, or unknown-commodity quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports, per commodity, how far the request
// exceeds the remaining balance so the operator can adjust and retry.
type InsufficientBalanceError struct {
	HouseholdID HouseholdID
	Year        int
	Month       int
	Shortfalls  Basket
}

func (e *InsufficientBalanceError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, c := range Commodities {
		if q, ok := e.Shortfalls[c]; ok {
			parts = append(parts, fmt.Sprintf("%s short by %s %s", c, q, c.Unit()))
		}
	}
	sort.Strings(parts)
	return fmt.Sprintf("insufficient balance for household %s (%d-%02d): %s",
		e.HouseholdID, e.Year, e.Month, strings.Join(parts, ", "))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// ChainIntegrityError identifies where a chain walk first failed.
type ChainIntegrityError struct {
	BlockIndex int64
	Reason     string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at block %d: %s", e.BlockIndex, e.Reason)
}

func (e *ChainIntegrityError) Unwrap() error {
	return ErrChainIntegrityViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the caller's request
// rather than a system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidCardType) ||
		errors.Is(err, ErrReservationClosed)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHouseholdNotFound) ||
		errors.Is(err, ErrDistributionNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}
