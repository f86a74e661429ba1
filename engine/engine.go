/*
Package engine orchestrates the distribution workflow.

PURPOSE:
  The Engine is the single write path for ration distributions. One call
  to Distribute performs: household lookup, lazy balance initialization,
  atomic multi-commodity decrement, ledger append, optional reservation
  fulfillment, and receipt notification.

ORDERING AND ATOMICITY:
  The decrement commits before the ledger append. If the append fails, the
  engine compensates by crediting the decremented quantities back, so the
  conservation property (initial entitlement = remaining + recorded
  distributions) holds across the failure. The compensation itself is
  logged loudly if it fails; that is the one state requiring operator
  intervention.

CONCURRENCY:
  Balance decrements are optimistic: the engine re-reads and retries a
  bounded number of times on ErrConcurrentModification before giving up.
  Two concurrent requests whose combined quantities exceed the remaining
  balance therefore resolve to exactly one success and one
  InsufficientBalanceError, in either order.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smartration/ration-engine/ledger"
	"github.com/smartration/ration-engine/notify"
	"github.com/smartration/ration-engine/ration"
	"github.com/smartration/ration-engine/reservation"
)

// decrementRetries bounds the optimistic retry loop on balance decrements.
const decrementRetries = 5

// Engine coordinates stores, the ledger, and notifications.
type Engine struct {
	households   ration.HouseholdStore
	balances     ration.BalanceStore
	calc         *ration.Calculator
	ledger       *ledger.Ledger
	reservations *reservation.Manager
	dispatcher   notify.Dispatcher
	log          *logrus.Logger
	metrics      *Metrics
	cutover      ration.EntitlementCutover
	now          func() time.Time
}

// Config wires an Engine. Reservations and Metrics are optional; Cutover
// defaults to next-month.
type Config struct {
	Households   ration.HouseholdStore
	Balances     ration.BalanceStore
	Calculator   *ration.Calculator
	Ledger       *ledger.Ledger
	Reservations *reservation.Manager
	Dispatcher   notify.Dispatcher
	Log          *logrus.Logger
	Metrics      *Metrics
	Cutover      ration.EntitlementCutover
}

// New creates an Engine from the config.
func New(cfg Config) *Engine {
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	if !cfg.Cutover.Valid() {
		cfg.Cutover = ration.CutoverNextMonth
	}
	return &Engine{
		households:   cfg.Households,
		balances:     cfg.Balances,
		calc:         cfg.Calculator,
		ledger:       cfg.Ledger,
		reservations: cfg.Reservations,
		dispatcher:   cfg.Dispatcher,
		log:          cfg.Log,
		metrics:      cfg.Metrics,
		cutover:      cfg.Cutover,
		now:          time.Now,
	}
}

// SetClock overrides the timestamp source (tests).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// =============================================================================
// HOUSEHOLDS
// =============================================================================

// RegisterHousehold validates and persists a household record. A missing
// ID is assigned.
func (e *Engine) RegisterHousehold(ctx context.Context, h ration.Household) (ration.Household, error) {
	if !h.CardType.Valid() {
		return ration.Household{}, fmt.Errorf("%w: %q", ration.ErrInvalidCardType, h.CardType)
	}
	if h.MemberCount < 1 {
		h.MemberCount = 1
	}
	if h.ID == "" {
		h.ID = ration.HouseholdID(uuid.NewString())
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = e.now().UTC()
	}
	if err := e.households.SaveHousehold(ctx, h); err != nil {
		return ration.Household{}, fmt.Errorf("save household: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"household_id": h.ID,
		"card_type":    h.CardType,
		"members":      h.MemberCount,
	}).Info("household registered")
	return h, nil
}

// GetHousehold returns the household or ErrHouseholdNotFound.
func (e *Engine) GetHousehold(ctx context.Context, id ration.HouseholdID) (ration.Household, error) {
	return e.households.GetHousehold(ctx, id)
}

// UpdateMembers changes a household's member count and applies the
// configured entitlement cutover. Under next-month the open month is left
// untouched; under immediate the current month's entitlement is recomputed
// with consumed quantities preserved.
func (e *Engine) UpdateMembers(ctx context.Context, id ration.HouseholdID, members int) (ration.Household, error) {
	if members < 1 {
		members = 1
	}
	h, err := e.households.UpdateMemberCount(ctx, id, members)
	if err != nil {
		return ration.Household{}, err
	}

	if e.cutover == ration.CutoverImmediate {
		entitlement, err := e.calc.Quota(h.CardType, h.MemberCount)
		if err != nil {
			return ration.Household{}, err
		}
		year, month := ration.MonthOf(e.now())
		if _, err := e.balances.Recompute(ctx, id, year, month, entitlement); err != nil {
			return ration.Household{}, fmt.Errorf("recompute balance: %w", err)
		}
	}

	e.log.WithFields(logrus.Fields{
		"household_id": id,
		"members":      members,
		"cutover":      e.cutover,
	}).Info("member count updated")
	return h, nil
}

// Balance returns the household's balance for the month containing now,
// initializing it if this is the first touch.
func (e *Engine) Balance(ctx context.Context, id ration.HouseholdID) (ration.MonthlyBalance, error) {
	return ration.CurrentBalance(ctx, e.balances, id, e.now())
}

// BalanceFor returns the balance for an explicit (year, month) key.
func (e *Engine) BalanceFor(ctx context.Context, id ration.HouseholdID, year, month int) (ration.MonthlyBalance, error) {
	return e.balances.GetOrInit(ctx, id, year, month)
}

// =============================================================================
// DISTRIBUTION
// =============================================================================

// DistributeRequest describes one handover of commodities.
type DistributeRequest struct {
	HouseholdID   ration.HouseholdID
	MemberID      ration.MemberID
	ReservationID ration.ReservationID
	Items         ration.Basket
	PaymentMethod ration.PaymentMethod
}

// Distribute executes the full distribution workflow and returns the
// appended ledger entry. The balance either covers the entire request and
// every commodity is decremented, or nothing changes and the error carries
// the per-commodity shortfall.
func (e *Engine) Distribute(ctx context.Context, req DistributeRequest) (ration.DistributionEntry, error) {
	start := e.now()
	entry, err := e.distribute(ctx, req)
	if e.metrics != nil {
		e.metrics.Duration.Observe(e.now().Sub(start).Seconds())
		e.metrics.Distributions.WithLabelValues(outcomeFor(err)).Inc()
	}
	return entry, err
}

func (e *Engine) distribute(ctx context.Context, req DistributeRequest) (ration.DistributionEntry, error) {
	if req.Items.IsEmpty() || req.Items.HasNegative() {
		return ration.DistributionEntry{}, fmt.Errorf("%w: requested basket must be non-empty and non-negative", ration.ErrInvalidQuantity)
	}
	for c := range req.Items {
		if !c.Valid() {
			return ration.DistributionEntry{}, fmt.Errorf("%w: unknown commodity %q", ration.ErrInvalidQuantity, c)
		}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = ration.PaymentCash
	}
	if !req.PaymentMethod.Valid() {
		return ration.DistributionEntry{}, fmt.Errorf("%w: unsupported payment method %q", ration.ErrInvalidQuantity, req.PaymentMethod)
	}

	h, err := e.households.GetHousehold(ctx, req.HouseholdID)
	if err != nil {
		return ration.DistributionEntry{}, err
	}

	now := e.now().UTC()
	year, month := ration.MonthOf(now)

	// Optimistic decrement: re-read and retry on version conflicts.
	var decremented bool
	for attempt := 0; attempt < decrementRetries; attempt++ {
		mb, err := e.balances.GetOrInit(ctx, req.HouseholdID, year, month)
		if err != nil {
			return ration.DistributionEntry{}, err
		}
		_, err = e.balances.Decrement(ctx, req.HouseholdID, year, month, req.Items, mb.Version)
		if err == nil {
			decremented = true
			break
		}
		if ration.IsRetryable(err) {
			if e.metrics != nil {
				e.metrics.Conflicts.Inc()
			}
			continue
		}
		return ration.DistributionEntry{}, err
	}
	if !decremented {
		return ration.DistributionEntry{}, fmt.Errorf("balance decrement retries exhausted: %w", ration.ErrConcurrentModification)
	}

	items := ration.PriceItems(req.Items)
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}

	entry := ration.DistributionEntry{
		ID:            ration.DistributionID(uuid.NewString()),
		HouseholdID:   req.HouseholdID,
		MemberID:      req.MemberID,
		ReservationID: req.ReservationID,
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: req.PaymentMethod,
		Timestamp:     now,
	}
	entry.ContentHash = entry.ComputeContentHash()

	block, err := e.ledger.Append(ctx, entry)
	if err != nil {
		e.compensate(ctx, req.HouseholdID, year, month, req.Items)
		return ration.DistributionEntry{}, fmt.Errorf("ledger append: %w", err)
	}
	// The stored entry carries the chain linkage set inside Append.
	entry = block.Entries[0]

	if e.metrics != nil {
		e.metrics.ChainHeight.Set(float64(block.Index))
	}

	if req.ReservationID != "" && e.reservations != nil {
		// Best-effort: a closed or missing reservation never voids the
		// completed distribution.
		if _, err := e.reservations.Fulfill(ctx, req.ReservationID, entry.ID); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"reservation_id":  req.ReservationID,
				"distribution_id": entry.ID,
			}).Warn("could not fulfill reservation for completed distribution")
		}
	}

	e.log.WithFields(logrus.Fields{
		"distribution_id": entry.ID,
		"household_id":    entry.HouseholdID,
		"total_amount":    entry.TotalAmount.String(),
		"block_index":     block.Index,
	}).Info("distribution recorded")

	if h.Mobile != "" && e.dispatcher != nil {
		e.sendReceipt(h.Mobile, entry)
	}
	return entry, nil
}

// compensate credits a decrement back after a failed ledger append. A
// failed compensation leaves the balance understated relative to the
// ledger and is logged at error level for operator follow-up.
func (e *Engine) compensate(ctx context.Context, id ration.HouseholdID, year, month int, quantities ration.Basket) {
	if e.metrics != nil {
		e.metrics.Compensations.Inc()
	}
	if _, err := e.balances.Credit(ctx, id, year, month, quantities); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"household_id": id,
			"year":         year,
			"month":        month,
		}).Error("compensation credit failed; balance understated until corrected")
		return
	}
	e.log.WithField("household_id", id).Warn("ledger append failed; decrement compensated")
}

func (e *Engine) sendReceipt(destination string, entry ration.DistributionEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.dispatcher.Send(ctx, destination, notify.Receipt(entry)); err != nil {
			e.log.WithError(err).WithField("destination", destination).Warn("receipt delivery failed")
		}
	}()
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ration.ErrInsufficientBalance):
		return outcomeInsufficient
	case errors.Is(err, ration.ErrConcurrentModification):
		return outcomeConflict
	default:
		return outcomeError
	}
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

// History returns a household's recorded distributions, newest first.
func (e *Engine) History(ctx context.Context, id ration.HouseholdID, limit int) ([]ration.DistributionEntry, error) {
	return e.ledger.History(ctx, id, limit)
}

// GetDistribution returns the stored ledger entry for an id.
func (e *Engine) GetDistribution(ctx context.Context, id ration.DistributionID) (ration.DistributionEntry, error) {
	return e.ledger.GetByID(ctx, id)
}

// Verify checks a single distribution's content hash and the chain up to
// its block.
func (e *Engine) Verify(ctx context.Context, id ration.DistributionID) (ledger.VerificationResult, error) {
	return e.ledger.Verify(ctx, id)
}

// ValidateChain walks the whole chain; nil means intact.
func (e *Engine) ValidateChain(ctx context.Context) error {
	return e.ledger.ValidateChain(ctx)
}

// ChainHead returns the current head block.
func (e *Engine) ChainHead(ctx context.Context) (ledger.Block, error) {
	return e.ledger.Head(ctx)
}
