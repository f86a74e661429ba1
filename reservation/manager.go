/*
Package reservation manages advisory collection bookings.

PURPOSE:
  A reservation books a future collection slot at a fair-price shop. It is
  advisory only: creating one never decrements the monthly balance, and an
  expired one never needs balance restoration. The balance is touched
  exactly once, at distribution time.

LIFECYCLE:
  held -> fulfilled   (distribution referencing the reservation succeeds)
  held -> cancelled   (beneficiary cancels before collection)
  held -> expired     (target date passes without collection; sweep)

  Fulfilled, cancelled, and expired are all dead ends; any transition out
  of them returns ErrReservationClosed.
*/
package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartration/ration-engine/notify"
	"github.com/smartration/ration-engine/ration"
)

// Manager owns the reservation lifecycle.
type Manager struct {
	reservations ration.ReservationStore
	balances     ration.BalanceStore
	households   ration.HouseholdStore
	dispatcher   notify.Dispatcher
	log          *logrus.Logger
	now          func() time.Time
}

// NewManager wires a Manager over the given stores.
func NewManager(
	reservations ration.ReservationStore,
	balances ration.BalanceStore,
	households ration.HouseholdStore,
	dispatcher notify.Dispatcher,
	log *logrus.Logger,
) *Manager {
	return &Manager{
		reservations: reservations,
		balances:     balances,
		households:   households,
		dispatcher:   dispatcher,
		log:          log,
		now:          time.Now,
	}
}

// SetClock overrides the timestamp source (tests).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// ReserveRequest describes a booking to create.
type ReserveRequest struct {
	HouseholdID ration.HouseholdID
	MemberID    ration.MemberID
	ShopID      string
	Items       ration.Basket
	TargetDate  time.Time
}

// Reserve creates a held booking after an advisory balance check against
// the month of the target date. The check is a courtesy: passing it does
// not hold stock, and the definitive check happens at distribution time.
func (m *Manager) Reserve(ctx context.Context, req ReserveRequest) (ration.Reservation, error) {
	if req.Items.IsEmpty() || req.Items.HasNegative() {
		return ration.Reservation{}, fmt.Errorf("%w: requested basket must be non-empty and non-negative", ration.ErrInvalidQuantity)
	}
	for c := range req.Items {
		if !c.Valid() {
			return ration.Reservation{}, fmt.Errorf("%w: unknown commodity %q", ration.ErrInvalidQuantity, c)
		}
	}

	h, err := m.households.GetHousehold(ctx, req.HouseholdID)
	if err != nil {
		return ration.Reservation{}, err
	}

	year, month := ration.MonthOf(req.TargetDate)
	mb, err := m.balances.GetOrInit(ctx, req.HouseholdID, year, month)
	if err != nil {
		return ration.Reservation{}, err
	}
	if short := mb.Remaining.Shortfalls(req.Items); len(short) > 0 {
		return ration.Reservation{}, &ration.InsufficientBalanceError{
			HouseholdID: req.HouseholdID, Year: year, Month: month, Shortfalls: short,
		}
	}

	now := m.now().UTC()
	r := ration.Reservation{
		ID:          ration.ReservationID(uuid.NewString()),
		HouseholdID: req.HouseholdID,
		MemberID:    req.MemberID,
		ShopID:      req.ShopID,
		Items:       req.Items.Clone(),
		TargetDate:  req.TargetDate.UTC(),
		Status:      ration.ReservationHeld,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.reservations.SaveReservation(ctx, r); err != nil {
		return ration.Reservation{}, fmt.Errorf("save reservation: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"reservation_id": r.ID,
		"household_id":   r.HouseholdID,
		"target_date":    r.TargetDate.Format("2006-01-02"),
	}).Info("reservation created")

	if h.Mobile != "" {
		m.send(h.Mobile, notify.BookingConfirmation(r))
	}
	return r, nil
}

// Get returns the reservation or ErrReservationNotFound.
func (m *Manager) Get(ctx context.Context, id ration.ReservationID) (ration.Reservation, error) {
	return m.reservations.GetReservation(ctx, id)
}

// List returns a household's reservations, newest first.
func (m *Manager) List(ctx context.Context, id ration.HouseholdID) ([]ration.Reservation, error) {
	return m.reservations.ListReservations(ctx, id)
}

// Fulfill marks a held reservation as collected and links the distribution
// that satisfied it.
func (m *Manager) Fulfill(ctx context.Context, id ration.ReservationID, distID ration.DistributionID) (ration.Reservation, error) {
	return m.transition(ctx, id, ration.ReservationFulfilled, distID)
}

// Cancel voids a held reservation.
func (m *Manager) Cancel(ctx context.Context, id ration.ReservationID) (ration.Reservation, error) {
	return m.transition(ctx, id, ration.ReservationCancelled, "")
}

func (m *Manager) transition(ctx context.Context, id ration.ReservationID, to ration.ReservationStatus, distID ration.DistributionID) (ration.Reservation, error) {
	r, err := m.reservations.GetReservation(ctx, id)
	if err != nil {
		return ration.Reservation{}, err
	}
	if r.Status != ration.ReservationHeld {
		return ration.Reservation{}, fmt.Errorf("%w: %s is %s", ration.ErrReservationClosed, id, r.Status)
	}

	r.Status = to
	r.DistributionID = distID
	r.UpdatedAt = m.now().UTC()
	if err := m.reservations.SaveReservation(ctx, r); err != nil {
		return ration.Reservation{}, fmt.Errorf("save reservation: %w", err)
	}
	return r, nil
}

// ExpireDue transitions every held reservation whose target date has
// passed to expired and notifies the household. Returns the number of
// reservations expired.
func (m *Manager) ExpireDue(ctx context.Context, cutoff time.Time) (int, error) {
	due, err := m.reservations.ListHeldBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list due reservations: %w", err)
	}

	expired := 0
	for _, r := range due {
		r.Status = ration.ReservationExpired
		r.UpdatedAt = m.now().UTC()
		if err := m.reservations.SaveReservation(ctx, r); err != nil {
			m.log.WithError(err).WithField("reservation_id", r.ID).Error("failed to expire reservation")
			continue
		}
		expired++

		if h, err := m.households.GetHousehold(ctx, r.HouseholdID); err == nil && h.Mobile != "" {
			m.send(h.Mobile, notify.ExpiryNotice(r, cutoff))
		}
	}
	return expired, nil
}

func (m *Manager) send(destination, message string) {
	// Fire-and-forget: delivery never blocks or fails the operation.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.dispatcher.Send(ctx, destination, message); err != nil {
			m.log.WithError(err).WithField("destination", destination).Warn("notification delivery failed")
		}
	}()
}
