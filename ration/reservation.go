// Reservation is an advisory booking of a future collection slot. It never
// holds stock or reduces a balance; it exists to cap per-slot shop capacity
// and to let a distribution be traced back to the booking behind it.
package ration

import "time"

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
// Fulfilled and cancelled are terminal; held reservations whose target date
// has passed transition to expired via the sweep.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationFulfilled || s == ReservationCancelled
}

type Reservation struct {
	ID          ReservationID
	HouseholdID HouseholdID
	MemberID    MemberID
	ShopID      string
	Items       Basket
	TargetDate  time.Time
	Status      ReservationStatus

	// DistributionID is set when the reservation is fulfilled.
	DistributionID DistributionID

	CreatedAt time.Time
	UpdatedAt time.Time
}
