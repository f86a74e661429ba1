// Package store provides in-memory implementations of the ration store
// interfaces for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smartration/ration-engine/ledger"
	"github.com/smartration/ration-engine/ration"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements HouseholdStore, BalanceStore, ReservationStore, and
// ledger.ChainStore behind a single mutex. Semantics mirror the SQLite
// store, including optimistic version checks on balance mutations.
type Memory struct {
	mu           sync.RWMutex
	calc         *ration.Calculator
	households   map[ration.HouseholdID]ration.Household
	balances     map[balanceKey]ration.MonthlyBalance
	reservations map[ration.ReservationID]ration.Reservation
	blocks       []ledger.Block
	now          func() time.Time
}

type balanceKey struct {
	HouseholdID ration.HouseholdID
	Year        int
	Month       int
}

// NewMemory creates an empty store with a genesis-rooted chain.
func NewMemory(calc *ration.Calculator) *Memory {
	return &Memory{
		calc:         calc,
		households:   make(map[ration.HouseholdID]ration.Household),
		balances:     make(map[balanceKey]ration.MonthlyBalance),
		reservations: make(map[ration.ReservationID]ration.Reservation),
		blocks:       []ledger.Block{ledger.Genesis()},
		now:          time.Now,
	}
}

// SetClock overrides the timestamp source (tests).
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}

// =============================================================================
// HOUSEHOLD STORE
// =============================================================================

func (m *Memory) GetHousehold(_ context.Context, id ration.HouseholdID) (ration.Household, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.households[id]
	if !ok {
		return ration.Household{}, ration.ErrHouseholdNotFound
	}
	return h, nil
}

func (m *Memory) SaveHousehold(_ context.Context, h ration.Household) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.CreatedAt.IsZero() {
		h.CreatedAt = m.now().UTC()
	}
	m.households[h.ID] = h
	return nil
}

func (m *Memory) UpdateMemberCount(_ context.Context, id ration.HouseholdID, members int) (ration.Household, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.households[id]
	if !ok {
		return ration.Household{}, ration.ErrHouseholdNotFound
	}
	h.MemberCount = members
	m.households[id] = h
	return h, nil
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (m *Memory) GetOrInit(_ context.Context, id ration.HouseholdID, year, month int) (ration.MonthlyBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := balanceKey{HouseholdID: id, Year: year, Month: month}
	if mb, ok := m.balances[k]; ok {
		return copyBalance(mb), nil
	}

	h, ok := m.households[id]
	if !ok {
		return ration.MonthlyBalance{}, ration.ErrHouseholdNotFound
	}
	entitlement, err := m.calc.Quota(h.CardType, h.MemberCount)
	if err != nil {
		return ration.MonthlyBalance{}, err
	}

	now := m.now().UTC()
	mb := ration.MonthlyBalance{
		HouseholdID: id,
		Year:        year,
		Month:       month,
		Entitlement: entitlement,
		Remaining:   entitlement.Clone(),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.balances[k] = mb
	return copyBalance(mb), nil
}

func (m *Memory) Decrement(_ context.Context, id ration.HouseholdID, year, month int, requested ration.Basket, version int64) (ration.MonthlyBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := balanceKey{HouseholdID: id, Year: year, Month: month}
	mb, ok := m.balances[k]
	if !ok {
		return ration.MonthlyBalance{}, ration.ErrHouseholdNotFound
	}
	if mb.Version != version {
		return ration.MonthlyBalance{}, ration.ErrConcurrentModification
	}
	if short := mb.Remaining.Shortfalls(requested); len(short) > 0 {
		return ration.MonthlyBalance{}, &ration.InsufficientBalanceError{
			HouseholdID: id, Year: year, Month: month, Shortfalls: short,
		}
	}

	mb.Remaining = mb.Remaining.Sub(requested)
	mb.Version++
	mb.UpdatedAt = m.now().UTC()
	m.balances[k] = mb
	return copyBalance(mb), nil
}

func (m *Memory) Credit(_ context.Context, id ration.HouseholdID, year, month int, quantities ration.Basket) (ration.MonthlyBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := balanceKey{HouseholdID: id, Year: year, Month: month}
	mb, ok := m.balances[k]
	if !ok {
		return ration.MonthlyBalance{}, ration.ErrHouseholdNotFound
	}

	restored := mb.Remaining.Add(quantities)
	for _, c := range ration.Commodities {
		if restored.Get(c).GreaterThan(mb.Entitlement.Get(c)) {
			restored[c] = mb.Entitlement.Get(c)
		}
	}
	mb.Remaining = restored
	mb.Version++
	mb.UpdatedAt = m.now().UTC()
	m.balances[k] = mb
	return copyBalance(mb), nil
}

func (m *Memory) Recompute(_ context.Context, id ration.HouseholdID, year, month int, entitlement ration.Basket) (ration.MonthlyBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := balanceKey{HouseholdID: id, Year: year, Month: month}
	mb, ok := m.balances[k]
	if !ok {
		return ration.MonthlyBalance{}, nil
	}

	mb.Remaining = ration.ApplyRecompute(mb, entitlement)
	mb.Entitlement = entitlement.Clone()
	mb.Version++
	mb.UpdatedAt = m.now().UTC()
	m.balances[k] = mb
	return copyBalance(mb), nil
}

func copyBalance(mb ration.MonthlyBalance) ration.MonthlyBalance {
	mb.Entitlement = mb.Entitlement.Clone()
	mb.Remaining = mb.Remaining.Clone()
	return mb
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

func (m *Memory) SaveReservation(_ context.Context, r ration.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now().UTC()
	}
	r.UpdatedAt = m.now().UTC()
	r.Items = r.Items.Clone()
	m.reservations[r.ID] = r
	return nil
}

func (m *Memory) GetReservation(_ context.Context, id ration.ReservationID) (ration.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reservations[id]
	if !ok {
		return ration.Reservation{}, ration.ErrReservationNotFound
	}
	r.Items = r.Items.Clone()
	return r, nil
}

func (m *Memory) ListHeldBefore(_ context.Context, cutoff time.Time) ([]ration.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []ration.Reservation
	for _, r := range m.reservations {
		if r.Status == ration.ReservationHeld && r.TargetDate.Before(cutoff) {
			r.Items = r.Items.Clone()
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].TargetDate.Before(due[j].TargetDate) })
	return due, nil
}

func (m *Memory) ListReservations(_ context.Context, id ration.HouseholdID) ([]ration.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ration.Reservation
	for _, r := range m.reservations {
		if r.HouseholdID == id {
			r.Items = r.Items.Clone()
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// CHAIN STORE
// =============================================================================

func (m *Memory) Head(_ context.Context) (ledger.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocks[len(m.blocks)-1], nil
}

func (m *Memory) AppendBlock(_ context.Context, b ledger.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.Index != int64(len(m.blocks)) {
		return ration.ErrConcurrentModification
	}
	m.blocks = append(m.blocks, b)
	return nil
}

func (m *Memory) GetBlock(_ context.Context, index int64) (ledger.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= int64(len(m.blocks)) {
		return ledger.Block{}, ration.ErrDistributionNotFound
	}
	return m.blocks[index], nil
}

func (m *Memory) BlockCount(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.blocks)), nil
}

func (m *Memory) GetDistribution(_ context.Context, id ration.DistributionID) (ration.DistributionEntry, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.blocks {
		for _, e := range b.Entries {
			if e.ID == id {
				return e, b.Index, nil
			}
		}
	}
	return ration.DistributionEntry{}, 0, ration.ErrDistributionNotFound
}

func (m *Memory) ListDistributions(_ context.Context, id ration.HouseholdID, limit int) ([]ration.DistributionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ration.DistributionEntry
	for i := len(m.blocks) - 1; i >= 0; i-- {
		for _, e := range m.blocks[i].Entries {
			if e.HouseholdID == id {
				out = append(out, e)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

// TamperEntry mutates a stored entry in place, bypassing append-only
// semantics. Test hook for verification failure paths.
func (m *Memory) TamperEntry(id ration.DistributionID, mutate func(*ration.DistributionEntry)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for bi := range m.blocks {
		for ei := range m.blocks[bi].Entries {
			if m.blocks[bi].Entries[ei].ID == id {
				mutate(&m.blocks[bi].Entries[ei])
				return true
			}
		}
	}
	return false
}
