/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ration.HouseholdStore, ration.BalanceStore,
  ration.ReservationStore, and ledger.ChainStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  households:       Registry reference data (card type, member count)
  monthly_balances: One row per (household, year, month), version-stamped
  reservations:     Advisory bookings
  blocks:           Append-only chain (block_index is the primary key)
  distributions:    Ledger entries, foreign-keyed to their block

CONCURRENCY:
  Balance rows carry a version counter: decrement, credit, and recompute
  update WHERE version = observed, and zero rows affected maps to
  ErrConcurrentModification. Chain appends rely on the blocks primary
  key: two writers racing for the same index produce one insert and one
  unique constraint error, which the ledger's CAS loop retries. Lazy
  balance initialization is INSERT OR IGNORE followed by a re-read, so
  concurrent first-touch never creates two rows. A store-level RWMutex
  additionally serializes writers within the process.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement touches blocks or distributions.
  Corrections to the ledger are new offsetting entries.

USAGE:
  store, err := sqlite.New("./data/ration.db", ration.NewCalculator(0))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ration/store.go: Interface definitions
  - ration/store/memory.go: In-memory implementation for testing
  - ledger/ledger.go: Chain semantics the blocks table backs
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/smartration/ration-engine/ledger"
	"github.com/smartration/ration-engine/ration"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db   *sql.DB
	calc *ration.Calculator
	mu   sync.RWMutex
	now  func() time.Time
}

// New creates a SQLite store at the given path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string, calc *ration.Calculator) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, calc: calc, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock overrides the timestamp source (tests).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// migrate creates the database schema and seeds the genesis block.
func (s *Store) migrate() error {
	schema := `
	-- Household registry (reference data)
	CREATE TABLE IF NOT EXISTS households (
		id TEXT PRIMARY KEY,
		card_type TEXT NOT NULL,
		member_count INTEGER NOT NULL,
		mobile TEXT,
		created_at TEXT NOT NULL
	);

	-- Monthly balances: exactly one row per (household, year, month).
	-- The primary key is what makes lazy initialization idempotent.
	CREATE TABLE IF NOT EXISTS monthly_balances (
		household_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		entitlement_json TEXT NOT NULL,
		remaining_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (household_id, year, month)
	);

	-- Advisory bookings
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL,
		member_id TEXT,
		shop_id TEXT,
		items_json TEXT NOT NULL,
		target_date TEXT NOT NULL,
		status TEXT NOT NULL,
		distribution_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_household
		ON reservations(household_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_due
		ON reservations(status, target_date);

	-- Chain blocks (append-only). The primary key on block_index is the
	-- serialization point for chain appends.
	CREATE TABLE IF NOT EXISTS blocks (
		block_index INTEGER PRIMARY KEY,
		timestamp TEXT NOT NULL,
		hash TEXT NOT NULL,
		previous_hash TEXT NOT NULL,
		nonce INTEGER NOT NULL
	);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS distributions (
		id TEXT PRIMARY KEY,
		block_index INTEGER NOT NULL REFERENCES blocks(block_index),
		household_id TEXT NOT NULL,
		member_id TEXT,
		reservation_id TEXT,
		items_json TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		previous_hash TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_distributions_household
		ON distributions(household_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_distributions_block
		ON distributions(block_index);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Seed genesis exactly once.
	genesis := ledger.Genesis()
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO blocks (block_index, timestamp, hash, previous_hash, nonce)
		VALUES (?, ?, ?, ?, ?)`,
		genesis.Index,
		genesis.Timestamp.UTC().Format(time.RFC3339),
		genesis.Hash,
		genesis.PreviousHash,
		genesis.Nonce,
	)
	return err
}

// =============================================================================
// HOUSEHOLD STORE (ration.HouseholdStore interface)
// =============================================================================

func (s *Store) GetHousehold(ctx context.Context, id ration.HouseholdID) (ration.Household, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getHousehold(ctx, id)
}

func (s *Store) getHousehold(ctx context.Context, id ration.HouseholdID) (ration.Household, error) {
	var (
		h         ration.Household
		mobile    sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, card_type, member_count, mobile, created_at FROM households WHERE id = ?",
		id,
	).Scan(&h.ID, &h.CardType, &h.MemberCount, &mobile, &createdAt)

	if err == sql.ErrNoRows {
		return ration.Household{}, ration.ErrHouseholdNotFound
	}
	if err != nil {
		return ration.Household{}, fmt.Errorf("failed to load household: %w", err)
	}

	h.Mobile = mobile.String
	h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return h, nil
}

func (s *Store) SaveHousehold(ctx context.Context, h ration.Household) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.CreatedAt.IsZero() {
		h.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO households (id, card_type, member_count, mobile, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			card_type = excluded.card_type,
			member_count = excluded.member_count,
			mobile = excluded.mobile`,
		h.ID, h.CardType, h.MemberCount, nullString(h.Mobile),
		h.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save household: %w", err)
	}
	return nil
}

func (s *Store) UpdateMemberCount(ctx context.Context, id ration.HouseholdID, members int) (ration.Household, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE households SET member_count = ? WHERE id = ?", members, id)
	if err != nil {
		return ration.Household{}, fmt.Errorf("failed to update member count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ration.Household{}, ration.ErrHouseholdNotFound
	}
	return s.getHousehold(ctx, id)
}

// =============================================================================
// BALANCE STORE (ration.BalanceStore interface)
// =============================================================================

// GetOrInit returns the balance row, creating it exactly once if absent.
// Initialization is INSERT OR IGNORE then re-read: under concurrent
// first-touch one insert wins and every caller reads the same row.
func (s *Store) GetOrInit(ctx context.Context, id ration.HouseholdID, year, month int) (ration.MonthlyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, err := s.getBalance(ctx, id, year, month)
	if err == nil {
		return mb, nil
	}
	if err != sql.ErrNoRows {
		return ration.MonthlyBalance{}, err
	}

	h, err := s.getHousehold(ctx, id)
	if err != nil {
		return ration.MonthlyBalance{}, err
	}
	entitlement, err := s.calc.Quota(h.CardType, h.MemberCount)
	if err != nil {
		return ration.MonthlyBalance{}, err
	}

	entitlementJSON, _ := json.Marshal(entitlement)
	now := s.now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO monthly_balances
		(household_id, year, month, entitlement_json, remaining_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		id, year, month, string(entitlementJSON), string(entitlementJSON), now, now,
	)
	if err != nil {
		return ration.MonthlyBalance{}, fmt.Errorf("failed to initialize balance: %w", err)
	}

	mb, err = s.getBalance(ctx, id, year, month)
	if err != nil {
		return ration.MonthlyBalance{}, fmt.Errorf("failed to re-read balance: %w", err)
	}
	return mb, nil
}

func (s *Store) getBalance(ctx context.Context, id ration.HouseholdID, year, month int) (ration.MonthlyBalance, error) {
	var (
		mb              ration.MonthlyBalance
		entitlementJSON string
		remainJSON      string
		createdAt       string
		updatedAt       string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT household_id, year, month, entitlement_json, remaining_json, version, created_at, updated_at
		FROM monthly_balances
		WHERE household_id = ? AND year = ? AND month = ?`,
		id, year, month,
	).Scan(&mb.HouseholdID, &mb.Year, &mb.Month, &entitlementJSON, &remainJSON,
		&mb.Version, &createdAt, &updatedAt)
	if err != nil {
		return ration.MonthlyBalance{}, err
	}

	if err := json.Unmarshal([]byte(entitlementJSON), &mb.Entitlement); err != nil {
		return ration.MonthlyBalance{}, fmt.Errorf("corrupt entitlement for %s %d-%02d: %w", id, year, month, err)
	}
	if err := json.Unmarshal([]byte(remainJSON), &mb.Remaining); err != nil {
		return ration.MonthlyBalance{}, fmt.Errorf("corrupt balance for %s %d-%02d: %w", id, year, month, err)
	}
	mb.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	mb.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return mb, nil
}

// Decrement performs the atomic check-and-subtract. The UPDATE is
// conditional on the version the caller observed; zero rows affected means
// another writer got there first and the caller must re-read and retry.
func (s *Store) Decrement(ctx context.Context, id ration.HouseholdID, year, month int, requested ration.Basket, version int64) (ration.MonthlyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, err := s.getBalance(ctx, id, year, month)
	if err == sql.ErrNoRows {
		return ration.MonthlyBalance{}, ration.ErrHouseholdNotFound
	}
	if err != nil {
		return ration.MonthlyBalance{}, err
	}
	if mb.Version != version {
		return ration.MonthlyBalance{}, ration.ErrConcurrentModification
	}
	if short := mb.Remaining.Shortfalls(requested); len(short) > 0 {
		return ration.MonthlyBalance{}, &ration.InsufficientBalanceError{
			HouseholdID: id, Year: year, Month: month, Shortfalls: short,
		}
	}

	return s.writeRemaining(ctx, mb, mb.Remaining.Sub(requested), version)
}

// Credit adds quantities back, clamped to the entitlement. Unlike
// Decrement it retries the version internally: a compensating credit must
// not be lost to a concurrent writer.
func (s *Store) Credit(ctx context.Context, id ration.HouseholdID, year, month int, quantities ration.Basket) (ration.MonthlyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		mb, err := s.getBalance(ctx, id, year, month)
		if err == sql.ErrNoRows {
			return ration.MonthlyBalance{}, ration.ErrHouseholdNotFound
		}
		if err != nil {
			return ration.MonthlyBalance{}, err
		}

		restored := mb.Remaining.Add(quantities)
		for _, c := range ration.Commodities {
			if restored.Get(c).GreaterThan(mb.Entitlement.Get(c)) {
				restored[c] = mb.Entitlement.Get(c)
			}
		}

		updated, err := s.writeRemaining(ctx, mb, restored, mb.Version)
		if err == ration.ErrConcurrentModification {
			continue
		}
		return updated, err
	}
}

// Recompute swaps the entitlement of an existing row, preserving consumed
// quantities. Missing row is a no-op: the new entitlement applies when the
// month is first touched.
func (s *Store) Recompute(ctx context.Context, id ration.HouseholdID, year, month int, entitlement ration.Basket) (ration.MonthlyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		mb, err := s.getBalance(ctx, id, year, month)
		if err == sql.ErrNoRows {
			return ration.MonthlyBalance{}, nil
		}
		if err != nil {
			return ration.MonthlyBalance{}, err
		}

		remaining := ration.ApplyRecompute(mb, entitlement)
		entitlementJSON, _ := json.Marshal(entitlement)
		remainJSON, _ := json.Marshal(remaining)

		res, err := s.db.ExecContext(ctx, `
			UPDATE monthly_balances
			SET entitlement_json = ?, remaining_json = ?, version = version + 1, updated_at = ?
			WHERE household_id = ? AND year = ? AND month = ? AND version = ?`,
			string(entitlementJSON), string(remainJSON),
			s.now().UTC().Format(time.RFC3339),
			id, year, month, mb.Version,
		)
		if err != nil {
			return ration.MonthlyBalance{}, fmt.Errorf("failed to recompute balance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		return s.getBalance(ctx, id, year, month)
	}
}

func (s *Store) writeRemaining(ctx context.Context, mb ration.MonthlyBalance, remaining ration.Basket, version int64) (ration.MonthlyBalance, error) {
	remainJSON, _ := json.Marshal(remaining)
	res, err := s.db.ExecContext(ctx, `
		UPDATE monthly_balances
		SET remaining_json = ?, version = version + 1, updated_at = ?
		WHERE household_id = ? AND year = ? AND month = ? AND version = ?`,
		string(remainJSON), s.now().UTC().Format(time.RFC3339),
		mb.HouseholdID, mb.Year, mb.Month, version,
	)
	if err != nil {
		return ration.MonthlyBalance{}, fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ration.MonthlyBalance{}, ration.ErrConcurrentModification
	}
	return s.getBalance(ctx, mb.HouseholdID, mb.Year, mb.Month)
}

// =============================================================================
// RESERVATION STORE (ration.ReservationStore interface)
// =============================================================================

func (s *Store) SaveReservation(ctx context.Context, r ration.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	itemsJSON, _ := json.Marshal(r.Items)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reservations
		(id, household_id, member_id, shop_id, items_json, target_date, status, distribution_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			distribution_id = excluded.distribution_id,
			updated_at = excluded.updated_at`,
		r.ID, r.HouseholdID, nullString(string(r.MemberID)), nullString(r.ShopID),
		string(itemsJSON), r.TargetDate.UTC().Format(time.RFC3339), r.Status,
		nullString(string(r.DistributionID)),
		r.CreatedAt.Format(time.RFC3339),
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id ration.ReservationID) (ration.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryReservations(ctx, reservationSelect+" WHERE id = ?", id)
	if err != nil {
		return ration.Reservation{}, err
	}
	if len(rows) == 0 {
		return ration.Reservation{}, ration.ErrReservationNotFound
	}
	return rows[0], nil
}

func (s *Store) ListHeldBefore(ctx context.Context, cutoff time.Time) ([]ration.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryReservations(ctx,
		reservationSelect+" WHERE status = ? AND target_date < ? ORDER BY target_date ASC",
		ration.ReservationHeld, cutoff.UTC().Format(time.RFC3339))
}

func (s *Store) ListReservations(ctx context.Context, id ration.HouseholdID) ([]ration.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryReservations(ctx,
		reservationSelect+" WHERE household_id = ? ORDER BY created_at DESC", id)
}

const reservationSelect = `
	SELECT id, household_id, member_id, shop_id, items_json, target_date, status, distribution_id, created_at, updated_at
	FROM reservations`

func (s *Store) queryReservations(ctx context.Context, query string, args ...any) ([]ration.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []ration.Reservation
	for rows.Next() {
		var (
			r         ration.Reservation
			memberID  sql.NullString
			shopID    sql.NullString
			distID    sql.NullString
			itemsJSON string
			target    string
			created   string
			updated   string
		)
		if err := rows.Scan(&r.ID, &r.HouseholdID, &memberID, &shopID, &itemsJSON,
			&target, &r.Status, &distID, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		if err := json.Unmarshal([]byte(itemsJSON), &r.Items); err != nil {
			return nil, fmt.Errorf("corrupt reservation items for %s: %w", r.ID, err)
		}
		r.MemberID = ration.MemberID(memberID.String)
		r.ShopID = shopID.String
		r.DistributionID = ration.DistributionID(distID.String)
		r.TargetDate, _ = time.Parse(time.RFC3339, target)
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// CHAIN STORE (ledger.ChainStore interface)
// =============================================================================

func (s *Store) Head(ctx context.Context) (ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var index int64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(block_index) FROM blocks").Scan(&index)
	if err != nil {
		return ledger.Block{}, fmt.Errorf("failed to find chain head: %w", err)
	}
	return s.getBlock(ctx, index)
}

// AppendBlock inserts the block and its entries atomically. A concurrent
// append racing for the same index hits the blocks primary key and is
// reported as ErrConcurrentModification for the ledger to retry.
func (s *Store) AppendBlock(ctx context.Context, b ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blocks (block_index, timestamp, hash, previous_hash, nonce)
		VALUES (?, ?, ?, ?, ?)`,
		b.Index, b.Timestamp.UTC().Format(time.RFC3339), b.Hash, b.PreviousHash, b.Nonce,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ration.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert block: %w", err)
	}

	for _, e := range b.Entries {
		itemsJSON, _ := json.Marshal(e.Items)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO distributions
			(id, block_index, household_id, member_id, reservation_id, items_json,
			 total_amount, payment_method, timestamp, content_hash, previous_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, b.Index, e.HouseholdID,
			nullString(string(e.MemberID)), nullString(string(e.ReservationID)),
			string(itemsJSON), e.TotalAmount.String(), e.PaymentMethod,
			e.Timestamp.UTC().Format(time.RFC3339), e.ContentHash, e.PreviousHash,
		)
		if err != nil {
			return fmt.Errorf("failed to insert distribution %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetBlock(ctx context.Context, index int64) (ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getBlock(ctx, index)
}

func (s *Store) getBlock(ctx context.Context, index int64) (ledger.Block, error) {
	var (
		b         ledger.Block
		timestamp string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT block_index, timestamp, hash, previous_hash, nonce FROM blocks WHERE block_index = ?",
		index,
	).Scan(&b.Index, &timestamp, &b.Hash, &b.PreviousHash, &b.Nonce)
	if err == sql.ErrNoRows {
		return ledger.Block{}, fmt.Errorf("block %d not found", index)
	}
	if err != nil {
		return ledger.Block{}, fmt.Errorf("failed to load block %d: %w", index, err)
	}
	b.Timestamp, _ = time.Parse(time.RFC3339, timestamp)

	b.Entries, err = s.queryDistributions(ctx,
		distributionSelect+" WHERE block_index = ? ORDER BY rowid ASC", index)
	if err != nil {
		return ledger.Block{}, err
	}
	return b, nil
}

func (s *Store) BlockCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blocks").Scan(&count)
	return count, err
}

func (s *Store) GetDistribution(ctx context.Context, id ration.DistributionID) (ration.DistributionEntry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blockIndex int64
	err := s.db.QueryRowContext(ctx,
		"SELECT block_index FROM distributions WHERE id = ?", id).Scan(&blockIndex)
	if err == sql.ErrNoRows {
		return ration.DistributionEntry{}, 0, ration.ErrDistributionNotFound
	}
	if err != nil {
		return ration.DistributionEntry{}, 0, fmt.Errorf("failed to look up distribution: %w", err)
	}

	entries, err := s.queryDistributions(ctx, distributionSelect+" WHERE id = ?", id)
	if err != nil {
		return ration.DistributionEntry{}, 0, err
	}
	return entries[0], blockIndex, nil
}

func (s *Store) ListDistributions(ctx context.Context, id ration.HouseholdID, limit int) ([]ration.DistributionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	return s.queryDistributions(ctx,
		distributionSelect+" WHERE household_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?",
		id, limit)
}

const distributionSelect = `
	SELECT id, household_id, member_id, reservation_id, items_json,
	       total_amount, payment_method, timestamp, content_hash, previous_hash
	FROM distributions`

func (s *Store) queryDistributions(ctx context.Context, query string, args ...any) ([]ration.DistributionEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distributions: %w", err)
	}
	defer rows.Close()

	var out []ration.DistributionEntry
	for rows.Next() {
		var (
			e             ration.DistributionEntry
			memberID      sql.NullString
			reservationID sql.NullString
			itemsJSON     string
			total         string
			tstamp        string
		)
		if err := rows.Scan(&e.ID, &e.HouseholdID, &memberID, &reservationID,
			&itemsJSON, &total, &e.PaymentMethod, &tstamp, &e.ContentHash, &e.PreviousHash); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		if err := json.Unmarshal([]byte(itemsJSON), &e.Items); err != nil {
			return nil, fmt.Errorf("corrupt items for distribution %s: %w", e.ID, err)
		}
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for distribution %s: %w", e.ID, err)
		}
		e.MemberID = ration.MemberID(memberID.String)
		e.ReservationID = ration.ReservationID(reservationID.String)
		e.TotalAmount = amount
		e.Timestamp, _ = time.Parse(time.RFC3339, tstamp)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
