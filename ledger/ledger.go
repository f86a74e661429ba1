/*
ledger.go - Chain head management, append, and verification

PURPOSE:
  The Ledger wraps a ChainStore with the operations the engine needs:
  append an entry as a new block, look up entries by distribution id, and
  verify entry and chain integrity.

APPEND ORDERING:
  The chain head is the single serialization point for the whole log.
  Append reads the current head, builds a candidate block referencing it,
  and attempts a conditional insert keyed on the head observed at read
  time. A concurrent append makes the insert fail with
  ErrConcurrentModification and the loop retries with the new head. The
  critical section is the head pointer, never the whole table.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/smartration/ration-engine/ration"
)

// appendRetries bounds the compare-and-swap loop on the chain head.
const appendRetries = 8

// ChainStore persists blocks. Implementations must reject an AppendBlock
// whose index already exists (uniqueness on the block index) with
// ErrConcurrentModification, which is what makes the head CAS work.
type ChainStore interface {
	// Head returns the newest block. A fresh store returns the genesis
	// block, persisting it first if needed.
	Head(ctx context.Context) (Block, error)

	// AppendBlock inserts the block at its index. Returns
	// ErrConcurrentModification if that index is already taken.
	AppendBlock(ctx context.Context, b Block) error

	// GetBlock returns the block at the given index.
	GetBlock(ctx context.Context, index int64) (Block, error)

	// BlockCount returns the chain length including genesis.
	BlockCount(ctx context.Context) (int64, error)

	// GetDistribution returns the stored entry and the index of its block,
	// or ration.ErrDistributionNotFound.
	GetDistribution(ctx context.Context, id ration.DistributionID) (ration.DistributionEntry, int64, error)

	// ListDistributions returns a household's entries, newest first.
	ListDistributions(ctx context.Context, id ration.HouseholdID, limit int) ([]ration.DistributionEntry, error)
}

// Ledger appends distribution entries to the hash chain and verifies it.
type Ledger struct {
	store      ChainStore
	difficulty int
	now        func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDifficulty overrides the proof-of-work difficulty.
func WithDifficulty(d int) Option {
	return func(l *Ledger) { l.difficulty = d }
}

// WithClock overrides the block timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger over the given store.
func New(store ChainStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		difficulty: DefaultDifficulty,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records the entry as a new single-entry block and returns it. The
// entry's PreviousHash is set to the head hash observed inside the CAS loop
// so entry linkage and block linkage always agree.
func (l *Ledger) Append(ctx context.Context, entry ration.DistributionEntry) (Block, error) {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		head, err := l.store.Head(ctx)
		if err != nil {
			return Block{}, fmt.Errorf("read chain head: %w", err)
		}

		entry.PreviousHash = head.Hash
		block := Block{
			Index:        head.Index + 1,
			Timestamp:    l.now().UTC(),
			Entries:      []ration.DistributionEntry{entry},
			PreviousHash: head.Hash,
		}
		block.Mine(l.difficulty)

		err = l.store.AppendBlock(ctx, block)
		if err == nil {
			return block, nil
		}
		if !ration.IsRetryable(err) {
			return Block{}, fmt.Errorf("append block %d: %w", block.Index, err)
		}
		lastErr = err
	}
	return Block{}, fmt.Errorf("append retries exhausted: %w", lastErr)
}

// Head returns the current chain head.
func (l *Ledger) Head(ctx context.Context) (Block, error) {
	return l.store.Head(ctx)
}

// GetByID returns the stored entry for a distribution id.
func (l *Ledger) GetByID(ctx context.Context, id ration.DistributionID) (ration.DistributionEntry, error) {
	entry, _, err := l.store.GetDistribution(ctx, id)
	return entry, err
}

// History returns a household's entries, newest first.
func (l *Ledger) History(ctx context.Context, id ration.HouseholdID, limit int) ([]ration.DistributionEntry, error) {
	return l.store.ListDistributions(ctx, id, limit)
}

// =============================================================================
// VERIFICATION
// =============================================================================

// VerificationResult distinguishes "not found" from "found but tampered".
type VerificationResult struct {
	DistributionID ration.DistributionID `json:"distribution_id"`
	Found          bool                  `json:"found"`
	EntryValid     bool                  `json:"entry_valid"`
	ChainValid     bool                  `json:"chain_valid"`
	BlockIndex     int64                 `json:"block_index,omitempty"`
	Verified       bool                  `json:"verified"`
}

// Verify recomputes the entry's content hash from its stored fields and
// walks the chain from genesis to the entry's block, confirming each
// previous-hash pointer. Integrity failures are reported, never silently
// ignored, and never block further appends.
func (l *Ledger) Verify(ctx context.Context, id ration.DistributionID) (VerificationResult, error) {
	result := VerificationResult{DistributionID: id}

	entry, blockIndex, err := l.store.GetDistribution(ctx, id)
	if ration.IsNotFound(err) {
		return result, nil
	}
	if err != nil {
		return result, err
	}

	result.Found = true
	result.BlockIndex = blockIndex
	result.EntryValid = entry.VerifyContent()

	if err := l.validateThrough(ctx, blockIndex); err == nil {
		result.ChainValid = true
	}

	result.Verified = result.EntryValid && result.ChainValid
	return result, nil
}

// ValidateChain walks the entire chain from genesis to head. Returns nil
// when intact, or a *ration.ChainIntegrityError naming the first bad block.
func (l *Ledger) ValidateChain(ctx context.Context) error {
	head, err := l.store.Head(ctx)
	if err != nil {
		return err
	}
	return l.validateThrough(ctx, head.Index)
}

func (l *Ledger) validateThrough(ctx context.Context, lastIndex int64) error {
	prev, err := l.store.GetBlock(ctx, 0)
	if err != nil {
		return err
	}
	if prev.Hash != GenesisHash {
		return &ration.ChainIntegrityError{BlockIndex: 0, Reason: "genesis hash mismatch"}
	}

	for i := int64(1); i <= lastIndex; i++ {
		block, err := l.store.GetBlock(ctx, i)
		if err != nil {
			return err
		}
		if block.PreviousHash != prev.Hash {
			return &ration.ChainIntegrityError{BlockIndex: i, Reason: "previous-hash pointer does not match prior block"}
		}
		if !block.Sealed() {
			return &ration.ChainIntegrityError{BlockIndex: i, Reason: "stored hash does not match recomputation"}
		}
		for j := range block.Entries {
			if !block.Entries[j].VerifyContent() {
				return &ration.ChainIntegrityError{
					BlockIndex: i,
					Reason:     fmt.Sprintf("entry %s fails content hash recomputation", block.Entries[j].ID),
				}
			}
		}
		prev = block
	}
	return nil
}
