/*
Package ledger implements the append-only, hash-chained audit log.

PURPOSE:
  Every successful distribution is recorded in a block chained to its
  predecessor by hash. The chain has a single writer and a single copy:
  this is a tamper-evident log for independent recomputation, not a
  distributed consensus system.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No block is ever removed or mutated
  2. LINKED: block[i].PreviousHash == Hash(block[i-1]) for all i > 0
  3. ROOTED: Exactly one genesis block (index 0, empty entries, fixed hash)

HASHING:
  Block hashes are SHA-256 over a canonical serialization of
  (index, timestamp, entries, previous hash, nonce). Mining finds a nonce
  whose hash carries a configurable number of leading zero hex characters;
  the default difficulty is low since the proof-of-work step is a write
  throttle, not a security boundary.
*/
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/smartration/ration-engine/ration"
)

// GenesisHash is the well-known hash of the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// DefaultDifficulty is the number of leading zero hex characters a mined
// block hash must carry.
const DefaultDifficulty = 2

// Block is one unit of the chain: a batch of distribution entries plus
// linkage and proof metadata.
type Block struct {
	Index        int64                      `json:"index"`
	Timestamp    time.Time                  `json:"timestamp"`
	Entries      []ration.DistributionEntry `json:"entries"`
	Hash         string                     `json:"hash"`
	PreviousHash string                     `json:"previous_hash"`
	Nonce        int64                      `json:"nonce"`
}

// Genesis returns the fixed initial block of every chain.
func Genesis() Block {
	return Block{
		Index:        0,
		Timestamp:    time.Unix(0, 0).UTC(),
		Entries:      nil,
		Hash:         GenesisHash,
		PreviousHash: "",
		Nonce:        0,
	}
}

// hashedBlock is the canonical serialization the block hash covers. Entries
// are reduced to their content hashes: entry contents are independently
// verifiable via their own hash, and this keeps block hashing stable across
// storage round-trips.
type hashedBlock struct {
	Index        int64    `json:"index"`
	Timestamp    int64    `json:"timestamp"`
	Entries      []string `json:"entries"`
	PreviousHash string   `json:"previous_hash"`
	Nonce        int64    `json:"nonce"`
}

// ComputeHash returns the block's SHA-256 hash from its current fields.
func (b *Block) ComputeHash() string {
	hb := hashedBlock{
		Index:        b.Index,
		Timestamp:    b.Timestamp.UTC().Unix(),
		PreviousHash: b.PreviousHash,
		Nonce:        b.Nonce,
	}
	for _, e := range b.Entries {
		hb.Entries = append(hb.Entries, e.ContentHash)
	}
	raw, _ := json.Marshal(hb)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Mine searches for a nonce whose hash meets the difficulty target and sets
// Hash/Nonce on the block. Difficulty <= 0 skips the search and just seals
// the block with its hash.
func (b *Block) Mine(difficulty int) {
	if difficulty <= 0 {
		b.Hash = b.ComputeHash()
		return
	}
	target := strings.Repeat("0", difficulty)
	b.Nonce = 0
	for {
		h := b.ComputeHash()
		if strings.HasPrefix(h, target) {
			b.Hash = h
			return
		}
		b.Nonce++
	}
}

// Sealed reports whether the stored hash matches a recomputation. Genesis
// is sealed by definition: its hash is fixed, not computed.
func (b *Block) Sealed() bool {
	if b.Index == 0 {
		return b.Hash == GenesisHash
	}
	return b.Hash == b.ComputeHash()
}
