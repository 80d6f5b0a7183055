// Package seeding provides the SeedManager value the Orchestrator owns
// and passes by reference into Self-Play Runner workers (design note b),
// replacing the Kotlin source's process-wide singleton seed state with an
// explicit, derivable value.
package seeding

import (
	"hash/fnv"
	"math/rand"
)

// Manager derives per-game and per-purpose RNGs from a single master
// seed. It carries no mutable state itself beyond the master seed, so
// copying it is always safe and concurrent derivation from many
// goroutines requires no lock.
type Manager struct {
	masterSeed int64
}

// NewManager returns a Manager rooted at masterSeed.
func NewManager(masterSeed int64) Manager {
	return Manager{masterSeed: masterSeed}
}

// MasterSeed returns the root seed this Manager was constructed with.
func (m Manager) MasterSeed() int64 { return m.masterSeed }

// ForGame derives a deterministic RNG for the given game id, per
// spec §4.5 step 2: "a per-game RNG derived from (master_seed, game_id)".
func (m Manager) ForGame(gameID string) *rand.Rand {
	return rand.New(rand.NewSource(m.derive(gameID)))
}

// ForPurpose derives a deterministic RNG for a named, non-game purpose
// (e.g. store eviction's "random" strategy, or side assignment), so two
// different call sites never silently share a stream.
func (m Manager) ForPurpose(purpose string) *rand.Rand {
	return rand.New(rand.NewSource(m.derive("purpose:" + purpose)))
}

func (m Manager) derive(key string) int64 {
	h := fnv.New64a()
	// io.Writer on a hash.Hash64 never errors; the two writes below are
	// intentionally unchecked.
	_, _ = h.Write([]byte(key))
	var seedBytes [8]byte
	s := uint64(m.masterSeed)
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(s >> (8 * i))
	}
	_, _ = h.Write(seedBytes[:])
	return int64(h.Sum64())
}
