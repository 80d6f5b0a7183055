// Package replay implements the Replay Store (C4): a bounded, curated
// ring buffer of EnhancedExperience with named sampling and eviction
// policies, per spec §4.4. It is an index-addressed arena (design
// notes): experiences live in a slice and eviction/sampling work on
// indices rather than pointers, so there is never aliasing between the
// buffer and a sampled Batch.
package replay

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/domain"
)

// Stats is the aggregate counters snapshot returned by Store.Stats.
type Stats struct {
	Size              int
	Capacity          int
	TotalIngested     int
	TotalEvicted      int
	DiscardedOverflow int
	OutcomeHistogram  map[string]int
	PhaseHistogram    map[string]int
	QualityBuckets    [10]int // [0,0.1) .. [0.9,1.0]
	SamplesServed     int
}

// Store is the Replay Store. All mutation happens under mu so ingest,
// eviction and sampling never interleave (spec §4.4: "ingest + eviction
// is one logical transaction").
type Store struct {
	mu       sync.RWMutex
	cfg      config.Config
	buf      []domain.EnhancedExperience
	rng      *rand.Rand
	nextSeq  uint64
	recentWidth int

	stats Stats
}

// New returns an empty Store governed by cfg's Store fields. evictionRNG
// is used only by the random cleanup strategy; pass a seeded *rand.Rand from internal/seeding for
// determinism (spec testable property 5).
func New(cfg config.Config, evictionRNG *rand.Rand) *Store {
	width := cfg.RecentWindow
	if width <= 0 {
		width = cfg.MaxExperienceBufferSize / 10
		if width == 0 {
			width = 1
		}
	}
	return &Store{
		cfg:         cfg,
		rng:         evictionRNG,
		recentWidth: width,
		stats: Stats{
			Capacity:         cfg.MaxExperienceBufferSize,
			OutcomeHistogram: make(map[string]int),
			PhaseHistogram:   make(map[string]int),
		},
	}
}

// Ingest appends batch, then evicts under cfg.CleanupStrategy until
// size <= capacity. The whole operation holds mu, so a concurrent Sample
// call never observes a partially evicted buffer.
func (s *Store) Ingest(batch []domain.EnhancedExperience, now time.Time) error {
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := s.cfg.MaxExperienceBufferSize
	if len(batch) > capacity {
		// Backpressure policy (§5): record a discard counter rather than
		// blocking the Orchestrator; which entries go is still decided by
		// evictLocked under cfg.CleanupStrategy.
		s.stats.DiscardedOverflow += len(batch) - capacity
	}

	for i := range batch {
		exp := batch[i]
		exp.IngestedAt = now
		exp.SetSequence(s.nextSeq)
		s.nextSeq++
		s.buf = append(s.buf, exp)
		s.stats.TotalIngested++
		s.recordHistograms(exp)
	}

	s.evictLocked()
	s.stats.Size = len(s.buf)
	return nil
}

func (s *Store) recordHistograms(exp domain.EnhancedExperience) {
	s.stats.OutcomeHistogram[exp.GameOutcome.String()]++
	s.stats.PhaseHistogram[exp.Phase.String()]++
	bucket := int(exp.QualityScore * 10)
	if bucket > 9 {
		bucket = 9
	}
	if bucket < 0 {
		bucket = 0
	}
	s.stats.QualityBuckets[bucket]++
}

// evictLocked reduces s.buf to at most capacity entries using
// cfg.CleanupStrategy. Caller must hold mu.
func (s *Store) evictLocked() {
	capacity := s.cfg.MaxExperienceBufferSize
	over := len(s.buf) - capacity
	if over <= 0 {
		return
	}
	s.stats.TotalEvicted += over

	switch s.cfg.CleanupStrategy {
	case config.CleanupOldestFirst:
		// buf is already in insertion order.
		s.buf = append([]domain.EnhancedExperience(nil), s.buf[over:]...)
	case config.CleanupLowestQuality:
		idx := make([]int, len(s.buf))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			ea, eb := s.buf[idx[a]], s.buf[idx[b]]
			if ea.QualityScore != eb.QualityScore {
				return ea.QualityScore < eb.QualityScore
			}
			return ea.Sequence() < eb.Sequence()
		})
		remove := make(map[int]bool, over)
		for _, i := range idx[:over] {
			remove[i] = true
		}
		kept := make([]domain.EnhancedExperience, 0, capacity)
		for i, exp := range s.buf {
			if !remove[i] {
				kept = append(kept, exp)
			}
		}
		s.buf = kept
	case config.CleanupRandom:
		idx := make([]int, len(s.buf))
		for i := range idx {
			idx[i] = i
		}
		s.rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		remove := make(map[int]bool, over)
		for _, i := range idx[:over] {
			remove[i] = true
		}
		kept := make([]domain.EnhancedExperience, 0, capacity)
		for i, exp := range s.buf {
			if !remove[i] {
				kept = append(kept, exp)
			}
		}
		s.buf = kept
	}
}

// Sample draws n Experience values under strategy. The result is a copy;
// mutating it never affects the Store (index-addressed arena design
// note).
func (s *Store) Sample(n int, strategy config.SamplingStrategy, rng *rand.Rand) domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 || n <= 0 {
		return domain.Batch{}
	}

	var indices []int
	switch strategy {
	case config.SampleRecent:
		indices = s.sampleRecentLocked(n, rng)
	case config.SampleMixed:
		half := n / 2
		indices = append(s.sampleUniformLocked(n-half, rng), s.sampleRecentLocked(half, rng)...)
	default:
		indices = s.sampleUniformLocked(n, rng)
	}

	s.stats.SamplesServed += len(indices)
	out := make([]domain.Experience, len(indices))
	for i, idx := range indices {
		e := s.buf[idx].Experience
		e.State = append([]float32(nil), e.State...)
		e.NextState = append([]float32(nil), e.NextState...)
		out[i] = e
	}
	return domain.Batch{Experiences: out}
}

// sampleUniformLocked draws n indices uniformly from the whole buffer,
// without replacement while n <= size; once n exceeds size every index
// has appeared once and the remainder is filled by sampling with
// replacement, per spec §4.4.
func (s *Store) sampleUniformLocked(n int, rng *rand.Rand) []int {
	size := len(s.buf)
	if n <= size {
		return rng.Perm(size)[:n]
	}
	idx := make([]int, n)
	copy(idx, rng.Perm(size))
	for i := size; i < n; i++ {
		idx[i] = rng.Intn(size)
	}
	return idx
}

// sampleRecentLocked mirrors sampleUniformLocked over the trailing
// recentWidth window instead of the whole buffer.
func (s *Store) sampleRecentLocked(n int, rng *rand.Rand) []int {
	size := len(s.buf)
	window := s.recentWidth
	if window > size {
		window = size
	}
	start := size - window

	if n <= window {
		perm := rng.Perm(window)[:n]
		idx := make([]int, n)
		for i, p := range perm {
			idx[i] = start + p
		}
		return idx
	}

	idx := make([]int, n)
	perm := rng.Perm(window)
	for i, p := range perm {
		idx[i] = start + p
	}
	for i := window; i < n; i++ {
		idx[i] = start + rng.Intn(window)
	}
	return idx
}

// Stats returns a copy of the current aggregate counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := s.stats
	cp.OutcomeHistogram = cloneIntMap(s.stats.OutcomeHistogram)
	cp.PhaseHistogram = cloneIntMap(s.stats.PhaseHistogram)
	return cp
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Size returns the current number of stored experiences.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}

// Cleanup forces eviction down to capacity outside of an ingest call;
// exposed for the Orchestrator's memory_cleanup_interval policy.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	s.stats.Size = len(s.buf)
}
