package replay_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/domain"
	"github.com/chessrl/core/internal/replay"
)

func makeExperience(seq int, quality float32, outcome chesstypes.Outcome) domain.EnhancedExperience {
	return domain.EnhancedExperience{
		Experience: domain.Experience{
			State:     []float32{float32(seq)},
			Action:    seq,
			Reward:    0.1,
			NextState: []float32{float32(seq) + 1},
			Terminal:  outcome != chesstypes.Ongoing,
		},
		GameID:       "game",
		MoveNumber:   seq + 1,
		PlayerSide:   chesstypes.White,
		GameOutcome:  outcome,
		QualityScore: quality,
		Phase:        domain.PhaseMid,
	}
}

func TestIngestRespectsCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.MaxExperienceBufferSize = 50
	cfg.CleanupStrategy = config.CleanupOldestFirst
	store := replay.New(cfg, rand.New(rand.NewSource(1)))

	batch := make([]domain.EnhancedExperience, 100)
	for i := range batch {
		batch[i] = makeExperience(i, 0.5, chesstypes.WhiteWins)
	}
	require.NoError(t, store.Ingest(batch, time.Now()))

	assert.Equal(t, 50, store.Size())
	stats := store.Stats()
	assert.Equal(t, 100, stats.TotalIngested)
	assert.Equal(t, 50, stats.TotalEvicted)
}

func TestLowestQualityEvictionRemovesExactKSmallest(t *testing.T) {
	cfg := config.Default()
	cfg.MaxExperienceBufferSize = 5
	cfg.CleanupStrategy = config.CleanupLowestQuality
	store := replay.New(cfg, rand.New(rand.NewSource(1)))

	// Qualities 0..9; the store should keep exactly the 5 highest (5..9)
	// once 10 are ingested against a capacity of 5.
	batch := make([]domain.EnhancedExperience, 10)
	for i := range batch {
		batch[i] = makeExperience(i, float32(i)/10.0, chesstypes.Draw)
	}
	require.NoError(t, store.Ingest(batch, time.Now()))

	require.Equal(t, 5, store.Size())
	kept := store.Sample(5, config.SampleUniform, rand.New(rand.NewSource(2)))
	var actions []int
	for _, e := range kept.Experiences {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []int{5, 6, 7, 8, 9}, actions)
}

func TestLowestQualityEvictionTieBreakOnSequence(t *testing.T) {
	cfg := config.Default()
	cfg.MaxExperienceBufferSize = 2
	cfg.CleanupStrategy = config.CleanupLowestQuality
	store := replay.New(cfg, rand.New(rand.NewSource(1)))

	// Three experiences tied at the same quality score: the oldest
	// (lowest ingest sequence) must be evicted first.
	batch := []domain.EnhancedExperience{
		makeExperience(0, 0.5, chesstypes.Draw),
		makeExperience(1, 0.5, chesstypes.Draw),
		makeExperience(2, 0.5, chesstypes.Draw),
	}
	require.NoError(t, store.Ingest(batch, time.Now()))

	kept := store.Sample(2, config.SampleUniform, rand.New(rand.NewSource(2)))
	var actions []int
	for _, e := range kept.Experiences {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []int{1, 2}, actions)
}

func TestSampleWithReplacementWhenNExceedsSize(t *testing.T) {
	cfg := config.Default()
	cfg.MaxExperienceBufferSize = 100
	store := replay.New(cfg, rand.New(rand.NewSource(1)))

	batch := []domain.EnhancedExperience{
		makeExperience(0, 0.5, chesstypes.Draw),
		makeExperience(1, 0.5, chesstypes.Draw),
		makeExperience(2, 0.5, chesstypes.Draw),
	}
	require.NoError(t, store.Ingest(batch, time.Now()))

	out := store.Sample(10, config.SampleUniform, rand.New(rand.NewSource(7)))
	require.Len(t, out.Experiences, 10)
	for _, e := range out.Experiences {
		assert.Contains(t, []int{0, 1, 2}, e.Action)
	}
}

func TestSampleRecentWithReplacementWhenNExceedsWindow(t *testing.T) {
	cfg := config.Default()
	cfg.MaxExperienceBufferSize = 100
	cfg.RecentWindow = 3
	store := replay.New(cfg, rand.New(rand.NewSource(1)))

	batch := []domain.EnhancedExperience{
		makeExperience(0, 0.5, chesstypes.Draw),
		makeExperience(1, 0.5, chesstypes.Draw),
		makeExperience(2, 0.5, chesstypes.Draw),
	}
	require.NoError(t, store.Ingest(batch, time.Now()))

	out := store.Sample(8, config.SampleRecent, rand.New(rand.NewSource(7)))
	require.Len(t, out.Experiences, 8)
	for _, e := range out.Experiences {
		assert.Contains(t, []int{0, 1, 2}, e.Action)
	}
}

func TestSampleDeterministicForSameSeed(t *testing.T) {
	cfg := config.Default()
	cfg.MaxExperienceBufferSize = 100
	store := replay.New(cfg, rand.New(rand.NewSource(1)))

	batch := make([]domain.EnhancedExperience, 50)
	for i := range batch {
		batch[i] = makeExperience(i, 0.5, chesstypes.Draw)
	}
	require.NoError(t, store.Ingest(batch, time.Now()))

	a := store.Sample(10, config.SampleUniform, rand.New(rand.NewSource(42)))
	b := store.Sample(10, config.SampleUniform, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
}

func TestSampleReturnsCopy(t *testing.T) {
	cfg := config.Default()
	cfg.MaxExperienceBufferSize = 10
	store := replay.New(cfg, rand.New(rand.NewSource(1)))

	batch := []domain.EnhancedExperience{makeExperience(0, 0.5, chesstypes.Draw)}
	require.NoError(t, store.Ingest(batch, time.Now()))

	out := store.Sample(1, config.SampleUniform, rand.New(rand.NewSource(1)))
	out.Experiences[0].Reward = 999

	again := store.Sample(1, config.SampleUniform, rand.New(rand.NewSource(1)))
	assert.NotEqual(t, float32(999), again.Experiences[0].Reward)
}

func TestIngestRejectsInvalidExperience(t *testing.T) {
	cfg := config.Default()
	store := replay.New(cfg, rand.New(rand.NewSource(1)))

	bad := makeExperience(0, 0.5, chesstypes.Draw)
	bad.MoveNumber = 0 // invalid: must be >= 1
	err := store.Ingest([]domain.EnhancedExperience{bad}, time.Now())
	assert.Error(t, err)
}
