package approx_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/xla"

	"github.com/chessrl/core/internal/approx"
	"github.com/chessrl/core/internal/codec"
	"github.com/chessrl/core/internal/domain"
)

func TestNetworkForwardShape(t *testing.T) {
	net := approx.NewNetwork(approx.ModeValue, 2, 32, 1e-3, 0.99, 5.0)
	scores, err := net.Forward(make([]float32, codec.StateSize))
	require.NoError(t, err)
	assert.Len(t, scores, codec.ActionSpaceSize)
}

func TestNetworkSelectActionRespectsLegalMask(t *testing.T) {
	net := approx.NewNetwork(approx.ModeValue, 2, 32, 1e-3, 0.99, 5.0)
	net.SetExplorationRate(0)

	mask := make([]bool, codec.ActionSpaceSize)
	mask[10] = true
	mask[20] = true

	rng := rand.New(rand.NewSource(1))
	idx, err := net.SelectAction(make([]float32, codec.StateSize), mask, 0, rng)
	require.NoError(t, err)
	assert.Contains(t, []int{10, 20}, idx)
}

func TestNetworkSnapshotRestoreRoundTrip(t *testing.T) {
	net := approx.NewNetwork(approx.ModeValue, 2, 32, 1e-3, 0.99, 5.0)
	state := make([]float32, codec.StateSize)

	before, err := net.Forward(state)
	require.NoError(t, err)

	blob, err := net.Snapshot()
	require.NoError(t, err)

	other := approx.NewNetwork(approx.ModeValue, 2, 32, 1e-3, 0.99, 5.0)
	require.NoError(t, other.Restore(blob))

	after, err := other.Forward(state)
	require.NoError(t, err)

	require.Len(t, before, len(after))
	for i := range before {
		assert.InDelta(t, before[i], after[i], 1e-5)
	}
}

func TestNetworkTrainBatchReturnsFiniteUpdate(t *testing.T) {
	net := approx.NewNetwork(approx.ModeValue, 2, 32, 1e-3, 0.99, 5.0)

	batch := domain.Batch{Experiences: []domain.Experience{
		{
			State:     make([]float32, codec.StateSize),
			Action:    0,
			Reward:    0.1,
			NextState: make([]float32, codec.StateSize),
			Terminal:  true,
		},
	}}

	result, err := net.TrainBatch(batch)
	require.NoError(t, err)
	assert.True(t, result.IsFinite())
}
