package selfplay_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessrl/core/internal/approx"
	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/chesstypes/simplerules"
	"github.com/chessrl/core/internal/codec"
	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/reward"
	"github.com/chessrl/core/internal/seeding"
	"github.com/chessrl/core/internal/selfplay"
)

func newTestRunner(maxSteps, maxConcurrent int) *selfplay.Runner {
	cfg := config.Default()
	cfg.MaxStepsPerGame = maxSteps
	cfg.MaxConcurrentGames = maxConcurrent
	rules := simplerules.Engine{}
	cdc := codec.New(rules)
	shaper := reward.New(cfg)
	return selfplay.New(rules, cdc, shaper, cfg)
}

func TestPlayGamesProducesRequestedCountAndOrder(t *testing.T) {
	runner := newTestRunner(6, 4)
	seeds := seeding.NewManager(1)

	result, err := runner.PlayGames(context.Background(), approx.Random{}, approx.Random{}, 8, 1, seeds, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, result.Stats.TotalGames)
	assert.Len(t, result.Games, 8)
	for i := 1; i < len(result.Games); i++ {
		assert.Less(t, result.Games[i-1].GameID, result.Games[i].GameID)
	}
}

func TestPlayGamesStepLimitedGameGetsStepLimitReward(t *testing.T) {
	runner := newTestRunner(1, 1)
	seeds := seeding.NewManager(1)

	result, err := runner.PlayGames(context.Background(), approx.Random{}, approx.Random{}, 1, 1, seeds, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Games, 1)

	g := result.Games[0]
	require.NotEmpty(t, g.Experiences)
	last := g.Experiences[len(g.Experiences)-1]
	cfg := config.Default()
	if last.TerminationReason == 1 { // domain.TerminationStepLimit
		assert.NotEqual(t, float32(cfg.Draw), last.Reward)
		assert.Equal(t, chesstypes.Draw, last.GameOutcome)
	}
}

func TestPlayGamesDeterministicForSameSeedAndCycle(t *testing.T) {
	seeds := seeding.NewManager(99)

	a, err := newTestRunner(4, 2).PlayGames(context.Background(), approx.Random{}, approx.Random{}, 4, 1, seeds, nil, nil)
	require.NoError(t, err)
	b, err := newTestRunner(4, 2).PlayGames(context.Background(), approx.Random{}, approx.Random{}, 4, 1, seeds, nil, nil)
	require.NoError(t, err)

	require.Equal(t, len(a.Games), len(b.Games))
	for i := range a.Games {
		assert.Equal(t, a.Games[i].GameID, b.Games[i].GameID)
		assert.Equal(t, a.Games[i].Outcome, b.Games[i].Outcome)
		assert.Equal(t, a.Games[i].Length, b.Games[i].Length)
		for j := range a.Games[i].Experiences {
			ea, eb := a.Games[i].Experiences[j], b.Games[i].Experiences[j]
			assert.Equal(t, ea.Action, eb.Action)
			assert.Equal(t, ea.Reward, eb.Reward)
			assert.Equal(t, ea.Terminal, eb.Terminal)
		}
	}
}

func TestPlayGamesCancellationDiscardsInFlightGames(t *testing.T) {
	runner := newTestRunner(1000, 4)
	seeds := seeding.NewManager(1)

	done := make(chan struct{})
	close(done)

	result, err := runner.PlayGames(context.Background(), approx.Random{}, approx.Random{}, 4, 1, seeds, nil, done)
	require.NoError(t, err)
	assert.Empty(t, result.Games)
	assert.Equal(t, 4, result.Stats.DiscardedGames)
}
