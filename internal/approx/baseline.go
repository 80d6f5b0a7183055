package approx

import (
	"math/rand"

	"github.com/chessrl/core/internal/codec"
	"github.com/chessrl/core/internal/domain"
)

// Random is a fixed Approximator that scores every legal action
// uniformly; it is the weakest member of the opponent pool, grounded on
// hiveGo shipping trivial scorers (e.g. a random player) alongside its
// trained backends behind the same ai.BoardScorer interface.
type Random struct{}

var _ Approximator = Random{}

func (Random) Mode() Mode { return ModeValue }

func (Random) Forward(state []float32) ([]float32, error) {
	return make([]float32, codec.ActionSpaceSize), nil
}

func (Random) SelectAction(state []float32, legalMask []bool, explorationRate float64, rng *rand.Rand) (int, error) {
	legal := legalIndices(legalMask)
	if len(legal) == 0 {
		return 0, errNoLegalActions
	}
	return legal[rng.Intn(len(legal))], nil
}

func (Random) TrainBatch(batch domain.Batch) (domain.UpdateResult, error) {
	return domain.UpdateResult{}, errBaselineNotTrainable
}

func (Random) Snapshot() ([]byte, error) { return []byte("random"), nil }
func (Random) Restore([]byte) error      { return nil }
func (Random) ResetOptimizerState()      {}
func (Random) SetExplorationRate(float64) {}

// pieceValue is the standard material value of pieceOrder's six piece
// types (P N B R Q K); the king's entry is never scored since a legal
// move never captures one.
var pieceValue = [6]float32{1, 3, 3, 5, 9, 0}

// Material is a fixed Approximator that scores each action by the
// immediate material it captures, read directly off the feature vector's
// piece planes (codec.StateSize layout: [0:768) piece planes, [768) side
// to move) — a cheap non-learning baseline opponent (spec §4.8's
// fixed-baseline evaluation leg), mirroring hiveGo's linear (non-learned)
// scorer alongside its learned ones.
type Material struct{}

var _ Approximator = Material{}

func (Material) Mode() Mode { return ModeValue }

// Forward scores every (from, to) action by the value of whatever enemy
// piece, if any, occupies the to-square in state; quiet moves and moves
// into an empty square both score 0. This only needs the mover's
// pre-move state, unlike a true post-state evaluation, so it cannot see
// second-order effects (the capturing piece being recaptured, a
// promotion's added material); it is intentionally the cheapest
// non-random opponent-pool member, not a search-based evaluator.
func (Material) Forward(state []float32) ([]float32, error) {
	scores := make([]float32, codec.ActionSpaceSize)
	if len(state) < codec.StateSize {
		return scores, nil
	}

	enemyPlaneStart := 0
	if state[768] != 0 {
		// Black to move: White occupies planes [0:6).
		enemyPlaneStart = 0
	} else {
		// White to move: Black occupies planes [6:12).
		enemyPlaneStart = 6
	}

	squareValue := make([]float32, 64)
	for p := 0; p < 6; p++ {
		plane := enemyPlaneStart + p
		base := plane * 64
		for sq := 0; sq < 64; sq++ {
			if state[base+sq] != 0 {
				squareValue[sq] = pieceValue[p]
			}
		}
	}

	for from := 0; from < 64; from++ {
		for to := 0; to < 64; to++ {
			scores[from*64+to] = squareValue[to]
		}
	}
	return scores, nil
}

// SelectAction ranks legal actions by their Forward material score,
// breaking ties (including the common all-quiet-moves case) uniformly at
// random so Material does not always pick the same quiet move.
func (m Material) SelectAction(state []float32, legalMask []bool, explorationRate float64, rng *rand.Rand) (int, error) {
	legal := legalIndices(legalMask)
	if len(legal) == 0 {
		return 0, errNoLegalActions
	}
	scores, err := m.Forward(state)
	if err != nil {
		return 0, err
	}
	best := []int{legal[0]}
	bestScore := scores[legal[0]]
	for _, idx := range legal[1:] {
		switch {
		case scores[idx] > bestScore:
			bestScore = scores[idx]
			best = []int{idx}
		case scores[idx] == bestScore:
			best = append(best, idx)
		}
	}
	return best[rng.Intn(len(best))], nil
}

func (Material) TrainBatch(batch domain.Batch) (domain.UpdateResult, error) {
	return domain.UpdateResult{}, errBaselineNotTrainable
}

func (Material) Snapshot() ([]byte, error) { return []byte("material"), nil }
func (Material) Restore([]byte) error      { return nil }
func (Material) ResetOptimizerState()      {}
func (Material) SetExplorationRate(float64) {}

type errBaselineNotTrainableT struct{}

func (errBaselineNotTrainableT) Error() string { return "approx: baseline approximator is not trainable" }

var errBaselineNotTrainable = errBaselineNotTrainableT{}
