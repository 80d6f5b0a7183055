// Package approx implements the Approximator (C3): a parameterized
// function over FeatureVectors producing per-action scores, with batched
// training, snapshotting, and exploration control, per spec §4.3.
package approx

import (
	"math"
	"math/rand"

	"github.com/chessrl/core/internal/domain"
)

// Mode tags how forward()'s output vector is interpreted: as Q-values
// (value-based, ε-greedy selection) or as logits (policy-based, masked
// softmax sampling). This is the tagged-variant expressed as an enum
// rather than a class hierarchy (design note a).
type Mode int

const (
	ModeValue Mode = iota
	ModePolicy
)

func (m Mode) String() string {
	if m == ModePolicy {
		return "policy"
	}
	return "value"
}

// Approximator is the capability set of spec §4.3 / §6. A gomlx-backed
// network and any number of fixed baselines (random, material-only) all
// implement it, so the opponent pool and the evaluation phase can treat
// every opponent uniformly.
type Approximator interface {
	Mode() Mode

	// Forward returns a vector of length ActionSpaceSize of scores.
	Forward(state []float32) ([]float32, error)

	// SelectAction returns an ActionIndex permitted by legalMask.
	SelectAction(state []float32, legalMask []bool, explorationRate float64, rng *rand.Rand) (int, error)

	// TrainBatch applies one optimizer step and returns its health
	// metrics. Approximators that are not trainable (baselines) return
	// an error; callers only call TrainBatch on the main learner.
	TrainBatch(batch domain.Batch) (domain.UpdateResult, error)

	// Snapshot and Restore exchange an opaque parameter blob sufficient
	// to reconstruct identical forward outputs.
	Snapshot() ([]byte, error)
	Restore(blob []byte) error

	ResetOptimizerState()
	SetExplorationRate(rate float64)
}

// SelectFromScores implements the ε-greedy / masked-softmax selection
// contract shared by every Approximator implementation: value mode picks
// uniformly at random among legal actions with probability
// explorationRate, else the legal action with the highest score; policy
// mode always samples from a masked softmax over scores (exploration is
// folded into the distribution's temperature by the caller).
func SelectFromScores(mode Mode, scores []float32, legalMask []bool, explorationRate float64, rng *rand.Rand) (int, error) {
	legal := legalIndices(legalMask)
	if len(legal) == 0 {
		return 0, errNoLegalActions
	}

	if mode == ModeValue {
		if rng.Float64() < explorationRate {
			return legal[rng.Intn(len(legal))], nil
		}
		best := legal[0]
		bestScore := scores[best]
		for _, idx := range legal[1:] {
			if scores[idx] > bestScore {
				bestScore = scores[idx]
				best = idx
			}
		}
		return best, nil
	}

	// Policy mode: masked softmax sample.
	probs := make([]float64, len(legal))
	var maxLogit float32 = scores[legal[0]]
	for _, idx := range legal[1:] {
		if scores[idx] > maxLogit {
			maxLogit = scores[idx]
		}
	}
	var sum float64
	for i, idx := range legal {
		e := math.Exp(float64(scores[idx] - maxLogit))
		probs[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) {
		return legal[rng.Intn(len(legal))], nil
	}
	target := rng.Float64() * sum
	var cumulative float64
	for i, idx := range legal {
		cumulative += probs[i]
		if cumulative >= target {
			return idx, nil
		}
	}
	return legal[len(legal)-1], nil
}

func legalIndices(mask []bool) []int {
	out := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

var errNoLegalActions = errNoLegal{}

type errNoLegal struct{}

func (errNoLegal) Error() string { return "approx: no legal actions in mask" }
