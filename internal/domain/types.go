// Package domain holds the data types shared across the training-cycle
// engine's components (the Codec, Reward Shaper, Replay Store, Self-Play
// Runner, Training Validator, Checkpoint Manager and Cycle Orchestrator).
//
// Keeping them in one leaf package, rather than letting each component
// define its own, is what breaks the Agent/Environment/Validator cyclic
// references the Kotlin source had: every component downward from the
// Orchestrator depends on domain, never on each other's packages.
package domain

import (
	"fmt"
	"time"

	"github.com/chessrl/core/internal/chesstypes"
)

// Phase partitions a game by how far along it is.
type Phase int

const (
	PhaseEarly Phase = iota
	PhaseMid
	PhaseEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseEarly:
		return "early"
	case PhaseMid:
		return "mid"
	case PhaseEnd:
		return "end"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PhaseOf classifies a move number within a game of the given (assumed)
// length into early/mid/end thirds. moveNumber is 1-based.
func PhaseOf(moveNumber, maxGameLength int) Phase {
	if maxGameLength <= 0 {
		maxGameLength = 1
	}
	frac := float64(moveNumber) / float64(maxGameLength)
	switch {
	case frac < 1.0/3.0:
		return PhaseEarly
	case frac < 2.0/3.0:
		return PhaseMid
	default:
		return PhaseEnd
	}
}

// TerminationReason distinguishes why a game/episode stopped.
type TerminationReason int

const (
	TerminationGameEnded TerminationReason = iota
	TerminationStepLimit
	TerminationError
)

func (t TerminationReason) String() string {
	switch t {
	case TerminationGameEnded:
		return "game_ended"
	case TerminationStepLimit:
		return "step_limit"
	case TerminationError:
		return "error"
	default:
		return fmt.Sprintf("termination(%d)", int(t))
	}
}

// Experience is the basic (s,a,r,s',done) tuple.
type Experience struct {
	State     []float32
	Action    int
	Reward    float32
	NextState []float32
	Terminal  bool
}

// EnhancedExperience is what the Self-Play Runner emits: a basic
// Experience plus the game metadata the Replay Store needs for curation.
type EnhancedExperience struct {
	Experience

	GameID            string
	MoveNumber        int
	PlayerSide        chesstypes.Side
	GameOutcome       chesstypes.Outcome
	TerminationReason TerminationReason
	QualityScore      float32
	Phase             Phase

	// IngestedAt is set by the Replay Store on ingest. "recent" sampling
	// and oldest_first eviction use the buffer's insertion order, not
	// this timestamp.
	IngestedAt time.Time
	// sequence is the Replay Store's ingest-order counter; lowest_quality
	// eviction uses it to evict the oldest of equal-quality experiences
	// first.
	sequence uint64
}

// SetSequence stamps the Replay Store's monotonic ingest counter onto the
// experience, used to break lowest_quality eviction ties.
func (e *EnhancedExperience) SetSequence(seq uint64) { e.sequence = seq }

// Sequence returns the ingest-order counter set by SetSequence.
func (e EnhancedExperience) Sequence() uint64 { return e.sequence }

// Validate checks the invariants declared in spec §3.
func (e EnhancedExperience) Validate() error {
	if e.MoveNumber < 1 {
		return fmt.Errorf("domain: move_number must be >= 1, got %d", e.MoveNumber)
	}
	if e.QualityScore < 0 || e.QualityScore > 1 {
		return fmt.Errorf("domain: quality_score must be in [0,1], got %f", e.QualityScore)
	}
	if e.Terminal && e.GameOutcome == chesstypes.Ongoing {
		return fmt.Errorf("domain: terminal experience must not have outcome=ongoing")
	}
	return nil
}

// QualityScore computes the deterministic quality_score of spec §3 from
// the game outcome, move number within the game, and the reward received.
// Decisive, later-game, higher-magnitude-reward experiences score higher;
// this is the default curation signal the lowest_quality eviction strategy
// sorts on.
func QualityScore(outcome chesstypes.Outcome, moveNumber, gameLength int, reward float32) float32 {
	base := float32(0.5)
	switch outcome {
	case chesstypes.WhiteWins, chesstypes.BlackWins:
		base = 0.7
	case chesstypes.Draw:
		base = 0.4
	}
	progress := float32(0)
	if gameLength > 0 {
		progress = float32(moveNumber) / float32(gameLength)
		if progress > 1 {
			progress = 1
		}
	}
	magnitude := reward
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude > 1 {
		magnitude = 1
	}
	score := base*0.6 + progress*0.25 + magnitude*0.15
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// GameResult is the outcome of one self-play game.
type GameResult struct {
	GameID            string
	Length            int
	Outcome           chesstypes.Outcome
	TerminationReason TerminationReason
	Duration          time.Duration
	FinalPosition     chesstypes.Board
	Experiences       []EnhancedExperience
}

// Validate checks experiences.size == length.
func (g GameResult) Validate() error {
	if len(g.Experiences) != g.Length {
		return fmt.Errorf("domain: GameResult %s has %d experiences but length=%d",
			g.GameID, len(g.Experiences), g.Length)
	}
	return nil
}

// Batch is a sized, shape-homogeneous set of Experience drawn for training.
type Batch struct {
	Experiences []Experience
}

func (b Batch) Size() int { return len(b.Experiences) }

// UpdateResult is what one training step of the Approximator returns.
type UpdateResult struct {
	Loss          float32
	GradientNorm  float32
	PolicyEntropy float32
	QMean         float32
	TargetMean    float32
}

// IsFinite reports whether every field of UpdateResult is a finite number.
func (u UpdateResult) IsFinite() bool {
	return isFinite32(u.Loss) && isFinite32(u.GradientNorm) &&
		isFinite32(u.PolicyEntropy) && isFinite32(u.QMean) && isFinite32(u.TargetMean)
}

func isFinite32(f float32) bool {
	return f == f && f > negInf && f < posInf
}

const (
	posInf = float32(1) / float32(0)
	negInf = float32(-1) / float32(0)
)

// ConvergenceStatus classifies the cross-cycle training trend (§4.6).
type ConvergenceStatus int

const (
	ConvergenceInsufficientData ConvergenceStatus = iota
	ConvergenceImproving
	ConvergenceStagnant
	ConvergenceDeclining
	ConvergenceConverged
	ConvergenceUnstable
)

func (c ConvergenceStatus) String() string {
	switch c {
	case ConvergenceInsufficientData:
		return "insufficient_data"
	case ConvergenceImproving:
		return "improving"
	case ConvergenceStagnant:
		return "stagnant"
	case ConvergenceDeclining:
		return "declining"
	case ConvergenceConverged:
		return "converged"
	case ConvergenceUnstable:
		return "unstable"
	default:
		return fmt.Sprintf("convergence(%d)", int(c))
	}
}

// SelfPlayStats aggregates one cycle's self-play phase.
type SelfPlayStats struct {
	TotalGames       int
	TotalExperiences int
	OutcomeHistogram map[chesstypes.Outcome]int
	AverageLength    float64
	WallTime         time.Duration
	DiscardedGames   int
}

// TrainingStats aggregates one cycle's training phase.
type TrainingStats struct {
	BatchesAttempted int
	BatchesAccepted  int
	BatchesRejected  int
	AverageLoss      float32
	LastUpdate       UpdateResult
}

// EvaluationStats aggregates one cycle's evaluation phase.
type EvaluationStats struct {
	GamesPlayed      int
	WinRate          float64
	DrawRate         float64
	LossRate         float64
	PerformanceScore float64

	// BaselineEvaluations holds the same aggregate played against each
	// fixed opponent-pool baseline (e.g. "random", "material"), keyed by
	// baseline name, alongside the primary match against the frozen
	// opponent snapshot.
	BaselineEvaluations map[string]EvaluationStats
}

// ScheduleSnapshot records the adaptive scheduling knobs in effect for a cycle.
type ScheduleSnapshot struct {
	GamesPerCycle  int
	TrainingRatio  float64
}

// CycleRecord is the per-cycle aggregate the Orchestrator produces.
type CycleRecord struct {
	Cycle              int
	SelfPlay           SelfPlayStats
	Training           TrainingStats
	Evaluation         EvaluationStats
	Schedule           ScheduleSnapshot
	ConvergenceStatus  ConvergenceStatus
	CycleDuration      time.Duration
}
