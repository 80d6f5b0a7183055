// Package reward implements the Reward Shaper (C2): it maps
// (pre-board, action, post-board, termination) to a finite scalar reward
// under the policy of spec §4.2.
//
// Reward-sign convention (spec §9 Open Question, resolved here and
// applied uniformly by internal/selfplay and internal/reward's tests):
// every reward this package returns is *from the mover's perspective* —
// the side that just played the move being rewarded. A checkmate that
// wins the game for the mover yields +Win; a checkmate the mover just
// walked into (i.e. status reports the opponent winning) yields +Loss
// (a negative number, since Loss is configured negative). Callers never
// need to flip sign based on color; they only ever ask "what did the
// side who just moved get".
package reward

import (
	"github.com/chewxy/math32"

	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/config"
)

// Shaper computes rewards under a fixed, immutable Config.
type Shaper struct {
	cfg config.Config
}

// New returns a Shaper bound to cfg's Rewards fields.
func New(cfg config.Config) *Shaper {
	return &Shaper{cfg: cfg}
}

// InvalidMove returns the reward for an action the rules engine rejected;
// the environment does not advance in this case (spec §4.2).
func (s *Shaper) InvalidMove() float32 {
	return float32(s.cfg.InvalidMoveReward)
}

// StepLimit returns the reward when an episode stops because
// max_steps_per_game was reached without a rules-engine terminal; it is
// deliberately distinct from Terminal's draw value (spec testable
// property 2).
func (s *Shaper) StepLimit(actualLength int) float32 {
	return s.normalize(float32(s.cfg.StepLimitPenalty), actualLength)
}

// Terminal returns the reward for a legitimate rules-engine ending
// (status.IsTerminal()), from mover's perspective, where mover is the
// side that just made the move that produced status.
func (s *Shaper) Terminal(status chesstypes.TerminalStatus, mover chesstypes.Side, actualLength int) float32 {
	outcome := status.Outcome()
	var base float32
	switch outcome {
	case chesstypes.Draw:
		base = float32(s.cfg.Draw)
	case chesstypes.WhiteWins:
		if mover == chesstypes.White {
			base = float32(s.cfg.Win)
		} else {
			base = float32(s.cfg.Loss)
		}
	case chesstypes.BlackWins:
		if mover == chesstypes.Black {
			base = float32(s.cfg.Win)
		} else {
			base = float32(s.cfg.Loss)
		}
	default:
		base = 0
	}
	return s.normalize(base, actualLength)
}

// normalize applies length normalization (spec §4.2) to a terminal-class
// reward when enabled: base * min(actualLength, max_game_length) /
// max_game_length, rewarding decisive short wins and penalizing long
// losses proportionally less as games get shorter.
func (s *Shaper) normalize(base float32, actualLength int) float32 {
	if !s.cfg.EnableGameLengthNormalization || s.cfg.MaxGameLength <= 0 {
		return base
	}
	length := actualLength
	if length > s.cfg.MaxGameLength {
		length = s.cfg.MaxGameLength
	}
	if length < 0 {
		length = 0
	}
	factor := float32(length) / float32(s.cfg.MaxGameLength)
	return base * factor
}

// Ongoing returns the reward for a non-terminal step: the configured
// step_penalty plus optional position-shaping terms when
// enable_position_rewards is set. pre and post are the boards before and
// after the move, mover is the side that made it.
func (s *Shaper) Ongoing(pre, post chesstypes.Board, mover chesstypes.Side) (float32, error) {
	r := float32(s.cfg.StepPenalty)
	if !s.cfg.EnablePositionRewards {
		return r, nil
	}
	preMaterial, err := materialBalance(pre)
	if err != nil {
		return 0, err
	}
	postMaterial, err := materialBalance(post)
	if err != nil {
		return 0, err
	}
	delta := postMaterial - preMaterial
	if mover == chesstypes.Black {
		delta = -delta
	}
	r += float32(s.cfg.MaterialWeight) * math32.Tanh(delta/maxMaterialSwing)

	preActivity, err := activity(pre)
	if err != nil {
		return 0, err
	}
	postActivity, err := activity(post)
	if err != nil {
		return 0, err
	}
	activityDelta := postActivity - preActivity
	if mover == chesstypes.Black {
		activityDelta = -activityDelta
	}
	r += float32(s.cfg.ActivityWeight) * math32.Tanh(activityDelta/maxActivitySwing)

	return r, nil
}

// maxMaterialSwing and maxActivitySwing bound the Tanh squashing so a
// single move's material/activity change saturates rather than
// dominating step_penalty regardless of weight configuration.
const (
	maxMaterialSwing = 9.0 // a queen's worth of material, in pawn units
	maxActivitySwing = 16.0
)

var pieceValue = map[byte]float32{
	'P': 1, 'N': 3, 'B': 3, 'R': 5, 'Q': 9, 'K': 0,
	'p': -1, 'n': -3, 'b': -3, 'r': -5, 'q': -9, 'k': 0,
}

// materialBalance returns white material minus black material from
// board's FEN, a crude but deterministic proxy usable without depending
// on the rules engine beyond FEN().
func materialBalance(board chesstypes.Board) (float32, error) {
	placement, err := boardPlacement(board)
	if err != nil {
		return 0, err
	}
	var total float32
	for _, ch := range placement {
		total += pieceValue[byte(ch)]
	}
	return total, nil
}

// activity approximates mobility-free "activity" as the count of
// non-pawn, non-king pieces not on their home rank, white minus black;
// a cheap deterministic proxy for "pieces developed".
func activity(board chesstypes.Board) (float32, error) {
	fen := board.FEN()
	var placement string
	for i := 0; i < len(fen); i++ {
		if fen[i] == ' ' {
			placement = fen[:i]
			break
		}
	}
	if placement == "" {
		return 0, nil
	}
	ranks := splitRanks(placement)
	if len(ranks) != 8 {
		return 0, nil
	}
	var score float32
	for i, rank := range ranks {
		for _, ch := range rank {
			developed := (byte(ch) == 'N' || byte(ch) == 'B' || byte(ch) == 'Q') && i != 7
			developedBlack := (byte(ch) == 'n' || byte(ch) == 'b' || byte(ch) == 'q') && i != 0
			if developed {
				score++
			} else if developedBlack {
				score--
			}
		}
	}
	return score, nil
}

func boardPlacement(board chesstypes.Board) (string, error) {
	fen := board.FEN()
	for i := 0; i < len(fen); i++ {
		if fen[i] == ' ' {
			return fen[:i], nil
		}
	}
	return fen, nil
}

func splitRanks(placement string) []string {
	var ranks []string
	start := 0
	for i := 0; i < len(placement); i++ {
		if placement[i] == '/' {
			ranks = append(ranks, placement[start:i])
			start = i + 1
		}
	}
	ranks = append(ranks, placement[start:])
	return ranks
}
