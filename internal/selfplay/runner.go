// Package selfplay implements the Self-Play Runner (C5): a bounded
// worker pool that plays complete games between a main and an opponent
// parameter snapshot, emitting enhanced experiences for the main side
// only (design note c: explicit message passing, frozen snapshots,
// per-game RNG seeds, no process-wide state).
package selfplay

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/chessrl/core/internal/approx"
	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/codec"
	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/corestate"
	"github.com/chessrl/core/internal/domain"
	"github.com/chessrl/core/internal/reward"
	"github.com/chessrl/core/internal/seeding"
)

// Runner plays self-play games against the external rules engine.
type Runner struct {
	rules  chesstypes.Rules
	codec  *codec.Codec
	shaper *reward.Shaper
	cfg    config.Config
}

// New returns a Runner bound to rules and cfg. codec and shaper are
// constructed once by the caller (Orchestrator) and reused across
// cycles, since both are pure and stateless.
func New(rules chesstypes.Rules, cdc *codec.Codec, shaper *reward.Shaper, cfg config.Config) *Runner {
	return &Runner{rules: rules, codec: cdc, shaper: shaper, cfg: cfg}
}

// Result is what PlayGames returns: the games plus their aggregate
// counts (spec §4.5 "Output").
type Result struct {
	Games  []domain.GameResult
	Stats  domain.SelfPlayStats
}

// PlayGames runs k games between main and opponent, using up to
// cfg.MaxConcurrentGames parallel workers. seeds derives each game's RNG
// from (master_seed, game_id), and progress (optional) receives one
// SelfPlayProgress event per completed game. doneCh, if non-nil, is a
// cooperative cancellation signal checked at every move boundary (spec
// §5): cancelled games are discarded.
func (r *Runner) PlayGames(ctx context.Context, main, opponent approx.Approximator, k int, cycle int, seeds seeding.Manager, progress chan<- corestate.Event, doneCh <-chan struct{}) (Result, error) {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrentGames)

	results := make([]*domain.GameResult, k)
	completed := make(chan struct{}, k)

	for i := 0; i < k; i++ {
		i := i
		g.Go(func() error {
			gameID := fmt.Sprintf("cycle%d-game%d", cycle, i)
			rng := seeds.ForGame(gameID)

			mainSide := chesstypes.White
			if i%2 == 1 {
				mainSide = chesstypes.Black
			}

			gr, err := r.playOne(gctx, gameID, main, opponent, mainSide, rng, doneCh)
			if err != nil {
				klog.Errorf("selfplay: game %s failed: %v", gameID, err)
				return nil // a failed game is discarded, not a fatal error (§7)
			}
			results[i] = &gr
			completed <- struct{}{}
			corestate.Emit(progress, doneCh, corestate.Event{
				Kind: corestate.EventSelfPlayProgress,
				SelfPlayProgress: &corestate.SelfPlayProgressPayload{
					Cycle: cycle, GamesCompleted: len(completed), GamesPlanned: k,
				},
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, corestate.Wrap(corestate.CodeInternal, "selfplay.PlayGames", err)
	}
	close(completed)

	var games []domain.GameResult
	for _, gr := range results {
		if gr != nil {
			games = append(games, *gr)
		}
	}
	// Ordering guarantee (§5): ingest in ascending game_id order after
	// the barrier join, independent of worker completion order.
	sort.Slice(games, func(a, b int) bool { return games[a].GameID < games[b].GameID })

	stats := aggregateStats(games, k, time.Since(start))
	return Result{Games: games, Stats: stats}, nil
}

func aggregateStats(games []domain.GameResult, planned int, wallTime time.Duration) domain.SelfPlayStats {
	stats := domain.SelfPlayStats{
		OutcomeHistogram: make(map[chesstypes.Outcome]int),
		WallTime:         wallTime,
		DiscardedGames:   planned - len(games),
	}
	var totalLength int
	for _, g := range games {
		stats.TotalGames++
		stats.TotalExperiences += len(g.Experiences)
		stats.OutcomeHistogram[g.Outcome]++
		totalLength += g.Length
	}
	if stats.TotalGames > 0 {
		stats.AverageLength = float64(totalLength) / float64(stats.TotalGames)
	}
	return stats
}

// playOne plays a single game, returning experiences only for mainSide's
// moves (the opponent snapshot is frozen and never trained).
func (r *Runner) playOne(ctx context.Context, gameID string, main, opponent approx.Approximator, mainSide chesstypes.Side, rng *rand.Rand, doneCh <-chan struct{}) (domain.GameResult, error) {
	board := r.rules.NewBoard()
	var experiences []domain.EnhancedExperience
	termination := domain.TerminationGameEnded
	status := chesstypes.StatusOngoing

	for step := 0; step < r.cfg.MaxStepsPerGame; step++ {
		select {
		case <-ctx.Done():
			return domain.GameResult{}, corestate.New(corestate.CodeCancelled, "selfplay.playOne", "cancelled")
		case <-doneCh:
			return domain.GameResult{}, corestate.New(corestate.CodeCancelled, "selfplay.playOne", "cancelled")
		default:
		}

		sideToMove := r.rules.SideToMove(board)
		mover := opponent
		if sideToMove == mainSide {
			mover = main
		}

		state, err := r.codec.EncodeState(board)
		if err != nil {
			termination = domain.TerminationError
			break
		}
		mask := r.codec.LegalMask(board)

		actionIdx, err := mover.SelectAction(state, mask, r.cfg.ExplorationRate, rng)
		if err != nil || actionIdx < 0 || actionIdx >= len(mask) || !mask[actionIdx] {
			klog.Errorf("selfplay: illegal action from approximator in game %s at step %d", gameID, step)
			termination = domain.TerminationError
			break
		}

		move, err := r.codec.DecodeAction(actionIdx, board)
		if err != nil {
			termination = domain.TerminationError
			break
		}

		nextBoard, err := r.rules.ApplyMove(board, move)
		if err != nil {
			termination = domain.TerminationError
			break
		}

		status = r.rules.TerminalStatus(nextBoard)
		terminal := status.IsTerminal()

		if sideToMove == mainSide {
			var rewardValue float32
			if terminal {
				rewardValue = r.shaper.Terminal(status, sideToMove, step+1)
			} else {
				rewardValue, err = r.shaper.Ongoing(board, nextBoard, sideToMove)
				if err != nil {
					termination = domain.TerminationError
					break
				}
			}
			nextState, err := r.codec.EncodeState(nextBoard)
			if err != nil {
				termination = domain.TerminationError
				break
			}
			outcome := chesstypes.Ongoing
			if terminal {
				outcome = status.Outcome()
			}
			exp := domain.EnhancedExperience{
				Experience: domain.Experience{
					State: state, Action: actionIdx, Reward: rewardValue,
					NextState: nextState, Terminal: terminal,
				},
				GameID:            gameID,
				MoveNumber:        step + 1,
				PlayerSide:        sideToMove,
				GameOutcome:       outcome,
				TerminationReason: domain.TerminationGameEnded,
				Phase:             domain.PhaseOf(step+1, r.cfg.MaxStepsPerGame),
			}
			exp.QualityScore = domain.QualityScore(outcome, step+1, r.cfg.MaxStepsPerGame, rewardValue)
			experiences = append(experiences, exp)
		}

		board = nextBoard
		if terminal {
			break
		}
		if step == r.cfg.MaxStepsPerGame-1 {
			termination = domain.TerminationStepLimit
		}
	}

	if termination == domain.TerminationStepLimit && len(experiences) > 0 {
		last := &experiences[len(experiences)-1]
		last.Reward = r.shaper.StepLimit(len(experiences))
		last.TerminationReason = domain.TerminationStepLimit
		last.Terminal = true
		if last.GameOutcome == chesstypes.Ongoing {
			last.GameOutcome = chesstypes.Draw
		}
	}

	outcome := chesstypes.Ongoing
	switch termination {
	case domain.TerminationGameEnded:
		outcome = status.Outcome()
	case domain.TerminationStepLimit:
		// Step-limit truncation is bucketed as a draw for aggregate
		// statistics; TerminationReason is the authoritative field that
		// distinguishes it from a rules-engine draw (spec testable
		// property 2).
		outcome = chesstypes.Draw
	}

	return domain.GameResult{
		GameID:            gameID,
		Length:            len(experiences),
		Outcome:           outcome,
		TerminationReason: termination,
		FinalPosition:     board,
		Experiences:       experiences,
	}, nil
}
