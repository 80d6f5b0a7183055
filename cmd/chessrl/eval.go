package main

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/chessrl/core/internal/approx"
	"github.com/chessrl/core/internal/codec"
	"github.com/chessrl/core/internal/reward"
	"github.com/chessrl/core/internal/selfplay"
)

// Run loads e.Checkpoint and plays it against e.Opponent's opponent-pool
// baseline for e.Games games, logging the number of games played, the
// experiences collected and the count of games per outcome.
func (e *EvalCmd) Run(ctx context.Context, logger *log.Logger) error {
	cfg, err := loadConfig(e.Config)
	if err != nil {
		return err
	}
	cfg = cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	main, err := loadApproximator(cfg.CheckpointDirectory, cfg.MaxModelVersions, e.Checkpoint)
	if err != nil {
		return err
	}

	var opponent approx.Approximator = approx.Random{}
	if e.Opponent == "material" {
		opponent = approx.Material{}
	}

	rules := newRules()
	cdc := codec.New(rules)
	shaper := reward.New(cfg)
	runner := selfplay.New(rules, cdc, shaper, cfg)

	seeds := seedsFor(cfg)
	result, err := runner.PlayGames(ctx, main, opponent, e.Games, 0, seeds, nil, nil)
	if err != nil {
		return err
	}

	logger.Infof("evaluation: %d games played, %d experiences collected", result.Stats.TotalGames, result.Stats.TotalExperiences)
	for outcome, count := range result.Stats.OutcomeHistogram {
		logger.Infof("  %s: %d", outcome, count)
	}
	return nil
}
