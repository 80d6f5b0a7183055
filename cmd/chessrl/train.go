package main

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/chessrl/core/internal/approx"
	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/corestate"
	"github.com/chessrl/core/internal/orchestrator"
)

// Run executes the Cycle Orchestrator for t.Cycles cycles, printing one
// progress line per cycle-level event and a final summary.
func (t *TrainCmd) Run(ctx context.Context, logger *log.Logger) error {
	cfg, err := config.Load(t.Config, t.Overrides)
	if err != nil {
		return err
	}
	if t.Seed != 0 {
		cfg.MasterSeed = t.Seed
	}
	cfg = cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	rules := newRules()
	main := approx.NewNetwork(approx.ModeValue, 2, 256, cfg.LearningRate, cfg.Discount, cfg.GradientClipThreshold)
	main.SetExplorationRate(cfg.ExplorationRate)
	opponent := approx.NewNetwork(approx.ModeValue, 2, 256, cfg.LearningRate, cfg.Discount, cfg.GradientClipThreshold)
	if blob, snapErr := main.Snapshot(); snapErr == nil {
		_ = opponent.Restore(blob)
	}

	events := make(chan corestate.Event, 64)
	done := make(chan struct{})
	defer close(done)
	go drainEvents(events, logger)

	orch, err := orchestrator.New(cfg, rules, main, opponent, events, done)
	if err != nil {
		return err
	}

	result := orch.Run(ctx, t.Cycles)
	logger.Infof("training stopped: reason=%s completed_cycles=%d convergence=%s",
		result.StopReason, result.CompletedCycles, result.FinalMetrics.Status)
	if result.StopReason == orchestrator.StopFatal {
		return corestate.New(corestate.CodeInternal, "cmd.TrainCmd.Run", "orchestrator stopped with a fatal error")
	}
	return nil
}

func drainEvents(events <-chan corestate.Event, logger *log.Logger) {
	for evt := range events {
		switch evt.Kind {
		case corestate.EventCycleStarted:
			logger.Infof("cycle %d: %d games planned", evt.CycleStarted.Cycle, evt.CycleStarted.GamesPlanned)
		case corestate.EventSelfPlayProgress:
			p := evt.SelfPlayProgress
			logger.Debugf("cycle %d: self-play %d/%d", p.Cycle, p.GamesCompleted, p.GamesPlanned)
		case corestate.EventTrainingProgress:
			p := evt.TrainingProgress
			logger.Debugf("cycle %d: training %d/%d loss=%.4f", p.Cycle, p.BatchesComplete, p.BatchesPlanned, p.LastLoss)
		case corestate.EventEvaluationProgress:
			p := evt.EvaluationProgress
			logger.Debugf("cycle %d: evaluation %d/%d", p.Cycle, p.GamesComplete, p.GamesPlanned)
		case corestate.EventCycleCompleted:
			logger.Infof("cycle %d complete", evt.CycleCompleted.Cycle)
		case corestate.EventWarning:
			w := evt.Warning
			logger.Warnf("cycle %d: %s: %s", w.Cycle, w.Code, w.Message)
		}
	}
}
