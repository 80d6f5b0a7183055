// Package orchestrator implements the Cycle Orchestrator (C8): the
// top-level self-play -> ingest -> train -> evaluate -> checkpoint ->
// adapt loop that drives every other component, per spec §4.8.
package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/chessrl/core/internal/approx"
	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/checkpoint"
	"github.com/chessrl/core/internal/codec"
	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/corestate"
	"github.com/chessrl/core/internal/domain"
	"github.com/chessrl/core/internal/replay"
	"github.com/chessrl/core/internal/reward"
	"github.com/chessrl/core/internal/seeding"
	"github.com/chessrl/core/internal/selfplay"
	"github.com/chessrl/core/internal/validator"
)

// StopReason records why Run returned.
type StopReason string

const (
	StopMaxCycles    StopReason = "max_cycles_reached"
	StopConverged    StopReason = "converged"
	StopDeclining    StopReason = "declining"
	StopCancelled    StopReason = "cancelled"
	StopFatal        StopReason = "fatal_error"
)

// RunResult is what Run returns once the loop stops.
type RunResult struct {
	CompletedCycles int
	FinalMetrics    validator.ConvergenceReport
	StopReason      StopReason
	Issues          []validator.Issue
}

// Orchestrator owns every other component for the lifetime of a run. It
// holds no goroutines of its own outside of Run: the worker pool lives
// entirely inside internal/selfplay.
type Orchestrator struct {
	cfg    config.Config
	rules  chesstypes.Rules
	cdc    *codec.Codec
	shaper *reward.Shaper
	runner *selfplay.Runner
	store  *replay.Store
	val    *validator.Validator
	ckpt   *checkpoint.Manager
	seeds  seeding.Manager

	main     approx.Approximator
	opponent approx.Approximator

	progress chan<- corestate.Event
	done     <-chan struct{}
}

// New wires every component from cfg and the external rules engine. main
// is the Approximator being trained; opponent starts as a frozen copy of
// main's initial parameters (or a baseline, at the caller's choice) and
// is refreshed every OpponentUpdateFrequency cycles.
func New(cfg config.Config, rules chesstypes.Rules, main, opponent approx.Approximator, progress chan<- corestate.Event, done <-chan struct{}) (*Orchestrator, error) {
	ckpt, err := checkpoint.New(cfg.CheckpointDirectory, cfg.MaxModelVersions, checkpoint.FormatNativeCompressed)
	if err != nil {
		return nil, err
	}
	seeds := seeding.NewManager(cfg.MasterSeed)
	cdc := codec.New(rules)
	shaper := reward.New(cfg)
	return &Orchestrator{
		cfg:      cfg,
		rules:    rules,
		cdc:      cdc,
		shaper:   shaper,
		runner:   selfplay.New(rules, cdc, shaper, cfg),
		store:    replay.New(cfg, seeds.ForPurpose("replay_eviction")),
		val:      validator.New(cfg),
		ckpt:     ckpt,
		seeds:    seeds,
		main:     main,
		opponent: opponent,
		progress: progress,
		done:     done,
	}, nil
}

// Run executes cycles until maxCycles is reached, convergence triggers an
// early stop, ctx is cancelled, or a fatal error occurs.
func (o *Orchestrator) Run(ctx context.Context, maxCycles int) RunResult {
	schedule := domain.ScheduleSnapshot{
		GamesPerCycle: o.cfg.InitialGamesPerCycle,
		TrainingRatio: 1.0,
	}
	var window []validator.CycleMetrics
	var lastReport validator.ConvergenceReport
	var allIssues []validator.Issue
	var previousLoss float32

	for cycle := 1; cycle <= maxCycles; cycle++ {
		select {
		case <-ctx.Done():
			return RunResult{CompletedCycles: cycle - 1, FinalMetrics: lastReport, StopReason: StopCancelled, Issues: allIssues}
		default:
		}

		corestate.Emit(o.progress, o.done, corestate.Event{
			Kind:         corestate.EventCycleStarted,
			CycleStarted: &corestate.CycleStartedPayload{Cycle: cycle, GamesPlanned: schedule.GamesPerCycle},
		})

		record, issues, err := o.runCycle(ctx, cycle, schedule, &previousLoss)
		allIssues = append(allIssues, issues...)
		if err != nil {
			klog.Errorf("orchestrator: cycle %d failed: %v", cycle, err)
			o.dumpDiagnostics(cycle, record, err)
			return RunResult{CompletedCycles: cycle - 1, FinalMetrics: lastReport, StopReason: StopFatal, Issues: allIssues}
		}

		window = append(window, validator.CycleMetrics{
			AverageReward: averageReward(record.SelfPlay),
			AverageLoss:   float64(record.Training.AverageLoss),
			AverageEntropy: float64(record.Training.LastUpdate.PolicyEntropy),
		})
		if len(window) > o.cfg.ConvergenceWindow {
			window = window[len(window)-o.cfg.ConvergenceWindow:]
		}
		lastReport = o.val.ScreenConvergence(window)
		record.ConvergenceStatus = lastReport.Status

		schedule = o.adapt(schedule, record, lastReport)

		corestate.Emit(o.progress, o.done, corestate.Event{
			Kind:           corestate.EventCycleCompleted,
			CycleCompleted: &corestate.CycleCompletedPayload{Cycle: cycle},
		})

		if lastReport.EarlyStop {
			reason := StopConverged
			if lastReport.Status == domain.ConvergenceDeclining {
				reason = StopDeclining
			}
			return RunResult{CompletedCycles: cycle, FinalMetrics: lastReport, StopReason: reason, Issues: allIssues}
		}

		if cycle%o.cfg.OpponentUpdateFrequency == 0 {
			o.refreshOpponent()
		}
	}
	return RunResult{CompletedCycles: maxCycles, FinalMetrics: lastReport, StopReason: StopMaxCycles, Issues: allIssues}
}

func averageReward(s domain.SelfPlayStats) float64 {
	if s.TotalGames == 0 {
		return 0
	}
	wins := s.OutcomeHistogram[chesstypes.WhiteWins] + s.OutcomeHistogram[chesstypes.BlackWins]
	return float64(wins) / float64(s.TotalGames)
}

// runCycle executes one full self-play/train/evaluate/checkpoint pass.
func (o *Orchestrator) runCycle(ctx context.Context, cycle int, schedule domain.ScheduleSnapshot, previousLoss *float32) (domain.CycleRecord, []validator.Issue, error) {
	start := time.Now()
	record := domain.CycleRecord{Cycle: cycle, Schedule: schedule}

	selfPlayResult, err := o.runner.PlayGames(ctx, o.main, o.opponent, schedule.GamesPerCycle, cycle, o.seeds, o.progress, o.done)
	if err != nil {
		return record, nil, err
	}
	record.SelfPlay = selfPlayResult.Stats

	for _, g := range selfPlayResult.Games {
		if err := o.store.Ingest(g.Experiences, time.Now()); err != nil {
			klog.Warningf("orchestrator: ingest failed for game %s: %v", g.GameID, err)
		}
	}
	if cycle%o.cfg.MemoryCleanupInterval == 0 {
		o.store.Cleanup()
	}

	numBatches := int(float64(o.cfg.MaxBatchesPerCycle) * schedule.TrainingRatio)
	if numBatches > o.cfg.MaxBatchesPerCycle {
		numBatches = o.cfg.MaxBatchesPerCycle
	}
	if numBatches < 1 {
		numBatches = 1
	}

	var issues []validator.Issue
	trainStats := domain.TrainingStats{}
	rng := o.seeds.ForPurpose("training_sample")
	var lossSum float32
	nonFiniteCount := 0

	for b := 0; b < numBatches; b++ {
		batch := o.store.Sample(o.cfg.BatchSize, o.cfg.SamplingStrategy, rng)
		if batch.Size() == 0 {
			break
		}
		trainStats.BatchesAttempted++
		result, err := o.main.TrainBatch(batch)
		if err != nil {
			if corestate.Is(err, corestate.CodeNonFiniteUpdate) {
				nonFiniteCount++
				if nonFiniteCount > o.cfg.NonFiniteUpdateThresholdPerCycle {
					return record, issues, err
				}
				continue
			}
			return record, issues, err
		}
		screen := o.val.ScreenUpdate(result, *previousLoss)
		issues = append(issues, screen.Issues...)
		issues = append(issues, screen.Warnings...)
		if !screen.IsValid {
			trainStats.BatchesRejected++
			continue
		}
		trainStats.BatchesAccepted++
		trainStats.LastUpdate = result
		lossSum += result.Loss
		*previousLoss = result.Loss

		corestate.Emit(o.progress, o.done, corestate.Event{
			Kind: corestate.EventTrainingProgress,
			TrainingProgress: &corestate.TrainingProgressPayload{
				Cycle: cycle, BatchesComplete: b + 1, BatchesPlanned: numBatches, LastLoss: result.Loss,
			},
		})
	}
	if trainStats.BatchesAccepted > 0 {
		trainStats.AverageLoss = lossSum / float32(trainStats.BatchesAccepted)
	}
	record.Training = trainStats

	record.Evaluation = o.evaluate(ctx, cycle)

	if cycle%o.cfg.CheckpointInterval == 0 {
		o.checkpointCycle(cycle, record.Evaluation.PerformanceScore)
	}

	record.CycleDuration = time.Since(start)
	return record, issues, nil
}

// evaluationBaseline pairs an opponent-pool baseline with a fixed,
// name-specific cycle-offset stride so its games never collide with the
// frozen-opponent match's gameIDs (and therefore RNG seeds) in the same
// cycle, regardless of map/slice iteration order.
type evaluationBaseline struct {
	name       string
	approx     approx.Approximator
	cycleShift int
}

// evaluationBaselines is the fixed-opponent leg of the opponent pool
// (§3 "Opponent pool, not just previous best"): every cycle's evaluation
// additionally plays main against these, independent of the frozen
// opponent snapshot match below.
var evaluationBaselines = []evaluationBaseline{
	{name: "random", approx: approx.Random{}, cycleShift: 1},
	{name: "material", approx: approx.Material{}, cycleShift: 2},
}

// evaluate plays a short match of main against the frozen opponent, plus
// one against each opponent-pool baseline, to score the current
// parameters (spec §4.8 step 4). It deliberately does not train during
// these games: evaluation reuses whatever exploration rate the runner is
// configured with, matching spec §4.8's description of evaluation as
// "representative of deployed behavior".
func (o *Orchestrator) evaluate(ctx context.Context, cycle int) domain.EvaluationStats {
	n := o.cfg.EvaluationGamesPerCycle
	if n <= 0 {
		return domain.EvaluationStats{}
	}
	stats := o.playEvaluationMatch(ctx, o.opponent, n, cycle*1000)

	stats.BaselineEvaluations = make(map[string]domain.EvaluationStats, len(evaluationBaselines))
	for _, baseline := range evaluationBaselines {
		stats.BaselineEvaluations[baseline.name] = o.playEvaluationMatch(ctx, baseline.approx, n, cycle*1000+baseline.cycleShift)
	}

	corestate.Emit(o.progress, o.done, corestate.Event{
		Kind: corestate.EventEvaluationProgress,
		EvaluationProgress: &corestate.EvaluationProgressPayload{
			Cycle: cycle, GamesComplete: stats.GamesPlayed, GamesPlanned: n,
		},
	})
	return stats
}

// playEvaluationMatch plays n games of main against opponent starting at
// cycleOffset and reduces them to win/draw/loss rates.
func (o *Orchestrator) playEvaluationMatch(ctx context.Context, opponent approx.Approximator, n, cycleOffset int) domain.EvaluationStats {
	result, err := o.runner.PlayGames(ctx, o.main, opponent, n, cycleOffset, o.seeds, nil, o.done)
	if err != nil {
		klog.Errorf("orchestrator: evaluation failed at cycle offset %d: %v", cycleOffset, err)
		return domain.EvaluationStats{}
	}
	var wins, draws, losses int
	for _, g := range result.Games {
		mainSide := sideForEvalGame(g.GameID, chesstypes.White)
		switch {
		case g.Outcome == chesstypes.Draw:
			draws++
		case (g.Outcome == chesstypes.WhiteWins && mainSide == chesstypes.White) ||
			(g.Outcome == chesstypes.BlackWins && mainSide == chesstypes.Black):
			wins++
		default:
			losses++
		}
	}
	total := len(result.Games)
	stats := domain.EvaluationStats{GamesPlayed: total}
	if total > 0 {
		stats.WinRate = float64(wins) / float64(total)
		stats.DrawRate = float64(draws) / float64(total)
		stats.LossRate = float64(losses) / float64(total)
		stats.PerformanceScore = stats.WinRate + 0.5*stats.DrawRate
	}
	return stats
}

// sideForEvalGame mirrors selfplay.Runner's own i%2 side-assignment
// convention (game index is the trailing integer in a "cycleN-gameI"
// game_id) so evaluation can attribute outcomes back to main without the
// Runner exposing its internal assignment directly.
func sideForEvalGame(gameID string, base chesstypes.Side) chesstypes.Side {
	i := strings.LastIndex(gameID, "game")
	if i < 0 {
		return base
	}
	idx, err := strconv.Atoi(gameID[i+len("game"):])
	if err != nil {
		return base
	}
	if idx%2 == 1 {
		return base.Other()
	}
	return base
}

func (o *Orchestrator) checkpointCycle(cycle int, performance float64) {
	blob, err := o.main.Snapshot()
	if err != nil {
		klog.Errorf("orchestrator: snapshot failed at cycle %d: %v", cycle, err)
		return
	}
	probe := func(b []byte) bool {
		cp := o.main
		backup, err := cp.Snapshot()
		if err != nil {
			return false
		}
		defer cp.Restore(backup)
		if err := cp.Restore(b); err != nil {
			return false
		}
		_, err = cp.Forward(make([]float32, codec.StateSize))
		return err == nil
	}
	entry, err := o.ckpt.Save(cycle, performance, blob, "", probe)
	if err != nil {
		klog.Errorf("orchestrator: checkpoint save failed at cycle %d: %v", cycle, err)
		return
	}
	if _, err := o.ckpt.PromoteIfBest(entry.ID); err != nil {
		klog.Errorf("orchestrator: promote-best failed at cycle %d: %v", cycle, err)
	}
	if err := o.ckpt.Prune(); err != nil {
		klog.Warningf("orchestrator: prune failed at cycle %d: %v", cycle, err)
	}
}

// adapt implements the scheduling feedback loop of spec §4.8 step 6:
// games_per_cycle and training_ratio move within their configured bounds
// based on the convergence signal.
func (o *Orchestrator) adapt(schedule domain.ScheduleSnapshot, record domain.CycleRecord, report validator.ConvergenceReport) domain.ScheduleSnapshot {
	switch report.Status {
	case domain.ConvergenceStagnant:
		schedule.GamesPerCycle = clampInt(schedule.GamesPerCycle+schedule.GamesPerCycle/10, o.cfg.MinGamesPerCycle, o.cfg.MaxGamesPerCycle)
		schedule.TrainingRatio = clampFloat(schedule.TrainingRatio*0.9, o.cfg.MinTrainingRatio, o.cfg.MaxTrainingRatio)
	case domain.ConvergenceUnstable:
		schedule.TrainingRatio = clampFloat(schedule.TrainingRatio*0.8, o.cfg.MinTrainingRatio, o.cfg.MaxTrainingRatio)
	case domain.ConvergenceImproving:
		schedule.TrainingRatio = clampFloat(schedule.TrainingRatio*1.05, o.cfg.MinTrainingRatio, o.cfg.MaxTrainingRatio)
	}
	return schedule
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// refreshOpponent snapshots main's current parameters into opponent,
// implementing the §4.8 opponent-update policy.
func (o *Orchestrator) refreshOpponent() {
	blob, err := o.main.Snapshot()
	if err != nil {
		klog.Errorf("orchestrator: refreshOpponent snapshot failed: %v", err)
		return
	}
	if err := o.opponent.Restore(blob); err != nil {
		klog.Errorf("orchestrator: refreshOpponent restore failed: %v", err)
	}
}

func (o *Orchestrator) dumpDiagnostics(cycle int, record domain.CycleRecord, cause error) {
	payload := map[string]any{
		"cycle":       cycle,
		"record":      record,
		"error":       cause.Error(),
		"error_code":  corestate.CodeOf(cause).String(),
	}
	if err := checkpoint.DumpDiagnostics(o.cfg.CheckpointDirectory, "diagnostics_cycle", payload); err != nil {
		klog.Errorf("orchestrator: diagnostics dump failed: %v", err)
	}
}
