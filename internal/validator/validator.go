// Package validator implements the Training Validator (C6): per-update
// health screens and cross-cycle convergence analysis, per spec §4.6.
package validator

import (
	"math"

	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/domain"
)

// Issue is a single flagged problem with an update or a cycle.
type Issue int

const (
	IssueExplodingGradients Issue = iota
	IssueVanishingGradients
	IssuePolicyCollapse
	IssueNumericalInstability
	IssueQOverestimation
	IssueLossExplosion
)

func (i Issue) String() string {
	switch i {
	case IssueExplodingGradients:
		return "exploding_gradients"
	case IssueVanishingGradients:
		return "vanishing_gradients"
	case IssuePolicyCollapse:
		return "policy_collapse"
	case IssueNumericalInstability:
		return "numerical_instability"
	case IssueQOverestimation:
		return "q_overestimation"
	case IssueLossExplosion:
		return "loss_explosion"
	default:
		return "unknown_issue"
	}
}

// blockingIssues cause is_valid = false; the others are warnings only.
var blockingIssues = map[Issue]bool{
	IssueExplodingGradients:   true,
	IssueNumericalInstability: true,
}

// Record is the per-update screen's verdict.
type Record struct {
	IsValid         bool
	Issues          []Issue
	Warnings        []Issue
	Recommendations []string
}

// Validator screens updates and analyzes cross-cycle convergence under a
// fixed Config. It is stateless across calls except for the caller-owned
// window of CycleMetrics it is handed for ScreenConvergence.
type Validator struct {
	cfg config.Config
}

// New returns a Validator bound to cfg's Validation fields.
func New(cfg config.Config) *Validator {
	return &Validator{cfg: cfg}
}

// ScreenUpdate implements the per-update health checks of spec §4.6.
func (v *Validator) ScreenUpdate(result domain.UpdateResult, previousLoss float32) Record {
	var rec Record

	flag := func(issue Issue) {
		if blockingIssues[issue] {
			rec.Issues = append(rec.Issues, issue)
		} else {
			rec.Warnings = append(rec.Warnings, issue)
		}
	}

	nonFinite := !result.IsFinite()
	if nonFinite {
		flag(IssueNumericalInstability)
	}

	if !nonFinite {
		if float64(result.GradientNorm) > v.cfg.ExplodingGradientThreshold {
			flag(IssueExplodingGradients)
			rec.Recommendations = append(rec.Recommendations, "reduce learning_rate or tighten gradient_clip_threshold")
		}
		if float64(result.GradientNorm) < v.cfg.VanishingGradientThreshold {
			flag(IssueVanishingGradients)
			rec.Recommendations = append(rec.Recommendations, "increase learning_rate or simplify the network")
		}
		if float64(result.PolicyEntropy) < v.cfg.PolicyCollapseEntropyThreshold {
			flag(IssuePolicyCollapse)
			rec.Recommendations = append(rec.Recommendations, "increase exploration_rate or entropy regularization")
		}
		if math.Abs(float64(result.QMean-result.TargetMean)) > v.cfg.QOverestimationThreshold {
			flag(IssueQOverestimation)
			rec.Recommendations = append(rec.Recommendations, "lower discount or add a target network")
		}
		if previousLoss > 0 && float64(result.Loss/previousLoss) > v.cfg.LossExplosionFactor {
			flag(IssueLossExplosion)
			rec.Recommendations = append(rec.Recommendations, "roll back the last checkpoint and reduce learning_rate")
		}
	}

	rec.IsValid = len(rec.Issues) == 0
	return rec
}

// CycleMetrics is the per-cycle summary the convergence window is built
// from: one entry per recent CycleRecord.
type CycleMetrics struct {
	AverageReward float64
	AverageLoss   float64
	AverageEntropy float64
}

// ConvergenceReport is the verdict of ScreenConvergence.
type ConvergenceReport struct {
	Status          domain.ConvergenceStatus
	RewardSlope     float64
	LossSlope       float64
	EntropySlope    float64
	Stability       float64
	EarlyStop       bool
	Recommendations []string
}

const convergenceEpsilon = 0.01

// ScreenConvergence implements the cross-cycle convergence analysis of
// spec §4.6 over window, the W most recent cycles (W = convergence_window).
func (v *Validator) ScreenConvergence(window []CycleMetrics) ConvergenceReport {
	if len(window) < v.cfg.ConvergenceWindow {
		return ConvergenceReport{Status: domain.ConvergenceInsufficientData}
	}

	rewards := make([]float64, len(window))
	losses := make([]float64, len(window))
	entropies := make([]float64, len(window))
	for i, m := range window {
		rewards[i] = m.AverageReward
		losses[i] = m.AverageLoss
		entropies[i] = m.AverageEntropy
	}

	rewardSlope := slope(rewards)
	lossSlope := slope(losses)
	entropySlope := slope(entropies)
	stability := 1 - normalizedStdDev(rewards)

	report := ConvergenceReport{
		RewardSlope:  rewardSlope,
		LossSlope:    lossSlope,
		EntropySlope: entropySlope,
		Stability:    stability,
	}

	entropyLow := entropies[len(entropies)-1] < v.cfg.PolicyCollapseEntropyThreshold

	switch {
	case stability < 0.3:
		report.Status = domain.ConvergenceUnstable
	case math.Abs(rewardSlope) <= convergenceEpsilon && stability >= v.cfg.ConvergenceStabilityThreshold:
		report.Status = domain.ConvergenceConverged
	case rewardSlope > convergenceEpsilon:
		report.Status = domain.ConvergenceImproving
	case rewardSlope < -convergenceEpsilon && entropyLow:
		report.Status = domain.ConvergenceDeclining
	case math.Abs(rewardSlope) <= convergenceEpsilon:
		report.Status = domain.ConvergenceStagnant
	default:
		report.Status = domain.ConvergenceStagnant
	}

	switch report.Status {
	case domain.ConvergenceConverged, domain.ConvergenceDeclining:
		report.EarlyStop = v.cfg.EnableEarlyStopping
		report.Recommendations = append(report.Recommendations, "stop: training has "+statusVerb(report.Status))
	case domain.ConvergenceStagnant:
		report.Recommendations = append(report.Recommendations, "increase games_per_cycle, lower training_ratio")
	case domain.ConvergenceUnstable:
		report.Recommendations = append(report.Recommendations, "reduce max_batches_per_cycle, lower learning_rate")
	}
	return report
}

func statusVerb(s domain.ConvergenceStatus) string {
	if s == domain.ConvergenceConverged {
		return "converged"
	}
	return "declined"
}

// slope returns the least-squares linear slope of ys against its index.
func slope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// normalizedStdDev returns stddev(ys) / (mean(|ys|) + epsilon), a scale
// invariant instability measure used to derive stability = 1 - this.
func normalizedStdDev(ys []float64) float64 {
	n := float64(len(ys))
	if n == 0 {
		return 0
	}
	var mean, meanAbs float64
	for _, y := range ys {
		mean += y
		meanAbs += math.Abs(y)
	}
	mean /= n
	meanAbs /= n
	var variance float64
	for _, y := range ys {
		d := y - mean
		variance += d * d
	}
	variance /= n
	stddev := math.Sqrt(variance)
	return stddev / (meanAbs + 1e-6)
}
