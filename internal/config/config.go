// Package config defines the Core's immutable run configuration (spec §3)
// and its layered construction: defaults, YAML file, flat override
// string, then environment variables, in ascending priority — the same
// layering hiveGo's internal/parameters applies to AI override strings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/chessrl/core/internal/corestate"
	"github.com/chessrl/core/internal/generics"
	"github.com/chessrl/core/internal/parameters"
)

// SamplingStrategy selects how the Replay Store draws a batch.
type SamplingStrategy string

const (
	SampleUniform SamplingStrategy = "uniform"
	SampleRecent  SamplingStrategy = "recent"
	SampleMixed   SamplingStrategy = "mixed"
)

// CleanupStrategy selects how the Replay Store evicts when over capacity.
type CleanupStrategy string

const (
	CleanupOldestFirst   CleanupStrategy = "oldest_first"
	CleanupLowestQuality CleanupStrategy = "lowest_quality"
	CleanupRandom        CleanupStrategy = "random"
)

// Config is the Core's full run configuration (spec §3). It is built once
// by Load and never mutated afterward; every component receives it (or a
// narrowed view of it) by value or const pointer.
type Config struct {
	// Scheduling
	InitialGamesPerCycle   int
	MinGamesPerCycle       int
	MaxGamesPerCycle       int
	MaxConcurrentGames     int
	MaxStepsPerGame        int
	EvaluationGamesPerCycle int
	MinTrainingRatio       float64
	MaxTrainingRatio       float64

	// Learning
	BatchSize              int
	MaxBatchesPerCycle     int
	LearningRate           float64
	Discount               float64
	ExplorationRate        float64
	TargetUpdateFrequency  int
	GradientClipThreshold  float64
	MinPolicyEntropy       float64

	// Store
	MaxExperienceBufferSize int
	SamplingStrategy        SamplingStrategy
	CleanupStrategy         CleanupStrategy
	MemoryCleanupInterval   int
	EnableMemoryOptimization bool
	RecentWindow            int

	// Rewards
	Win                             float64
	Loss                            float64
	Draw                            float64
	StepPenalty                     float64
	StepLimitPenalty                float64
	InvalidMoveReward               float64
	EnablePositionRewards           bool
	MaterialWeight                  float64
	ActivityWeight                  float64
	EnableGameLengthNormalization   bool
	MaxGameLength                   int

	// Checkpointing
	CheckpointInterval  int
	MaxModelVersions    int
	CheckpointDirectory string

	// Validation
	ConvergenceWindow              int
	ConvergenceStabilityThreshold  float64
	EnableEarlyStopping            bool
	ExplodingGradientThreshold     float64
	VanishingGradientThreshold     float64
	PolicyCollapseEntropyThreshold float64
	QOverestimationThreshold       float64
	LossExplosionFactor            float64
	IllegalActionThresholdPerCycle int
	NonFiniteUpdateThresholdPerCycle int

	// Determinism
	MasterSeed       int64
	DeterministicMode bool

	// Logging
	LogLevel string

	// OpponentUpdateFrequency: cycles between opponent snapshot refreshes (§4.8).
	OpponentUpdateFrequency int
}

// Default returns a Config with conservative, internally-consistent
// defaults suitable for a smoke test; callers layer file/override/env on
// top of it.
func Default() Config {
	return Config{
		InitialGamesPerCycle:    10,
		MinGamesPerCycle:        2,
		MaxGamesPerCycle:        200,
		MaxConcurrentGames:      4,
		MaxStepsPerGame:         200,
		EvaluationGamesPerCycle: 10,
		MinTrainingRatio:        0.1,
		MaxTrainingRatio:        4.0,

		BatchSize:             64,
		MaxBatchesPerCycle:    32,
		LearningRate:          1e-3,
		Discount:              0.99,
		ExplorationRate:       0.1,
		TargetUpdateFrequency: 10,
		GradientClipThreshold: 5.0,
		MinPolicyEntropy:      0.01,

		MaxExperienceBufferSize:  100_000,
		SamplingStrategy:         SampleMixed,
		CleanupStrategy:          CleanupLowestQuality,
		MemoryCleanupInterval:    1,
		EnableMemoryOptimization: true,
		RecentWindow:             5_000,

		Win:                           1.0,
		Loss:                          -1.0,
		Draw:                          0.0,
		StepPenalty:                   -0.001,
		StepLimitPenalty:              -0.2,
		InvalidMoveReward:             -1.0,
		EnablePositionRewards:         false,
		MaterialWeight:                0.01,
		ActivityWeight:                0.005,
		EnableGameLengthNormalization: false,
		MaxGameLength:                 200,

		CheckpointInterval:  5,
		MaxModelVersions:    10,
		CheckpointDirectory: "checkpoints",

		ConvergenceWindow:                20,
		ConvergenceStabilityThreshold:    0.8,
		EnableEarlyStopping:              false,
		ExplodingGradientThreshold:       100.0,
		VanishingGradientThreshold:       1e-6,
		PolicyCollapseEntropyThreshold:   0.05,
		QOverestimationThreshold:         10.0,
		LossExplosionFactor:              5.0,
		IllegalActionThresholdPerCycle:   5,
		NonFiniteUpdateThresholdPerCycle: 3,

		MasterSeed:        42,
		DeterministicMode: true,

		LogLevel: "info",

		OpponentUpdateFrequency: 5,
	}
}

// ApplyOverrides parses a flat "key=value,key=value" string, exactly
// hiveGo's -ai flag format for its parameters.Params, over cfg's
// existing values. Unknown keys are a ConfigInvalid error, matching
// startup-refusal policy.
func (c Config) ApplyOverrides(overrides string) (Config, error) {
	if strings.TrimSpace(overrides) == "" {
		return c, nil
	}
	params := parameters.Params(parameters.NewFromConfigString(overrides))
	if err := popField(params, &c); err != nil {
		return c, corestate.Wrap(corestate.CodeConfigInvalid, "config.ApplyOverrides", err)
	}
	if len(params) > 0 {
		return c, corestate.New(corestate.CodeConfigInvalid, "config.ApplyOverrides",
			fmt.Sprintf("unknown config key %q", generics.MapAnyKey(params)))
	}
	return c, nil
}

// popField pops every override key this config recognizes out of
// params, mutating c in place. Whatever remains in params afterward is
// unknown, left for the caller to reject.
func popField(params parameters.Params, c *Config) error {
	var err error
	pop := func(key string, dst *int) {
		if err != nil {
			return
		}
		*dst, err = parameters.PopParamOr(params, key, *dst)
	}
	popF := func(key string, dst *float64) {
		if err != nil {
			return
		}
		*dst, err = parameters.PopParamOr(params, key, *dst)
	}
	pop("initial_games_per_cycle", &c.InitialGamesPerCycle)
	pop("min_games_per_cycle", &c.MinGamesPerCycle)
	pop("max_games_per_cycle", &c.MaxGamesPerCycle)
	pop("max_concurrent_games", &c.MaxConcurrentGames)
	pop("max_steps_per_game", &c.MaxStepsPerGame)
	pop("evaluation_games_per_cycle", &c.EvaluationGamesPerCycle)
	pop("batch_size", &c.BatchSize)
	pop("max_batches_per_cycle", &c.MaxBatchesPerCycle)
	popF("learning_rate", &c.LearningRate)
	popF("discount", &c.Discount)
	popF("exploration_rate", &c.ExplorationRate)
	popF("gradient_clip_threshold", &c.GradientClipThreshold)
	pop("max_experience_buffer_size", &c.MaxExperienceBufferSize)
	if err != nil {
		return err
	}

	if v, exists := params["sampling_strategy"]; exists {
		c.SamplingStrategy = SamplingStrategy(v)
		delete(params, "sampling_strategy")
	}
	if v, exists := params["cleanup_strategy"]; exists {
		c.CleanupStrategy = CleanupStrategy(v)
		delete(params, "cleanup_strategy")
	}
	if v, exists := params["master_seed"]; exists {
		n, convErr := strconv.ParseInt(v, 10, 64)
		if convErr != nil {
			return errors.Wrapf(convErr, "invalid integer %q", v)
		}
		c.MasterSeed = n
		delete(params, "master_seed")
	}
	if v, exists := params["checkpoint_directory"]; exists {
		c.CheckpointDirectory = v
		delete(params, "checkpoint_directory")
	}
	if v, exists := params["log_level"]; exists {
		c.LogLevel = v
		delete(params, "log_level")
	}
	return nil
}

// ApplyEnv applies the recognized environment variables (§6), highest
// priority in the layering order.
func (c Config) ApplyEnv() Config {
	if v, ok := os.LookupEnv("CHESSRL_SEED"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MasterSeed = n
		}
	}
	if v, ok := os.LookupEnv("CHESSRL_CHECKPOINT_DIR"); ok && v != "" {
		c.CheckpointDirectory = v
	}
	if v, ok := os.LookupEnv("CHESSRL_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	return c
}

// Validate rejects out-of-range or incompatible fields (§7 ConfigInvalid);
// the Core refuses to begin a run on a non-nil return.
func (c Config) Validate() error {
	const op = "config.Validate"
	switch {
	case c.MinGamesPerCycle <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "min_games_per_cycle must be > 0")
	case c.MaxGamesPerCycle < c.MinGamesPerCycle:
		return corestate.New(corestate.CodeConfigInvalid, op, "max_games_per_cycle must be >= min_games_per_cycle")
	case c.InitialGamesPerCycle < c.MinGamesPerCycle || c.InitialGamesPerCycle > c.MaxGamesPerCycle:
		return corestate.New(corestate.CodeConfigInvalid, op, "initial_games_per_cycle must be within [min,max]_games_per_cycle")
	case c.MaxConcurrentGames <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "max_concurrent_games must be > 0")
	case c.MaxStepsPerGame <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "max_steps_per_game must be > 0")
	case c.BatchSize <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "batch_size must be > 0")
	case c.MaxBatchesPerCycle <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "max_batches_per_cycle must be > 0")
	case c.LearningRate <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "learning_rate must be > 0")
	case c.GradientClipThreshold <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "gradient_clip_threshold must be > 0")
	case c.MaxExperienceBufferSize <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "max_experience_buffer_size must be > 0")
	case c.SamplingStrategy != SampleUniform && c.SamplingStrategy != SampleRecent && c.SamplingStrategy != SampleMixed:
		return corestate.New(corestate.CodeConfigInvalid, op, "sampling_strategy must be one of uniform|recent|mixed")
	case c.CleanupStrategy != CleanupOldestFirst && c.CleanupStrategy != CleanupLowestQuality && c.CleanupStrategy != CleanupRandom:
		return corestate.New(corestate.CodeConfigInvalid, op, "cleanup_strategy must be one of oldest_first|lowest_quality|random")
	case c.MinTrainingRatio <= 0 || c.MaxTrainingRatio < c.MinTrainingRatio:
		return corestate.New(corestate.CodeConfigInvalid, op, "training ratio bounds invalid")
	case c.MaxGameLength <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "max_game_length must be > 0")
	case c.CheckpointInterval <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "checkpoint_interval must be > 0")
	case c.MaxModelVersions <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "max_model_versions must be > 0")
	case c.CheckpointDirectory == "":
		return corestate.New(corestate.CodeConfigInvalid, op, "checkpoint_directory must not be empty")
	case c.ConvergenceWindow <= 1:
		return corestate.New(corestate.CodeConfigInvalid, op, "convergence_window must be > 1")
	case c.OpponentUpdateFrequency <= 0:
		return corestate.New(corestate.CodeConfigInvalid, op, "opponent_update_frequency must be > 0")
	}
	return nil
}
