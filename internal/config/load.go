package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chessrl/core/internal/corestate"
)

// fileConfig mirrors Config with yaml tags; kept separate so Config's Go
// field names can stay idiomatic while the on-disk schema stays
// snake_case, matching the Config field list spelled out in spec §3.
type fileConfig struct {
	InitialGamesPerCycle    *int     `yaml:"initial_games_per_cycle"`
	MinGamesPerCycle        *int     `yaml:"min_games_per_cycle"`
	MaxGamesPerCycle        *int     `yaml:"max_games_per_cycle"`
	MaxConcurrentGames      *int     `yaml:"max_concurrent_games"`
	MaxStepsPerGame         *int     `yaml:"max_steps_per_game"`
	EvaluationGamesPerCycle *int     `yaml:"evaluation_games_per_cycle"`
	MinTrainingRatio        *float64 `yaml:"min_training_ratio"`
	MaxTrainingRatio        *float64 `yaml:"max_training_ratio"`

	BatchSize             *int     `yaml:"batch_size"`
	MaxBatchesPerCycle    *int     `yaml:"max_batches_per_cycle"`
	LearningRate          *float64 `yaml:"learning_rate"`
	Discount              *float64 `yaml:"discount"`
	ExplorationRate       *float64 `yaml:"exploration_rate"`
	TargetUpdateFrequency *int     `yaml:"target_update_frequency"`
	GradientClipThreshold *float64 `yaml:"gradient_clip_threshold"`
	MinPolicyEntropy      *float64 `yaml:"min_policy_entropy"`

	MaxExperienceBufferSize  *int    `yaml:"max_experience_buffer_size"`
	SamplingStrategy         *string `yaml:"sampling_strategy"`
	CleanupStrategy          *string `yaml:"cleanup_strategy"`
	MemoryCleanupInterval    *int    `yaml:"memory_cleanup_interval"`
	EnableMemoryOptimization *bool   `yaml:"enable_memory_optimization"`
	RecentWindow             *int    `yaml:"recent_window"`

	Win                           *float64 `yaml:"win"`
	Loss                          *float64 `yaml:"loss"`
	Draw                          *float64 `yaml:"draw"`
	StepPenalty                   *float64 `yaml:"step_penalty"`
	StepLimitPenalty              *float64 `yaml:"step_limit_penalty"`
	InvalidMoveReward             *float64 `yaml:"invalid_move_reward"`
	EnablePositionRewards         *bool    `yaml:"enable_position_rewards"`
	MaterialWeight                *float64 `yaml:"material_weight"`
	ActivityWeight                *float64 `yaml:"activity_weight"`
	EnableGameLengthNormalization *bool    `yaml:"enable_game_length_normalization"`
	MaxGameLength                 *int     `yaml:"max_game_length"`

	CheckpointInterval  *int    `yaml:"checkpoint_interval"`
	MaxModelVersions    *int    `yaml:"max_model_versions"`
	CheckpointDirectory *string `yaml:"checkpoint_directory"`

	ConvergenceWindow              *int     `yaml:"convergence_window"`
	ConvergenceStabilityThreshold  *float64 `yaml:"convergence_stability_threshold"`
	EnableEarlyStopping            *bool    `yaml:"enable_early_stopping"`
	ExplodingGradientThreshold     *float64 `yaml:"exploding_gradient_threshold"`
	VanishingGradientThreshold     *float64 `yaml:"vanishing_gradient_threshold"`
	PolicyCollapseEntropyThreshold *float64 `yaml:"policy_collapse_entropy_threshold"`
	QOverestimationThreshold       *float64 `yaml:"q_overestimation_threshold"`
	LossExplosionFactor            *float64 `yaml:"loss_explosion_factor"`

	MasterSeed        *int64 `yaml:"master_seed"`
	DeterministicMode *bool  `yaml:"deterministic_mode"`

	LogLevel                *string `yaml:"log_level"`
	OpponentUpdateFrequency *int    `yaml:"opponent_update_frequency"`
}

// Load reads path (if non-empty) over Default(), applies overrides then
// environment variables, and validates the result. path == "" skips file
// loading and starts from Default().
func Load(path string, overrides string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, corestate.Wrap(corestate.CodeConfigInvalid, "config.Load", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, corestate.Wrap(corestate.CodeConfigInvalid, "config.Load", err)
		}
		fc.applyTo(&cfg)
	}

	cfg, err := cfg.ApplyOverrides(overrides)
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) applyTo(c *Config) {
	setIfInt(fc.InitialGamesPerCycle, &c.InitialGamesPerCycle)
	setIfInt(fc.MinGamesPerCycle, &c.MinGamesPerCycle)
	setIfInt(fc.MaxGamesPerCycle, &c.MaxGamesPerCycle)
	setIfInt(fc.MaxConcurrentGames, &c.MaxConcurrentGames)
	setIfInt(fc.MaxStepsPerGame, &c.MaxStepsPerGame)
	setIfInt(fc.EvaluationGamesPerCycle, &c.EvaluationGamesPerCycle)
	setIfFloat(fc.MinTrainingRatio, &c.MinTrainingRatio)
	setIfFloat(fc.MaxTrainingRatio, &c.MaxTrainingRatio)

	setIfInt(fc.BatchSize, &c.BatchSize)
	setIfInt(fc.MaxBatchesPerCycle, &c.MaxBatchesPerCycle)
	setIfFloat(fc.LearningRate, &c.LearningRate)
	setIfFloat(fc.Discount, &c.Discount)
	setIfFloat(fc.ExplorationRate, &c.ExplorationRate)
	setIfInt(fc.TargetUpdateFrequency, &c.TargetUpdateFrequency)
	setIfFloat(fc.GradientClipThreshold, &c.GradientClipThreshold)
	setIfFloat(fc.MinPolicyEntropy, &c.MinPolicyEntropy)

	setIfInt(fc.MaxExperienceBufferSize, &c.MaxExperienceBufferSize)
	if fc.SamplingStrategy != nil {
		c.SamplingStrategy = SamplingStrategy(*fc.SamplingStrategy)
	}
	if fc.CleanupStrategy != nil {
		c.CleanupStrategy = CleanupStrategy(*fc.CleanupStrategy)
	}
	setIfInt(fc.MemoryCleanupInterval, &c.MemoryCleanupInterval)
	setIfBool(fc.EnableMemoryOptimization, &c.EnableMemoryOptimization)
	setIfInt(fc.RecentWindow, &c.RecentWindow)

	setIfFloat(fc.Win, &c.Win)
	setIfFloat(fc.Loss, &c.Loss)
	setIfFloat(fc.Draw, &c.Draw)
	setIfFloat(fc.StepPenalty, &c.StepPenalty)
	setIfFloat(fc.StepLimitPenalty, &c.StepLimitPenalty)
	setIfFloat(fc.InvalidMoveReward, &c.InvalidMoveReward)
	setIfBool(fc.EnablePositionRewards, &c.EnablePositionRewards)
	setIfFloat(fc.MaterialWeight, &c.MaterialWeight)
	setIfFloat(fc.ActivityWeight, &c.ActivityWeight)
	setIfBool(fc.EnableGameLengthNormalization, &c.EnableGameLengthNormalization)
	setIfInt(fc.MaxGameLength, &c.MaxGameLength)

	setIfInt(fc.CheckpointInterval, &c.CheckpointInterval)
	setIfInt(fc.MaxModelVersions, &c.MaxModelVersions)
	if fc.CheckpointDirectory != nil {
		c.CheckpointDirectory = *fc.CheckpointDirectory
	}

	setIfInt(fc.ConvergenceWindow, &c.ConvergenceWindow)
	setIfFloat(fc.ConvergenceStabilityThreshold, &c.ConvergenceStabilityThreshold)
	setIfBool(fc.EnableEarlyStopping, &c.EnableEarlyStopping)
	setIfFloat(fc.ExplodingGradientThreshold, &c.ExplodingGradientThreshold)
	setIfFloat(fc.VanishingGradientThreshold, &c.VanishingGradientThreshold)
	setIfFloat(fc.PolicyCollapseEntropyThreshold, &c.PolicyCollapseEntropyThreshold)
	setIfFloat(fc.QOverestimationThreshold, &c.QOverestimationThreshold)
	setIfFloat(fc.LossExplosionFactor, &c.LossExplosionFactor)

	if fc.MasterSeed != nil {
		c.MasterSeed = *fc.MasterSeed
	}
	setIfBool(fc.DeterministicMode, &c.DeterministicMode)
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	setIfInt(fc.OpponentUpdateFrequency, &c.OpponentUpdateFrequency)
}

func setIfInt(src *int, dst *int) {
	if src != nil {
		*dst = *src
	}
}

func setIfFloat(src *float64, dst *float64) {
	if src != nil {
		*dst = *src
	}
}

func setIfBool(src *bool, dst *bool) {
	if src != nil {
		*dst = *src
	}
}
