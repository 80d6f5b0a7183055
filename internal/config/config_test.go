package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/corestate"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestApplyOverridesSetsKnownFields(t *testing.T) {
	cfg := config.Default()
	out, err := cfg.ApplyOverrides("batch_size=512,learning_rate=0.01,sampling_strategy=recent")
	require.NoError(t, err)

	assert.Equal(t, 512, out.BatchSize)
	assert.InDelta(t, 0.01, out.LearningRate, 1e-9)
	assert.Equal(t, config.SampleRecent, out.SamplingStrategy)
}

func TestApplyOverridesRejectsUnknownKey(t *testing.T) {
	cfg := config.Default()
	_, err := cfg.ApplyOverrides("not_a_real_field=1")
	require.Error(t, err)
	assert.Equal(t, corestate.CodeConfigInvalid, corestate.CodeOf(err))
}

func TestApplyOverridesEmptyStringIsNoop(t *testing.T) {
	cfg := config.Default()
	out, err := cfg.ApplyOverrides("")
	require.NoError(t, err)
	assert.Equal(t, cfg, out)
}

func TestApplyOverridesRejectsMalformedInt(t *testing.T) {
	cfg := config.Default()
	_, err := cfg.ApplyOverrides("batch_size=not-a-number")
	require.Error(t, err)
	assert.Equal(t, corestate.CodeConfigInvalid, corestate.CodeOf(err))
}

func TestValidateRejectsOutOfRangeBatchSize(t *testing.T) {
	cfg := config.Default()
	cfg.BatchSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, corestate.CodeConfigInvalid, corestate.CodeOf(err))
}

func TestApplyEnvOverridesSeed(t *testing.T) {
	t.Setenv("CHESSRL_SEED", "777")
	cfg := config.Default().ApplyEnv()
	assert.Equal(t, int64(777), cfg.MasterSeed)
}

func TestLoadWithNoPathReturnsValidatedDefault(t *testing.T) {
	cfg, err := config.Load("", "")
	require.NoError(t, err)
	assert.Equal(t, config.Default().BatchSize, cfg.BatchSize)
}

func TestLoadMergesFileThenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 128\nlearning_rate: 0.05\n"), 0o644))

	cfg, err := config.Load(path, "batch_size=256")
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.BatchSize)
	assert.InDelta(t, 0.05, cfg.LearningRate, 1e-9)
}

func TestLoadMissingFileReturnsConfigInvalid(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
	assert.Equal(t, corestate.CodeConfigInvalid, corestate.CodeOf(err))
}
