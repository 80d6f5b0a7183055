package checkpoint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessrl/core/internal/checkpoint"
	"github.com/chessrl/core/internal/corestate"
)

func newManager(t *testing.T) *checkpoint.Manager {
	t.Helper()
	mgr, err := checkpoint.New(t.TempDir(), 10, checkpoint.FormatNativeCompressed)
	require.NoError(t, err)
	return mgr
}

func newManagerIn(t *testing.T, dir string, maxVersions int) *checkpoint.Manager {
	t.Helper()
	mgr, err := checkpoint.New(dir, maxVersions, checkpoint.FormatNativeCompressed)
	require.NoError(t, err)
	return mgr
}

func TestSaveLoadRoundTrip(t *testing.T) {
	mgr := newManager(t)
	blob := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	entry, err := mgr.Save(1, 0.5, blob, "", nil)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.ValidationUnknown, entry.ValidationStatus)

	got, loadedEntry, err := mgr.Load(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
	assert.Equal(t, entry.ID, loadedEntry.ID)
}

func TestSaveRunsProbeAndRecordsValidity(t *testing.T) {
	mgr := newManager(t)
	blob := []byte{9, 9, 9}

	okEntry, err := mgr.Save(1, 0.1, blob, "", func(b []byte) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, checkpoint.ValidationValid, okEntry.ValidationStatus)

	badEntry, err := mgr.Save(2, 0.2, blob, "", func(b []byte) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, checkpoint.ValidationInvalid, badEntry.ValidationStatus)
}

func TestSelectBestIgnoresInvalidCheckpoints(t *testing.T) {
	mgr := newManager(t)

	_, err := mgr.Save(1, 0.9, []byte{1}, "", func([]byte) bool { return false })
	require.NoError(t, err)
	good, err := mgr.Save(2, 0.1, []byte{2}, "", func([]byte) bool { return true })
	require.NoError(t, err)

	best, err := mgr.SelectBest()
	require.NoError(t, err)
	assert.Equal(t, good.ID, best)
}

func TestPromoteIfBestIsMonotonic(t *testing.T) {
	mgr := newManager(t)

	low, err := mgr.Save(1, 0.3, []byte{1}, "", nil)
	require.NoError(t, err)
	promoted, err := mgr.PromoteIfBest(low.ID)
	require.NoError(t, err)
	assert.True(t, promoted)

	high, err := mgr.Save(2, 0.9, []byte{2}, "", nil)
	require.NoError(t, err)
	promoted, err = mgr.PromoteIfBest(high.ID)
	require.NoError(t, err)
	assert.True(t, promoted)

	// A worse checkpoint must never un-seat the current best.
	worse, err := mgr.Save(3, 0.5, []byte{3}, "", nil)
	require.NoError(t, err)
	promoted, err = mgr.PromoteIfBest(worse.ID)
	require.NoError(t, err)
	assert.False(t, promoted)

	entries, err := mgr.List()
	require.NoError(t, err)
	for _, e := range entries {
		if e.ID == high.ID {
			assert.True(t, e.IsBest)
		} else {
			assert.False(t, e.IsBest)
		}
	}
}

func TestLoadCorruptedCheckpointDoesNotRegressBestPointer(t *testing.T) {
	dir := t.TempDir()
	mgr := newManagerIn(t, dir, 10)

	best, err := mgr.Save(1, 1.0, []byte{1, 2, 3}, "", nil)
	require.NoError(t, err)
	_, err = mgr.PromoteIfBest(best.ID)
	require.NoError(t, err)

	corrupted, err := mgr.Save(2, 0.1, []byte{0xff, 0x00}, checkpoint.FormatNativeCompressed, nil)
	require.NoError(t, err)

	// Overwrite the on-disk blob with a gzip magic header followed by
	// garbage, so DetectFormat still agrees with the manifest's format
	// tag but the gzip stream itself fails to decode.
	path := filepath.Join(dir, corrupted.ID+".bin.gz")
	require.NoError(t, os.WriteFile(path, []byte{0x1f, 0x8b, 0xff, 0xff, 0xff, 0xff}, 0o644))

	_, _, err = mgr.Load(corrupted.ID)
	assert.Error(t, err)
	assert.Equal(t, corestate.CodeCheckpointValidationFailed, corestate.CodeOf(err))

	bestID, err := mgr.SelectBest()
	require.NoError(t, err)
	assert.Equal(t, best.ID, bestID)
}

func TestPruneKeepsBestAndRecentAboveLimit(t *testing.T) {
	mgr, err := checkpoint.New(t.TempDir(), 2, checkpoint.FormatNativeCompressed)
	require.NoError(t, err)

	first, err := mgr.Save(1, 0.9, []byte{1}, "", nil)
	require.NoError(t, err)
	_, err = mgr.PromoteIfBest(first.ID)
	require.NoError(t, err)

	for cycle := 2; cycle <= 4; cycle++ {
		_, err := mgr.Save(cycle, 0.1, []byte{byte(cycle)}, "", nil)
		require.NoError(t, err)
	}

	require.NoError(t, mgr.Prune())

	entries, err := mgr.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	found := false
	for _, e := range entries {
		if e.ID == first.ID {
			found = true
			assert.True(t, e.IsBest)
		}
	}
	assert.True(t, found, "best checkpoint must survive pruning")
}
