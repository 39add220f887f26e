package plugin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taosdata/tsbackup-core/internal/coordinator"
	"github.com/taosdata/tsbackup-core/internal/errkind"
)

// reset forces the package-level singleton back to nil between tests; real
// callers only ever see Init/Cleanup, but the tests in this file each want
// a clean slate.
func reset(t *testing.T) {
	t.Helper()
	require.NoError(t, Cleanup())
}

func TestInitCleanupLifecycle(t *testing.T) {
	defer reset(t)

	require.NoError(t, Init(nil))
	_, err := GetStats()
	require.NoError(t, err)

	require.NoError(t, Cleanup())
	_, err = GetStats()
	require.Error(t, err)
	require.Equal(t, errkind.NotInitialized, errkind.Of(err))
}

func TestDoubleInitIsReportedNotFatal(t *testing.T) {
	defer reset(t)

	require.NoError(t, Init(nil))
	err := Init(nil)
	require.Error(t, err)
	require.Equal(t, errkind.InitFailed, errkind.Of(err))

	// The first instance must still be usable.
	_, err = GetStats()
	require.NoError(t, err)
}

func TestDoubleCleanupIsNoop(t *testing.T) {
	require.NoError(t, Init(nil))
	require.NoError(t, Cleanup())
	require.NoError(t, Cleanup())
}

func TestOperationsBeforeInitReturnNotInitialized(t *testing.T) {
	require.NoError(t, Cleanup()) // ensure clean slate regardless of test order

	_, err := GetDirtyBlocks(0, 100, make([]uint64, 1))
	require.Equal(t, errkind.NotInitialized, errkind.Of(err))

	_, err = CreateCursor(coordinator.CursorWAL, 0, 0, 0, 100)
	require.Equal(t, errkind.NotInitialized, errkind.Of(err))

	require.Equal(t, errkind.NotInitialized, errkind.Of(ClearError()))
}

func TestConfigRoundTripThroughHooksAndCoordinator(t *testing.T) {
	defer reset(t)

	cfgBytes := []byte(`
event_buffer_size = 4
callback_threads = 1
max_blocks_per_batch = 10
block_size_hint = 2048
`)
	require.NoError(t, Init(cfgBytes))

	hooks, err := Hooks()
	require.NoError(t, err)
	require.NoError(t, hooks.OnBlockCreate(42, 100, 1000))

	require.Eventually(t, func() bool {
		stats, err := GetStats()
		return err == nil && stats.Engine.New == 1
	}, time.Second, 10*time.Millisecond)

	// Cursors stream DIRTY blocks only, so move the block NEW -> DIRTY.
	require.NoError(t, hooks.OnBlockUpdate(42, 200, 2000))
	require.Eventually(t, func() bool {
		stats, err := GetStats()
		return err == nil && stats.Engine.Dirty == 1
	}, time.Second, 10*time.Millisecond)

	cur, err := CreateCursor(coordinator.CursorWAL, 0, 0, 0, 1000)
	require.NoError(t, err)
	out := make([]coordinator.BlockRecord, 10)
	n, err := GetNextBatch(cur, out)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, uint64(42), out[0].BlockID)

	require.NoError(t, DestroyCursor(cur))
}

func TestDefaultConfigSurvivesEmptyConfigBytes(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfigRejectsMalformedTOML(t *testing.T) {
	_, err := ParseConfig([]byte("not = [valid toml"))
	require.Error(t, err)
	require.Equal(t, errkind.InvalidParam, errkind.Of(err))
}
