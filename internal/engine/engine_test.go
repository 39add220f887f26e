package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taosdata/tsbackup-core/internal/errkind"
	"github.com/taosdata/tsbackup-core/internal/metadatamap"
)

func TestStateMachineHappyPathAndTerminalRejection(t *testing.T) {
	e := New(Config{})

	require.NoError(t, e.MarkNew(42, 100, 1000))
	st, err := e.GetBlockState(42)
	require.NoError(t, err)
	require.Equal(t, metadatamap.New, st)

	require.NoError(t, e.MarkDirty(42, 200, 2000))
	st, err = e.GetBlockState(42)
	require.NoError(t, err)
	require.Equal(t, metadatamap.Dirty, st)

	require.NoError(t, e.MarkDeleted(42, 300, 3000))
	st, err = e.GetBlockState(42)
	require.NoError(t, err)
	require.Equal(t, metadatamap.Deleted, st)

	err = e.MarkDirty(42, 400, 4000)
	require.Error(t, err)
	require.Equal(t, errkind.InvalidStateTransition, errkind.Of(err))

	// DELETED is terminal: state must be unchanged by the rejected call.
	st, err = e.GetBlockState(42)
	require.NoError(t, err)
	require.Equal(t, metadatamap.Deleted, st)
}

func TestRangeQueryByWALReturnsOnlyDirtyInWindow(t *testing.T) {
	e := New(Config{})

	require.NoError(t, e.MarkDirty(1001, 1000, 100))
	require.NoError(t, e.MarkDirty(1002, 2000, 200))
	require.NoError(t, e.MarkDirty(1003, 3000, 300))
	require.NoError(t, e.MarkDirty(1004, 4000, 400))

	out := make([]uint64, 8)
	n, err := e.GetDirtyBlocksByWAL(1500, 3500, out)
	require.NoError(t, err)
	require.Equal(t, []uint64{1002, 1003}, out[:n])
}

func TestRangeQueryExcludesNonDirtyStates(t *testing.T) {
	e := New(Config{})

	require.NoError(t, e.MarkNew(1, 1000, 10))
	require.NoError(t, e.MarkDirty(2, 1000, 10))
	require.NoError(t, e.MarkNew(3, 1000, 10))
	require.NoError(t, e.MarkDirty(3, 1000, 10))
	require.NoError(t, e.MarkDeleted(3, 1000, 10))

	out := make([]uint64, 8)
	n, err := e.GetDirtyBlocksByWAL(0, 5000, out)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, out[:n], "NEW and DELETED blocks must never appear in a dirty-blocks query")
}

func TestClearBlockDropsMetadataAndBitmapMembership(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.MarkDirty(7, 100, 10))
	require.NoError(t, e.ClearBlock(7))

	_, err := e.GetBlockMetadata(7)
	require.Error(t, err)
	require.Equal(t, errkind.BlockNotFound, errkind.Of(err))

	out := make([]uint64, 4)
	n, err := e.GetDirtyBlocksByWAL(0, 1000, out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestClearBlockOnUnknownIDIsBlockNotFound(t *testing.T) {
	e := New(Config{})
	err := e.ClearBlock(999)
	require.Error(t, err)
	require.Equal(t, errkind.BlockNotFound, errkind.Of(err))
}

func TestRangeQueryFromResumesPastDeliveredIDs(t *testing.T) {
	e := New(Config{})
	for i := uint64(1); i <= 6; i++ {
		require.NoError(t, e.MarkDirty(i, 100*i, int64(i)))
	}

	out := make([]uint64, 3)
	n, err := e.GetDirtyBlocksByWALFrom(0, 1000, 0, out)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, out[:n])

	n, err = e.GetDirtyBlocksByWALFrom(0, 1000, 4, out)
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 5, 6}, out[:n])
}

func TestRangeQueryRejectsZeroLengthBuffer(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.MarkDirty(1, 1, 1))
	_, err := e.GetDirtyBlocksByTime(0, 10, nil)
	require.Error(t, err)
	require.Equal(t, errkind.InvalidParam, errkind.Of(err))
}

func TestStatsReflectCardinalitiesNotCounters(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.MarkNew(1, 1, 1))
	require.NoError(t, e.MarkDirty(2, 1, 1))
	require.NoError(t, e.MarkNew(3, 1, 1))
	require.NoError(t, e.MarkDirty(3, 2, 2))
	require.NoError(t, e.MarkDeleted(3, 3, 3))

	stats := e.Stats()
	require.Equal(t, Stats{Total: 3, Dirty: 1, New: 1, Deleted: 1}, stats)
}

func TestDisjointnessInvariant(t *testing.T) {
	e := New(Config{})
	ids := []uint64{10, 11, 12, 13}
	for _, id := range ids {
		require.NoError(t, e.MarkNew(id, id, int64(id)))
	}
	require.NoError(t, e.MarkDirty(11, 11, 11))
	require.NoError(t, e.MarkDeleted(12, 12, 12))

	require.False(t, e.newSet.Contains(11), "block moved out of NEW must not remain a NEW member")
	require.True(t, e.dirty.Contains(11))
	require.False(t, e.newSet.Contains(12))
	require.True(t, e.deleted.Contains(12))
	require.True(t, e.newSet.Contains(10))
	require.True(t, e.newSet.Contains(13))
}
