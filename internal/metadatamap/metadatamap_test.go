package metadatamap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	m := NewMap(8)
	m.Put(Metadata{BlockID: 42, WALOffset: 100, Timestamp: 1000, State: New})

	got, ok := m.Get(42)
	require.True(t, ok)
	require.Equal(t, uint64(100), got.WALOffset)
	require.Equal(t, New, got.State)

	require.Equal(t, 1, m.Len())
	require.True(t, m.Delete(42))
	require.Equal(t, 0, m.Len())
	_, ok = m.Get(42)
	require.False(t, ok)
}

func TestPutUpdatesExisting(t *testing.T) {
	m := NewMap(8)
	m.Put(Metadata{BlockID: 1, State: New, WALOffset: 1})
	m.Put(Metadata{BlockID: 1, State: Dirty, WALOffset: 2})

	got, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, Dirty, got.State)
	require.Equal(t, uint64(2), got.WALOffset)
	require.Equal(t, 1, m.Len(), "update must not grow the table")
}

func TestCollisionChaining(t *testing.T) {
	m := NewMap(1) // force every key into the same bucket
	for id := uint64(0); id < 50; id++ {
		m.Put(Metadata{BlockID: id, State: Dirty})
	}
	require.Equal(t, 50, m.Len())
	for id := uint64(0); id < 50; id++ {
		got, ok := m.Get(id)
		require.True(t, ok)
		require.Equal(t, id, got.BlockID)
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	m := NewMap(8)
	require.False(t, m.Delete(123))
}
