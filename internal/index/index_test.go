package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taosdata/tsbackup-core/internal/bitmap"
)

func TestTimeIndexRangeAscendingClosed(t *testing.T) {
	idx := NewTimeIndex()
	for _, kv := range []struct {
		k  int64
		id uint64
	}{{1, 1001}, {2, 1002}, {3, 1003}, {4, 1004}} {
		idx.InsertOrGet(kv.k).Add(kv.id)
	}

	var keysSeen []int64
	idx.Range(2, 3, true, func(key int64, set *bitmap.Set) bool {
		keysSeen = append(keysSeen, key)
		return true
	})
	require.Equal(t, []int64{2, 3}, keysSeen)
}

func TestWALIndexHalfOpenRange(t *testing.T) {
	idx := NewWALIndex()
	idx.InsertOrGet(1000).Add(1)
	idx.InsertOrGet(2000).Add(2)
	idx.InsertOrGet(3000).Add(3)

	var keys []int64
	idx.Range(1000, 3000, false, func(key int64, set *bitmap.Set) bool {
		keys = append(keys, key)
		return true
	})
	require.Equal(t, []int64{1000, 2000}, keys)
}

func TestInsertOrGetIsIdempotent(t *testing.T) {
	idx := NewTimeIndex()
	a := idx.InsertOrGet(5)
	b := idx.InsertOrGet(5)
	require.Same(t, a, b)
	require.Equal(t, 1, idx.Len())
}

func TestRangeEarlyStop(t *testing.T) {
	idx := NewWALIndex()
	for k := int64(0); k < 10; k++ {
		idx.InsertOrGet(k * 100)
	}
	var seen int
	idx.Range(0, 900, true, func(key int64, set *bitmap.Set) bool {
		seen++
		return key < 300
	})
	require.Equal(t, 4, seen)
}
