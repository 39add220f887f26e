package index

import (
	"github.com/tidwall/btree"

	"github.com/taosdata/tsbackup-core/internal/bitmap"
)

type timeEntry struct {
	key int64
	set *bitmap.Set
}

func timeEntryLess(a, b timeEntry) bool { return a.key < b.key }

// TimeIndex maps nanosecond timestamps to the set of block ids whose most
// recent event happened at that instant.
type TimeIndex struct {
	tree *btree.BTreeG[timeEntry]
}

// NewTimeIndex returns an empty time index.
func NewTimeIndex() *TimeIndex {
	return &TimeIndex{tree: btree.NewBTreeG(timeEntryLess)}
}

func (idx *TimeIndex) InsertOrGet(key int64) *bitmap.Set {
	if e, ok := idx.tree.Get(timeEntry{key: key}); ok {
		return e.set
	}
	e := timeEntry{key: key, set: bitmap.New()}
	idx.tree.Set(e)
	return e.set
}

func (idx *TimeIndex) Lookup(key int64) *bitmap.Set {
	if e, ok := idx.tree.Get(timeEntry{key: key}); ok {
		return e.set
	}
	return nil
}

func (idx *TimeIndex) Range(lo, hi int64, closed bool, fn func(key int64, set *bitmap.Set) bool) {
	idx.tree.Ascend(timeEntry{key: lo}, func(e timeEntry) bool {
		if closed {
			if e.key > hi {
				return false
			}
		} else if e.key >= hi {
			return false
		}
		return fn(e.key, e.set)
	})
}

func (idx *TimeIndex) Len() int { return idx.tree.Len() }

var _ RangeIndex = (*TimeIndex)(nil)
