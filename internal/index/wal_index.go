package index

import (
	"github.com/google/btree"

	"github.com/taosdata/tsbackup-core/internal/bitmap"
)

type walEntry struct {
	key int64
	set *bitmap.Set
}

func walEntryLess(a, b walEntry) bool { return a.key < b.key }

// walBTreeDegree matches google/btree's own recommended default.
const walBTreeDegree = 32

// WALIndex maps WAL offsets to the set of block ids whose most recent
// event landed at that offset. WAL offsets are unsigned at the API surface;
// callers convert to int64 at the boundary (offsets never approach 2^63 in
// practice).
type WALIndex struct {
	tree *btree.BTreeG[walEntry]
}

// NewWALIndex returns an empty WAL index.
func NewWALIndex() *WALIndex {
	return &WALIndex{tree: btree.NewG(walBTreeDegree, walEntryLess)}
}

func (idx *WALIndex) InsertOrGet(key int64) *bitmap.Set {
	if e, ok := idx.tree.Get(walEntry{key: key}); ok {
		return e.set
	}
	e := walEntry{key: key, set: bitmap.New()}
	idx.tree.ReplaceOrInsert(e)
	return e.set
}

func (idx *WALIndex) Lookup(key int64) *bitmap.Set {
	if e, ok := idx.tree.Get(walEntry{key: key}); ok {
		return e.set
	}
	return nil
}

func (idx *WALIndex) Range(lo, hi int64, closed bool, fn func(key int64, set *bitmap.Set) bool) {
	idx.tree.AscendGreaterOrEqual(walEntry{key: lo}, func(e walEntry) bool {
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

func (idx *WALIndex) Len() int { return idx.tree.Len() }

var _ RangeIndex = (*WALIndex)(nil)
