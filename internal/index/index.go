// Package index implements the ordered key->bitmap indices behind the
// bitmap engine: the time index (key = nanosecond timestamp) and the WAL
// index (key = WAL offset), each supporting insert-or-get and an
// ascending-order range callback.
package index

import (
	"github.com/taosdata/tsbackup-core/internal/bitmap"
)

// RangeIndex is the contract the bitmap engine depends on, keeping it
// independent of any particular tree implementation.
type RangeIndex interface {
	// InsertOrGet returns the bitmap stored at key, creating an empty one
	// first if key is absent.
	InsertOrGet(key int64) *bitmap.Set
	// Lookup returns the bitmap at key, or nil if key is absent.
	Lookup(key int64) *bitmap.Set
	// Range invokes fn for every (key, bitmap) pair with lo <= key <= hi
	// (or lo <= key < hi when closed is false), in ascending key order.
	// fn returning false stops the walk early.
	Range(lo, hi int64, closed bool, fn func(key int64, set *bitmap.Set) bool)
	// Len returns the number of distinct keys currently stored.
	Len() int
}
