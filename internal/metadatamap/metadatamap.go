// Package metadatamap implements the block-id -> metadata table: an
// open-chaining hash map with a parameterizable bucket count (default
// 10,000) that is independent of bitmap size. Buckets are selected with
// xxhash rather than a bare modulus so sequential or clustered block ids
// still spread evenly.
package metadatamap

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// State is one of the four block lifecycle states. Defined here rather
// than in engine to avoid an import cycle between metadatamap and engine's
// transition matrix.
type State int

const (
	Clean State = iota
	Dirty
	New
	Deleted
)

func (s State) String() string {
	switch s {
	case Clean:
		return "CLEAN"
	case Dirty:
		return "DIRTY"
	case New:
		return "NEW"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Metadata is the single record the engine holds for each known block.
type Metadata struct {
	BlockID   uint64
	WALOffset uint64
	Timestamp int64
	State     State
}

// DefaultBucketCount is the stock table size; callers override it when
// their id population is known to be much larger or smaller.
const DefaultBucketCount = 10000

type node struct {
	meta Metadata
	next *node
}

// Map is a fixed-bucket-count, open-chaining hash table from block id to
// Metadata. It is not internally synchronized: the bitmap engine's single
// coarse mutex is the only lock guarding it.
type Map struct {
	buckets []*node
	count   int
}

// NewMap returns an empty Map with the given bucket count (DefaultBucketCount
// if buckets <= 0).
func NewMap(buckets int) *Map {
	if buckets <= 0 {
		buckets = DefaultBucketCount
	}
	return &Map{buckets: make([]*node, buckets)}
}

func (m *Map) bucketIndex(id uint64) int {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], id)
	return int(xxhash.Sum64(key[:]) % uint64(len(m.buckets)))
}

// Get returns the metadata for id and whether it was found.
func (m *Map) Get(id uint64) (Metadata, bool) {
	idx := m.bucketIndex(id)
	for n := m.buckets[idx]; n != nil; n = n.next {
		if n.meta.BlockID == id {
			return n.meta, true
		}
	}
	return Metadata{}, false
}

// Put inserts meta, replacing any existing record for the same block id,
// so repeated events for one id keep exactly one record.
func (m *Map) Put(meta Metadata) {
	idx := m.bucketIndex(meta.BlockID)
	for n := m.buckets[idx]; n != nil; n = n.next {
		if n.meta.BlockID == meta.BlockID {
			n.meta = meta
			return
		}
	}
	m.buckets[idx] = &node{meta: meta, next: m.buckets[idx]}
	m.count++
}

// Delete removes the record for id, if any, and reports whether one was
// removed.
func (m *Map) Delete(id uint64) bool {
	idx := m.bucketIndex(id)
	var prev *node
	for n := m.buckets[idx]; n != nil; n = n.next {
		if n.meta.BlockID == id {
			if prev == nil {
				m.buckets[idx] = n.next
			} else {
				prev.next = n.next
			}
			m.count--
			return true
		}
		prev = n
	}
	return false
}

// Len returns the number of live records.
func (m *Map) Len() int { return m.count }
