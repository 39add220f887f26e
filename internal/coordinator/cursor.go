package coordinator

import "github.com/taosdata/tsbackup-core/internal/metadatamap"

// CursorType selects which engine index (or both) a Cursor walks.
type CursorType int

const (
	CursorTime CursorType = iota
	CursorWAL
	CursorHybrid
)

func (t CursorType) String() string {
	switch t {
	case CursorTime:
		return "TIME"
	case CursorWAL:
		return "WAL"
	case CursorHybrid:
		return "HYBRID"
	default:
		return "UNKNOWN"
	}
}

// Cursor is a stateful, non-snapshotting iterator over changed blocks. No
// snapshot is taken at creation time: each GetNextBatch call re-queries
// the live engine state.
type Cursor struct {
	Type               CursorType
	StartTime, EndTime int64
	StartWAL, EndWAL   uint64
	HasMore            bool

	// nextID is the resume position in block-id space: the smallest id
	// the next probe may return. Batches are taken in ascending id order
	// (the bitmap extraction order), not WAL/time order, so advancing
	// this past every id a probe covered makes each probe disjoint from
	// its predecessors no matter how many probes the range needs.
	nextID uint64
}

// NewCursor allocates a cursor in HasMore=true state. There is no
// predicted block count on a cursor; HasMore is derived purely from
// whether a batch returned fewer ids than requested.
func NewCursor(t CursorType, startTime, endTime int64, startWAL, endWAL uint64) *Cursor {
	return &Cursor{
		Type: t, StartTime: startTime, EndTime: endTime,
		StartWAL: startWAL, EndWAL: endWAL, HasMore: true,
	}
}

// BlockRecord is one row of a batch. There is no payload slot: the core
// never materializes block bytes, only metadata.
type BlockRecord struct {
	BlockID   uint64
	WALOffset uint64
	Timestamp int64
	State     metadatamap.State
}
