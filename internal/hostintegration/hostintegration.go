// Package hostintegration adapts the storage engine's four hook callbacks
// (block created, updated, flushed, deleted, each carrying
// block_id/wal_offset/timestamp) onto the event interceptor, and the
// interceptor's dequeued events onto the bitmap engine's mark operations.
// Extraction of block id and WAL offset from the host lives entirely here;
// the engine and interceptor stay unaware of host wiring.
package hostintegration

import (
	"github.com/taosdata/tsbackup-core/internal/engine"
	"github.com/taosdata/tsbackup-core/internal/interceptor"
)

// StorageHooks is the interface the storage engine is expected to call
// into on every block lifecycle transition.
type StorageHooks interface {
	OnBlockCreate(blockID, walOffset uint64, timestamp int64) error
	OnBlockUpdate(blockID, walOffset uint64, timestamp int64) error
	OnBlockFlush(blockID, walOffset uint64, timestamp int64) error
	OnBlockDelete(blockID, walOffset uint64, timestamp int64) error
}

type hooks struct {
	ic *interceptor.Interceptor
}

// Bind returns a StorageHooks implementation that submits every callback
// as an Event onto ic's ring buffer, rather than calling the bitmap engine
// directly — the storage engine's write path must never block on (or be
// slowed by) the backup subsystem.
func Bind(ic *interceptor.Interceptor) StorageHooks {
	return &hooks{ic: ic}
}

func (h *hooks) OnBlockCreate(blockID, walOffset uint64, timestamp int64) error {
	return h.ic.Submit(interceptor.Event{Kind: interceptor.BlockCreate, BlockID: blockID, WALOffset: walOffset, Timestamp: timestamp})
}

func (h *hooks) OnBlockUpdate(blockID, walOffset uint64, timestamp int64) error {
	return h.ic.Submit(interceptor.Event{Kind: interceptor.BlockUpdate, BlockID: blockID, WALOffset: walOffset, Timestamp: timestamp})
}

func (h *hooks) OnBlockFlush(blockID, walOffset uint64, timestamp int64) error {
	return h.ic.Submit(interceptor.Event{Kind: interceptor.BlockFlush, BlockID: blockID, WALOffset: walOffset, Timestamp: timestamp})
}

func (h *hooks) OnBlockDelete(blockID, walOffset uint64, timestamp int64) error {
	return h.ic.Submit(interceptor.Event{Kind: interceptor.BlockDelete, BlockID: blockID, WALOffset: walOffset, Timestamp: timestamp})
}

// NewSink builds the interceptor.Sink that forwards a dequeued Event to
// the matching bitmap engine operation. BlockFlush maps to ClearBlock:
// once the storage engine has persisted a block, it leaves the changed
// set until something dirties it again. A flush for an unknown block is
// rejected with BlockNotFound, and one for a block whose state has no legal
// path back to CLEAN is rejected by the transition gate — routine under
// event reordering, and counted as processed by the worker.
func NewSink(eng *engine.Engine) interceptor.Sink {
	return func(ev interceptor.Event) error {
		switch ev.Kind {
		case interceptor.BlockCreate:
			return eng.MarkNew(ev.BlockID, ev.WALOffset, ev.Timestamp)
		case interceptor.BlockUpdate:
			return eng.MarkDirty(ev.BlockID, ev.WALOffset, ev.Timestamp)
		case interceptor.BlockFlush:
			return eng.ClearBlock(ev.BlockID)
		case interceptor.BlockDelete:
			return eng.MarkDeleted(ev.BlockID, ev.WALOffset, ev.Timestamp)
		default:
			return nil
		}
	}
}
