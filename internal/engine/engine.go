// Package engine implements the bitmap engine: state-machine-guarded
// bitmap/metadata updates and the dual time/WAL range queries the backup
// coordinator reads from.
package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/taosdata/tsbackup-core/internal/bitmap"
	"github.com/taosdata/tsbackup-core/internal/errkind"
	"github.com/taosdata/tsbackup-core/internal/index"
	"github.com/taosdata/tsbackup-core/internal/metadatamap"
	"github.com/taosdata/tsbackup-core/internal/metrics"
)

// Stats is the snapshot returned by Engine.Stats.
type Stats struct {
	Total   uint64
	Dirty   uint64
	New     uint64
	Deleted uint64
}

// Config configures a new Engine.
type Config struct {
	// MetadataBuckets sizes the metadata hash table (default 10,000,
	// independent of bitmap size).
	MetadataBuckets int
	Logger          *zap.Logger
	Metrics         *metrics.Set
}

// Engine is the concurrency-safe bitmap engine. One coarse mutex covers
// all state-changing operations; read-only range queries take the shared
// read side, so concurrent readers are permitted and exclude writers.
type Engine struct {
	mu sync.RWMutex

	dirty   *bitmap.Set
	newSet  *bitmap.Set
	deleted *bitmap.Set

	timeIndex *index.TimeIndex
	walIndex  *index.WALIndex
	meta      *metadatamap.Map

	logger  *zap.Logger
	metrics *metrics.Set
}

// New constructs an empty Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		dirty:     bitmap.New(),
		newSet:    bitmap.New(),
		deleted:   bitmap.New(),
		timeIndex: index.NewTimeIndex(),
		walIndex:  index.NewWALIndex(),
		meta:      metadatamap.NewMap(cfg.MetadataBuckets),
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}

// MarkDirty validates CURRENT->DIRTY and records the event.
func (e *Engine) MarkDirty(id, wal uint64, ts int64) error {
	return e.mark(id, wal, ts, metadatamap.Dirty)
}

// MarkNew validates CURRENT->NEW and records the event.
func (e *Engine) MarkNew(id, wal uint64, ts int64) error {
	return e.mark(id, wal, ts, metadatamap.New)
}

// MarkDeleted validates CURRENT->DELETED and records the event.
func (e *Engine) MarkDeleted(id, wal uint64, ts int64) error {
	return e.mark(id, wal, ts, metadatamap.Deleted)
}

func (e *Engine) mark(id, wal uint64, ts int64, target metadatamap.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := metadatamap.Clean
	if existing, ok := e.meta.Get(id); ok {
		current = existing.State
	}
	if !legalTransition(current, target) {
		return errkind.New(errkind.InvalidStateTransition,
			fmt.Sprintf("block %d: %s -> %s is not a legal transition", id, current, target))
	}

	e.setFor(current).Remove(id)
	e.setFor(target).Add(id)
	e.meta.Put(metadatamap.Metadata{BlockID: id, WALOffset: wal, Timestamp: ts, State: target})
	e.timeIndex.InsertOrGet(ts).Add(id)
	e.walIndex.InsertOrGet(int64(wal)).Add(id)

	e.refreshMetricsLocked()
	e.logger.Debug("mark",
		zap.Uint64("block_id", id), zap.String("from", current.String()),
		zap.String("to", target.String()), zap.Uint64("wal_offset", wal), zap.Int64("ts", ts))
	return nil
}

// ClearBlock validates CURRENT->CLEAN, removes id from every set bitmap,
// and drops its metadata entirely.
func (e *Engine) ClearBlock(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.meta.Get(id)
	if !ok {
		return errkind.New(errkind.BlockNotFound, fmt.Sprintf("block %d", id))
	}
	if !legalTransition(existing.State, metadatamap.Clean) {
		return errkind.New(errkind.InvalidStateTransition,
			fmt.Sprintf("block %d: %s -> CLEAN is not a legal transition", id, existing.State))
	}

	e.setFor(existing.State).Remove(id)
	e.meta.Delete(id)
	e.refreshMetricsLocked()
	return nil
}

// setFor returns the process-wide bitmap backing state s, or nil for CLEAN
// (which has no backing bitmap — a block either has no metadata, or its
// membership is in exactly one of dirty/new/deleted).
func (e *Engine) setFor(s metadatamap.State) *bitmap.Set {
	switch s {
	case metadatamap.Dirty:
		return e.dirty
	case metadatamap.New:
		return e.newSet
	case metadatamap.Deleted:
		return e.deleted
	default:
		return noopSet
	}
}

// noopSet absorbs Add/Remove calls for the CLEAN pseudo-state so setFor
// never needs a nil check at the call site.
var noopSet = bitmap.New()

// GetDirtyBlocksByTime range-walks the time index and extracts up to
// len(out) dirty block ids in [lo, hi] into out, returning the count
// written. Never mutates any index.
func (e *Engine) GetDirtyBlocksByTime(lo, hi int64, out []uint64) (int, error) {
	return e.rangeQuery(e.timeIndex, lo, hi, 0, out)
}

// GetDirtyBlocksByWAL is GetDirtyBlocksByTime's WAL-offset-keyed twin.
func (e *Engine) GetDirtyBlocksByWAL(lo, hi uint64, out []uint64) (int, error) {
	return e.rangeQuery(e.walIndex, int64(lo), int64(hi), 0, out)
}

// GetDirtyBlocksByTimeFrom is GetDirtyBlocksByTime restricted to block ids
// >= from. Cursor pagination resumes here so a result set larger than one
// output buffer is walked to completion across calls, never re-reading
// delivered ids.
func (e *Engine) GetDirtyBlocksByTimeFrom(lo, hi int64, from uint64, out []uint64) (int, error) {
	return e.rangeQuery(e.timeIndex, lo, hi, from, out)
}

// GetDirtyBlocksByWALFrom is GetDirtyBlocksByTimeFrom's WAL-offset-keyed
// twin.
func (e *Engine) GetDirtyBlocksByWALFrom(lo, hi, from uint64, out []uint64) (int, error) {
	return e.rangeQuery(e.walIndex, int64(lo), int64(hi), from, out)
}

func (e *Engine) rangeQuery(idx index.RangeIndex, lo, hi int64, from uint64, out []uint64) (int, error) {
	if len(out) == 0 {
		return 0, errkind.New(errkind.InvalidParam, "output buffer must have positive length")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	union := bitmap.New()
	idx.Range(lo, hi, true, func(_ int64, set *bitmap.Set) bool {
		inter := set.Clone()
		inter.IntersectInPlace(e.dirty)
		union.UnionInPlace(inter)
		return true
	})
	return union.ExtractFrom(from, out), nil
}

// GetBlockMetadata returns the live metadata for id, or BlockNotFound.
func (e *Engine) GetBlockMetadata(id uint64) (metadatamap.Metadata, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.meta.Get(id)
	if !ok {
		return metadatamap.Metadata{}, errkind.New(errkind.BlockNotFound, fmt.Sprintf("block %d", id))
	}
	return m, nil
}

// GetBlockState returns the current state for id, or BlockNotFound.
func (e *Engine) GetBlockState(id uint64) (metadatamap.State, error) {
	m, err := e.GetBlockMetadata(id)
	if err != nil {
		return metadatamap.Clean, err
	}
	return m.State, nil
}

// Stats snapshots {total, dirty, new, deleted}.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Total:   uint64(e.meta.Len()),
		Dirty:   e.dirty.Cardinality(),
		New:     e.newSet.Cardinality(),
		Deleted: e.deleted.Cardinality(),
	}
}

// refreshMetricsLocked pushes cardinality-derived gauges to Prometheus.
// Counts are always recomputed from bitmap cardinalities, never
// incremented/decremented independently, so a lost race can skew a gauge
// only until the next mutation recomputes it. Must be called with mu held.
func (e *Engine) refreshMetricsLocked() {
	if e.metrics == nil {
		return
	}
	e.metrics.TotalBlocks.Set(float64(e.meta.Len()))
	e.metrics.DirtyBlocks.Set(float64(e.dirty.Cardinality()))
	e.metrics.NewBlocks.Set(float64(e.newSet.Cardinality()))
	e.metrics.DeletedBlocks.Set(float64(e.deleted.Cardinality()))
}
