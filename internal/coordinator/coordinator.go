// Package coordinator implements the backup coordinator: the
// cursor-driven batch API, size estimation, integrity validation, retry
// orchestration, and the error/stat bookkeeping a host reads via
// GetLastError / GetStats.
//
// A Coordinator is an explicit handle-in/handle-out value a caller owns;
// internal/plugin is the only place in the repository a singleton is
// allowed to exist.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	arc "github.com/hashicorp/golang-lru/arc/v2"
	goccy "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/taosdata/tsbackup-core/internal/engine"
	"github.com/taosdata/tsbackup-core/internal/errkind"
	"github.com/taosdata/tsbackup-core/internal/retry"
)

// defaultBlockSizeHint is the per-block size assumption used by size
// estimation when the config does not supply one.
const defaultBlockSizeHint = 1 << 20

// sizeEstimateCacheSize bounds the size-estimation ARC cache.
const sizeEstimateCacheSize = 256

// Config configures a Coordinator.
type Config struct {
	MaxBlocksPerBatch uint32
	BatchTimeoutMS    uint32

	EnableCompression bool
	CompressionLevel  uint8 // 1=fastest, 2=balanced, 3=best
	EnableEncryption  bool
	EncryptionKey     string

	// ErrorRetryMax/ErrorRetryInterval parameterize ExecuteWithRetry.
	ErrorRetryMax      uint32
	ErrorRetryInterval time.Duration

	ErrorStorePath     string
	EnableErrorLogging bool
	ErrorBufferSize    uint32

	BackupPath    string
	BackupMaxSize uint64

	// BlockSizeHint overrides defaultBlockSizeHint for size estimation.
	BlockSizeHint uint64
}

func (c Config) blockSizeHint() uint64 {
	if c.BlockSizeHint == 0 {
		return defaultBlockSizeHint
	}
	return c.BlockSizeHint
}

type sizeEstimate struct {
	blocks uint64
	bytes  uint64
}

// Coordinator is the backup coordinator. It borrows an *engine.Engine for
// its lifetime and never mutates it outside of cursor-driven reads.
type Coordinator struct {
	eng    *engine.Engine
	cfg    Config
	logger *zap.Logger

	cursorsMu sync.Mutex
	cursors   map[*Cursor]struct{}

	errMu      sync.Mutex
	lastKind   errkind.Kind
	lastMsg    string
	lastStack  string
	errorCount uint64
	retryCount uint64

	statsMu           sync.Mutex
	totalBackupBlocks uint64
	totalBackupSize   uint64
	backupDurationMS  uint64

	sizeCache *arc.ARCCache[string, sizeEstimate]
}

// New constructs a Coordinator over eng.
func New(eng *engine.Engine, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, _ := arc.NewARC[string, sizeEstimate](sizeEstimateCacheSize)
	return &Coordinator{
		eng:       eng,
		cfg:       cfg,
		logger:    logger,
		cursors:   make(map[*Cursor]struct{}),
		sizeCache: cache,
	}
}

// GetDirtyBlocks is the coordinator-level mirror of the engine's WAL
// range query, with last-error bookkeeping on failure.
func (c *Coordinator) GetDirtyBlocks(startWAL, endWAL uint64, out []uint64) (int, error) {
	n, err := c.eng.GetDirtyBlocksByWAL(startWAL, endWAL, out)
	if err != nil {
		c.recordError(err)
	}
	return n, err
}

// CreateCursor allocates and tracks a new Cursor.
func (c *Coordinator) CreateCursor(t CursorType, startTime, endTime int64, startWAL, endWAL uint64) *Cursor {
	cur := NewCursor(t, startTime, endTime, startWAL, endWAL)
	c.cursorsMu.Lock()
	c.cursors[cur] = struct{}{}
	c.cursorsMu.Unlock()
	return cur
}

// DestroyCursor releases cur. Destroying an unknown or already-destroyed
// cursor is a no-op.
func (c *Coordinator) DestroyCursor(cur *Cursor) {
	c.cursorsMu.Lock()
	delete(c.cursors, cur)
	c.cursorsMu.Unlock()
}

// GetNextBatch range-queries the index matching the cursor type, fetches
// metadata per id (skipping any that raced with ClearBlock), populates
// out, and sets cursor.HasMore to false once the cursor's range holds
// nothing past the resume position. Each probe resumes in block-id space
// at cur.nextID, so a range with more dirty blocks than one batch — or
// one probe — is streamed to completion across calls rather than
// truncated.
func (c *Coordinator) GetNextBatch(cur *Cursor, out []BlockRecord) (int, error) {
	if cur == nil {
		err := errkind.New(errkind.InvalidParam, "nil cursor")
		c.recordError(err)
		return 0, err
	}
	maxCount := len(out)
	if maxCount == 0 {
		err := errkind.New(errkind.InvalidParam, "output buffer must have positive length")
		c.recordError(err)
		return 0, err
	}

	written := 0
	for written < maxCount && cur.HasMore {
		ids, next, exhausted, err := c.probeStep(cur, cur.nextID, maxCount-written)
		if err != nil {
			c.recordError(err)
			return 0, err
		}
		for _, id := range ids {
			meta, merr := c.eng.GetBlockMetadata(id)
			if merr != nil {
				// Raced with ClearBlock between the range query and
				// this lookup: skip it, not an error; the resume
				// position moves past it regardless.
				continue
			}
			out[written] = BlockRecord{BlockID: meta.BlockID, WALOffset: meta.WALOffset, Timestamp: meta.Timestamp, State: meta.State}
			written++
		}
		cur.nextID = next
		if exhausted {
			cur.HasMore = false
		}
	}
	return written, nil
}

// probeStep asks the engine for up to window dirty block ids at or above
// from, honoring cur's type. It returns the ids in ascending order, the
// resume position for the next step, and whether the range holds nothing
// at or above from beyond what was returned.
func (c *Coordinator) probeStep(cur *Cursor, from uint64, window int) (ids []uint64, next uint64, exhausted bool, err error) {
	switch cur.Type {
	case CursorTime:
		buf := make([]uint64, window)
		n, err := c.eng.GetDirtyBlocksByTimeFrom(cur.StartTime, cur.EndTime, from, buf)
		if err != nil {
			return nil, 0, false, err
		}
		ids, next, exhausted = advancePast(buf[:n], window)
		return ids, next, exhausted, nil
	case CursorWAL:
		buf := make([]uint64, window)
		n, err := c.eng.GetDirtyBlocksByWALFrom(cur.StartWAL, cur.EndWAL, from, buf)
		if err != nil {
			return nil, 0, false, err
		}
		ids, next, exhausted = advancePast(buf[:n], window)
		return ids, next, exhausted, nil
	case CursorHybrid:
		timeBuf := make([]uint64, window)
		tn, err := c.eng.GetDirtyBlocksByTimeFrom(cur.StartTime, cur.EndTime, from, timeBuf)
		if err != nil {
			return nil, 0, false, err
		}
		walBuf := make([]uint64, window)
		wn, err := c.eng.GetDirtyBlocksByWALFrom(cur.StartWAL, cur.EndWAL, from, walBuf)
		if err != nil {
			return nil, 0, false, err
		}
		inter := intersectSorted(timeBuf[:tn], walBuf[:wn])
		// A full probe's last id is its horizon: past it, that index's
		// membership is unknown, so intersection entries beyond the
		// nearer horizon must wait for the next step.
		horizon := uint64(math.MaxUint64)
		full := false
		if tn == window {
			horizon = timeBuf[tn-1]
			full = true
		}
		if wn == window && walBuf[wn-1] < horizon {
			horizon = walBuf[wn-1]
			full = true
		}
		if !full || horizon == math.MaxUint64 {
			return inter, 0, true, nil
		}
		k := 0
		for k < len(inter) && inter[k] <= horizon {
			k++
		}
		return inter[:k], horizon + 1, false, nil
	default:
		return nil, 0, false, errkind.New(errkind.InvalidParam, fmt.Sprintf("unknown cursor type %v", cur.Type))
	}
}

// advancePast derives the resume position from a single-index probe: a
// short result means the range is exhausted, a full one resumes just past
// its last id.
func advancePast(ids []uint64, window int) ([]uint64, uint64, bool) {
	if len(ids) < window {
		return ids, 0, true
	}
	last := ids[len(ids)-1]
	if last == math.MaxUint64 {
		return ids, 0, true
	}
	return ids, last + 1, false
}

// intersectSorted returns the sorted intersection of two ascending slices.
func intersectSorted(a, b []uint64) []uint64 {
	out := make([]uint64, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// EstimateSize returns a cardinality-derived (blocks, bytes) pair over
// [startWAL, endWAL]. The block count is a real probe against the
// WAL-indexed dirty set; the byte count multiplies it by a fixed per-block
// size assumption, so the result is a hint, not a contract.
func (c *Coordinator) EstimateSize(startWAL, endWAL uint64) (blocks, bytes uint64, err error) {
	key := fmt.Sprintf("%d:%d", startWAL, endWAL)
	if cached, ok := c.sizeCache.Get(key); ok {
		return cached.blocks, cached.bytes, nil
	}

	probe := make([]uint64, 1<<20)
	n, err := c.eng.GetDirtyBlocksByWAL(startWAL, endWAL, probe)
	if err != nil {
		c.recordError(err)
		return 0, 0, err
	}
	est := sizeEstimate{blocks: uint64(n), bytes: uint64(n) * c.cfg.blockSizeHint()}
	c.sizeCache.Add(key, est)
	return est.blocks, est.bytes, nil
}

// backupMetadata is the JSON shape GenerateMetadata emits.
type backupMetadata struct {
	StartWAL         uint64 `json:"start_wal"`
	EndWAL           uint64 `json:"end_wal"`
	EstimatedBlocks  uint64 `json:"estimated_blocks"`
	EstimatedBytes   uint64 `json:"estimated_bytes"`
	GeneratedAtMilli int64  `json:"generated_at_ms"`
}

// GenerateMetadata serializes a size-estimate-backed summary for the range
// [startWAL, endWAL] using goccy/go-json, the fast encoder the rest of the
// pack favors for hot-path JSON over encoding/json.
func (c *Coordinator) GenerateMetadata(startWAL, endWAL uint64) ([]byte, error) {
	blocks, size, err := c.EstimateSize(startWAL, endWAL)
	if err != nil {
		return nil, err
	}
	meta := backupMetadata{
		StartWAL: startWAL, EndWAL: endWAL,
		EstimatedBlocks: blocks, EstimatedBytes: size,
		GeneratedAtMilli: time.Now().UnixMilli(),
	}
	b, err := goccy.Marshal(meta)
	if err != nil {
		return nil, errkind.Wrap(errkind.Unknown, err, "marshal metadata")
	}
	return b, nil
}

// ValidateBackup checks that every block in blocks has live metadata and
// a WAL offset within [startWAL, endWAL], failing on the first offender.
func (c *Coordinator) ValidateBackup(startWAL, endWAL uint64, blocks []BlockRecord) error {
	for _, b := range blocks {
		meta, err := c.eng.GetBlockMetadata(b.BlockID)
		if err != nil {
			verr := errkind.New(errkind.BlockNotFound, fmt.Sprintf("block %d has no live metadata", b.BlockID))
			c.recordError(verr)
			return verr
		}
		if meta.WALOffset < startWAL || meta.WALOffset > endWAL {
			verr := errkind.New(errkind.DataCorruption,
				fmt.Sprintf("block %d wal_offset %d outside [%d, %d]", b.BlockID, meta.WALOffset, startWAL, endWAL))
			c.recordError(verr)
			return verr
		}
	}
	return nil
}

// RecordBackupCompletion updates the lifetime stats get_stats reports,
// accumulating across repeated backup runs.
func (c *Coordinator) RecordBackupCompletion(blocks, size uint64, durationMS uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.totalBackupBlocks += blocks
	c.totalBackupSize += size
	c.backupDurationMS += durationMS
}

// GetStats returns lifetime {total_blocks, total_size, duration_ms}.
func (c *Coordinator) GetStats() (totalBlocks, totalSize, durationMS uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.totalBackupBlocks, c.totalBackupSize, c.backupDurationMS
}

// recordError latches the most recent error as {kind, message} and bumps
// the error counter. The coordinator keeps exactly one owned last-error
// string; earlier errors are overwritten.
func (c *Coordinator) recordError(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.lastKind = errkind.Of(err)
	c.lastMsg = err.Error()
	c.lastStack = ""
	var ke *errkind.Error
	if errors.As(err, &ke) {
		c.lastStack = ke.StackTrace()
	}
	c.errorCount++
	if c.cfg.EnableErrorLogging {
		c.logger.Error("coordinator error", zap.String("kind", c.lastKind.String()), zap.Error(err))
	}
}

// GetLastError returns the most recently recorded {kind, message}.
func (c *Coordinator) GetLastError() (errkind.Kind, string) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastKind, c.lastMsg
}

// GetLastErrorStack returns the pkg/errors stack trace captured when the
// most recent error was constructed, empty if none is recorded.
func (c *Coordinator) GetLastErrorStack() string {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastStack
}

// ClearError resets the last-error slot without touching error_count.
func (c *Coordinator) ClearError() {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.lastKind = errkind.Success
	c.lastMsg = ""
	c.lastStack = ""
}

// GetErrorStats returns {error_count, retry_count}.
func (c *Coordinator) GetErrorStats() (errorCount, retryCount uint64) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.errorCount, c.retryCount
}

// ExecuteWithRetry runs op through a fresh retry.Context parameterized by
// cfg.ErrorRetryMax/ErrorRetryInterval, folding any failure into the
// coordinator's error/retry counters.
func (c *Coordinator) ExecuteWithRetry(ctx context.Context, op retry.Op) error {
	rc := retry.NewContext(c.cfg.ErrorRetryMax, c.cfg.ErrorRetryInterval)
	err := rc.ExecuteWithRetry(ctx, op)

	c.errMu.Lock()
	c.retryCount += uint64(rc.CurrentRetry())
	c.errMu.Unlock()

	if err != nil {
		c.recordError(err)
	}
	return err
}

// activeCursorCount is a diagnostic helper, primarily for tests.
func (c *Coordinator) activeCursorCount() int {
	c.cursorsMu.Lock()
	defer c.cursorsMu.Unlock()
	return len(c.cursors)
}
