package hostintegration

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/taosdata/tsbackup-core/internal/errkind"
)

// DataDirEnv names the environment variable identifying the storage
// engine's data root. WAL segments live directly under it.
const DataDirEnv = "TDENGINE_DATA_DIR"

// DefaultDataDir is used when DataDirEnv is unset.
const DefaultDataDir = "/var/lib/taos"

// DataDir resolves the storage engine's data root from the environment.
func DataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	return DefaultDataDir
}

// walSuffix marks the segment files the monitor watches.
const walSuffix = ".wal"

// defaultPollInterval paces the monitor's directory scans.
const defaultPollInterval = time.Second

// WALMonitor is the optional fallback event source for hosts that cannot
// call StorageHooks from their write path: it polls the WAL directory and
// synthesizes a block-update event when it first sees a segment file and
// whenever that file's size changes afterwards. The
// block id is a stable hash of the segment path and the WAL offset is the
// segment's current size — both derived from the file, since a directory
// scan has no access to in-engine block identity.
type WALMonitor struct {
	fs       afero.Fs
	dir      string
	hooks    StorageHooks
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	sizes   map[string]int64
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// WALMonitorConfig configures NewWALMonitor. A zero Dir falls back to
// DataDir(); a zero Interval falls back to one second; a nil FS uses the
// real filesystem.
type WALMonitorConfig struct {
	FS       afero.Fs
	Dir      string
	Interval time.Duration
	Logger   *zap.Logger
}

// NewWALMonitor builds a monitor that feeds hooks. It does not start
// scanning until Start is called.
func NewWALMonitor(cfg WALMonitorConfig, hooks StorageHooks) *WALMonitor {
	fs := cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = DataDir()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WALMonitor{
		fs:       fs,
		dir:      dir,
		hooks:    hooks,
		interval: interval,
		logger:   logger,
		sizes:    make(map[string]int64),
	}
}

// Start begins polling. Idempotent on an already-running monitor. Fails
// with FileIO when the WAL directory cannot be read at all.
func (m *WALMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	if _, err := afero.ReadDir(m.fs, m.dir); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "open wal directory "+m.dir)
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.loop(m.stopCh, m.doneCh)
	return nil
}

// Stop halts polling and waits for the scan loop to exit. Idempotent.
func (m *WALMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()
	<-done
}

func (m *WALMonitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Scan()
		}
	}
}

// Scan performs one pass over the WAL directory, emitting an
// OnBlockUpdate for every segment whose size changed since the previous
// pass. Exported so tests (and hosts that want to drive their own cadence)
// can poll synchronously.
func (m *WALMonitor) Scan() {
	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		m.logger.Warn("wal scan failed", zap.String("dir", m.dir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), walSuffix) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		size := entry.Size()

		m.mu.Lock()
		prev, seen := m.sizes[path]
		m.sizes[path] = size
		m.mu.Unlock()

		if seen && prev == size {
			continue
		}
		id := xxhash.Sum64String(path)
		if err := m.hooks.OnBlockUpdate(id, uint64(size), entry.ModTime().UnixNano()); err != nil {
			// A full event queue drops the update; the next size change
			// for this segment produces a fresh one.
			m.logger.Debug("wal update not ingested", zap.String("segment", path), zap.Error(err))
		}
	}
}
