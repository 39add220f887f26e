// Package plugin is the thin process-wide shim over the library core:
// explicit handle-in/handle-out APIs everywhere below, one singleton here,
// serialized by an initialization lock, with idempotent init and cleanup.
// This package is the only place in the repository allowed to hold a
// global.
package plugin

import (
	"context"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/taosdata/tsbackup-core/internal/coordinator"
	"github.com/taosdata/tsbackup-core/internal/engine"
	"github.com/taosdata/tsbackup-core/internal/errkind"
	"github.com/taosdata/tsbackup-core/internal/hostintegration"
	"github.com/taosdata/tsbackup-core/internal/interceptor"
	"github.com/taosdata/tsbackup-core/internal/logging"
	"github.com/taosdata/tsbackup-core/internal/metrics"
)

// Name and Version back the plugin identity entry points.
const (
	Name    = "tsbackup-core"
	Version = "1.0.0"
)

// Config is the TOML-decoded shape of Init's config bytes, covering the
// bitmap engine, event interceptor, and backup coordinator knobs in one
// flat struct. Struct tags carry both toml (Init's native config format)
// and json (so cmd/backupctl can decode the same shape from an operator
// YAML file via sigs.k8s.io/yaml, which round-trips YAML through JSON
// tags).
type Config struct {
	// Bitmap engine.
	MetadataBuckets int `toml:"metadata_buckets" json:"metadata_buckets,omitempty"`

	// Event interceptor.
	EventBufferSize  int `toml:"event_buffer_size" json:"event_buffer_size,omitempty"`
	CallbackThreads  int `toml:"callback_threads" json:"callback_threads,omitempty"`
	DequeueTimeoutMS int `toml:"dequeue_timeout_ms" json:"dequeue_timeout_ms,omitempty"`

	// Backup coordinator.
	MaxBlocksPerBatch    uint32 `toml:"max_blocks_per_batch" json:"max_blocks_per_batch,omitempty"`
	BatchTimeoutMS       uint32 `toml:"batch_timeout_ms" json:"batch_timeout_ms,omitempty"`
	EnableCompression    bool   `toml:"enable_compression" json:"enable_compression,omitempty"`
	CompressionLevel     uint8  `toml:"compression_level" json:"compression_level,omitempty"`
	EnableEncryption     bool   `toml:"enable_encryption" json:"enable_encryption,omitempty"`
	EncryptionKey        string `toml:"encryption_key" json:"encryption_key,omitempty"`
	ErrorRetryMax        uint32 `toml:"error_retry_max" json:"error_retry_max,omitempty"`
	ErrorRetryIntervalMS uint32 `toml:"error_retry_interval_ms" json:"error_retry_interval_ms,omitempty"`
	ErrorStorePath       string `toml:"error_store_path" json:"error_store_path,omitempty"`
	EnableErrorLogging   bool   `toml:"enable_error_logging" json:"enable_error_logging,omitempty"`
	ErrorBufferSize      uint32 `toml:"error_buffer_size" json:"error_buffer_size,omitempty"`
	BackupPath           string `toml:"backup_path" json:"backup_path,omitempty"`
	BackupMaxSize        uint64 `toml:"backup_max_size" json:"backup_max_size,omitempty"`
	BlockSizeHint        uint64 `toml:"block_size_hint" json:"block_size_hint,omitempty"`

	// Logging, via internal/logging.
	LogFilePath   string `toml:"log_file_path" json:"log_file_path,omitempty"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb" json:"log_max_size_mb,omitempty"`
	LogMaxBackups int    `toml:"log_max_backups" json:"log_max_backups,omitempty"`
	LogMaxAgeDays int    `toml:"log_max_age_days" json:"log_max_age_days,omitempty"`

	// MetricsNamespace prefixes the names of the Prometheus collectors
	// internal/metrics builds. The plugin does not register them on any
	// registry.
	MetricsNamespace string `toml:"metrics_namespace" json:"metrics_namespace,omitempty"`

	// Optional WAL monitor: when enabled, polls the storage engine's WAL
	// directory and synthesizes block-update events for hosts that cannot
	// call the hooks from their write path. WALDir empty means
	// $TDENGINE_DATA_DIR, falling back to /var/lib/taos.
	EnableWALMonitor  bool   `toml:"enable_wal_monitor" json:"enable_wal_monitor,omitempty"`
	WALDir            string `toml:"wal_dir" json:"wal_dir,omitempty"`
	WALPollIntervalMS int    `toml:"wal_poll_interval_ms" json:"wal_poll_interval_ms,omitempty"`
}

// DefaultConfig returns the stock tuning: a 10,000-event queue, four
// workers, three retries a second apart, 10,000 metadata buckets, and a
// 1 MiB per-block size hint.
func DefaultConfig() Config {
	return Config{
		MetadataBuckets:      10000,
		EventBufferSize:      10000,
		CallbackThreads:      4,
		DequeueTimeoutMS:     1000,
		MaxBlocksPerBatch:    1000,
		ErrorRetryMax:        3,
		ErrorRetryIntervalMS: 1000,
		BlockSizeHint:        1 << 20,
		MetricsNamespace:     "tsbackup",
	}
}

// ParseConfig decodes TOML config bytes over DefaultConfig, so unset
// fields keep their defaults rather than zeroing out.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errkind.Wrap(errkind.InvalidParam, err, "parse plugin config")
	}
	return cfg, nil
}

func (cfg Config) coordinatorConfig() coordinator.Config {
	return coordinator.Config{
		MaxBlocksPerBatch:  cfg.MaxBlocksPerBatch,
		BatchTimeoutMS:     cfg.BatchTimeoutMS,
		EnableCompression:  cfg.EnableCompression,
		CompressionLevel:   cfg.CompressionLevel,
		EnableEncryption:   cfg.EnableEncryption,
		EncryptionKey:      cfg.EncryptionKey,
		ErrorRetryMax:      cfg.ErrorRetryMax,
		ErrorRetryInterval: msDuration32(cfg.ErrorRetryIntervalMS),
		ErrorStorePath:     cfg.ErrorStorePath,
		EnableErrorLogging: cfg.EnableErrorLogging,
		ErrorBufferSize:    cfg.ErrorBufferSize,
		BackupPath:         cfg.BackupPath,
		BackupMaxSize:      cfg.BackupMaxSize,
		BlockSizeHint:      cfg.BlockSizeHint,
	}
}

// Plugin bundles one engine/interceptor/coordinator triple, the three
// components the process-wide singleton maintains.
type Plugin struct {
	Engine      *engine.Engine
	Interceptor *interceptor.Interceptor
	Coordinator *coordinator.Coordinator
	Hooks       hostintegration.StorageHooks

	walMonitor *hostintegration.WALMonitor
	logger     *zap.Logger
}

var (
	// mu serializes Init/Cleanup so double-init and use-after-cleanup are
	// well-defined errors rather than data races.
	mu       sync.Mutex
	instance *Plugin
)

// Init constructs the process-wide Plugin from TOML config bytes. A
// second call while already initialized is reported via InitFailed, not
// fatal, and leaves the existing instance untouched.
func Init(configBytes []byte) error {
	cfg, err := ParseConfig(configBytes)
	if err != nil {
		return err
	}
	return InitWithConfig(cfg)
}

// InitWithConfig is Init's counterpart for callers that already have a
// decoded Config — cmd/backupctl uses this for its YAML operator config
// path (sigs.k8s.io/yaml decodes straight into a Config via its json
// tags), bypassing the TOML decoder entirely.
func InitWithConfig(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return errkind.New(errkind.InitFailed, "plugin already initialized")
	}

	logger := zap.NewNop()
	if cfg.LogFilePath != "" {
		l, lerr := logging.New(logging.Config{
			FilePath:   cfg.LogFilePath,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		})
		if lerr != nil {
			return errkind.Wrap(errkind.InitFailed, lerr, "init logger")
		}
		logger = l
	}

	ms := metrics.New(cfg.MetricsNamespace)

	eng := engine.New(engine.Config{
		MetadataBuckets: cfg.MetadataBuckets,
		Logger:          logger,
		Metrics:         ms,
	})

	ic := interceptor.New(interceptor.Config{
		EventBufferSize: cfg.EventBufferSize,
		CallbackThreads: cfg.CallbackThreads,
		DequeueTimeout:  msDuration(cfg.DequeueTimeoutMS),
		Metrics:         ms,
		Logger:          logger,
	}, hostintegration.NewSink(eng))

	if err := ic.Start(context.Background()); err != nil {
		return errkind.Wrap(errkind.InitFailed, err, "start event interceptor")
	}

	co := coordinator.New(eng, cfg.coordinatorConfig(), logger)
	hooks := hostintegration.Bind(ic)

	var wm *hostintegration.WALMonitor
	if cfg.EnableWALMonitor {
		wm = hostintegration.NewWALMonitor(hostintegration.WALMonitorConfig{
			Dir:      cfg.WALDir,
			Interval: msDuration(cfg.WALPollIntervalMS),
			Logger:   logger,
		}, hooks)
		if err := wm.Start(); err != nil {
			ic.Stop()
			return errkind.Wrap(errkind.InitFailed, err, "start wal monitor")
		}
	}

	instance = &Plugin{
		Engine:      eng,
		Interceptor: ic,
		Coordinator: co,
		Hooks:       hooks,
		walMonitor:  wm,
		logger:      logger,
	}
	return nil
}

// Cleanup tears down the process-wide Plugin. Cleanup on an uninitialized
// or already-cleaned-up plugin is a no-op.
func Cleanup() error {
	mu.Lock()
	defer mu.Unlock()

	if instance == nil {
		return nil
	}
	if instance.walMonitor != nil {
		instance.walMonitor.Stop()
	}
	err := instance.Interceptor.Stop()
	instance = nil
	if err != nil {
		return errkind.Wrap(errkind.InitFailed, err, "stop event interceptor")
	}
	return nil
}

// current returns the active Plugin or a NotInitialized error, the gate
// every other entry point below passes through.
func current() (*Plugin, error) {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		return nil, errkind.New(errkind.NotInitialized, "plugin not initialized")
	}
	return instance, nil
}

// Hooks returns the storage-engine callback surface a host binds its four
// block lifecycle events to.
func Hooks() (hostintegration.StorageHooks, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return p.Hooks, nil
}

// GetDirtyBlocks is the plugin_init-gated get_dirty_blocks entry point.
func GetDirtyBlocks(startWAL, endWAL uint64, out []uint64) (int, error) {
	p, err := current()
	if err != nil {
		return 0, err
	}
	return p.Coordinator.GetDirtyBlocks(startWAL, endWAL, out)
}

// CreateCursor is the plugin_init-gated create_cursor entry point.
func CreateCursor(t coordinator.CursorType, startTime, endTime int64, startWAL, endWAL uint64) (*coordinator.Cursor, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return p.Coordinator.CreateCursor(t, startTime, endTime, startWAL, endWAL), nil
}

// DestroyCursor is the plugin_init-gated destroy_cursor entry point.
func DestroyCursor(cur *coordinator.Cursor) error {
	p, err := current()
	if err != nil {
		return err
	}
	p.Coordinator.DestroyCursor(cur)
	return nil
}

// GetNextBatch is the plugin_init-gated get_next_batch entry point.
func GetNextBatch(cur *coordinator.Cursor, out []coordinator.BlockRecord) (int, error) {
	p, err := current()
	if err != nil {
		return 0, err
	}
	return p.Coordinator.GetNextBatch(cur, out)
}

// EstimateSize is the plugin_init-gated estimate_size entry point.
func EstimateSize(startWAL, endWAL uint64) (blocks, bytes uint64, err error) {
	p, err := current()
	if err != nil {
		return 0, 0, err
	}
	return p.Coordinator.EstimateSize(startWAL, endWAL)
}

// GenerateMetadata is the plugin_init-gated generate_metadata entry point.
func GenerateMetadata(startWAL, endWAL uint64) ([]byte, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return p.Coordinator.GenerateMetadata(startWAL, endWAL)
}

// ValidateBackup is the plugin_init-gated validate_backup entry point.
func ValidateBackup(startWAL, endWAL uint64, blocks []coordinator.BlockRecord) error {
	p, err := current()
	if err != nil {
		return err
	}
	return p.Coordinator.ValidateBackup(startWAL, endWAL, blocks)
}

// Stats bundles the engine and coordinator totals behind get_stats.
type Stats struct {
	Engine            engine.Stats
	TotalBackupBlocks uint64
	TotalBackupSize   uint64
	BackupDurationMS  uint64
	ErrorCount        uint64
	RetryCount        uint64
}

// GetStats is the plugin_init-gated get_stats entry point.
func GetStats() (Stats, error) {
	p, err := current()
	if err != nil {
		return Stats{}, err
	}
	blocks, size, duration := p.Coordinator.GetStats()
	errCount, retryCount := p.Coordinator.GetErrorStats()
	return Stats{
		Engine:            p.Engine.Stats(),
		TotalBackupBlocks: blocks,
		TotalBackupSize:   size,
		BackupDurationMS:  duration,
		ErrorCount:        errCount,
		RetryCount:        retryCount,
	}, nil
}

// GetLastError is the plugin_init-gated get_last_error entry point.
func GetLastError() (string, error) {
	p, err := current()
	if err != nil {
		return "", err
	}
	kind, msg := p.Coordinator.GetLastError()
	if kind == errkind.Success {
		return "", nil
	}
	return kind.String() + ": " + msg, nil
}

// ClearError is the plugin_init-gated clear_error entry point.
func ClearError() error {
	p, err := current()
	if err != nil {
		return err
	}
	p.Coordinator.ClearError()
	return nil
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func msDuration32(ms uint32) time.Duration { return time.Duration(ms) * time.Millisecond }
