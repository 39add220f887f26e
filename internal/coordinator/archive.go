package coordinator

import (
	"context"
	"io"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/taosdata/tsbackup-core/internal/container"
	"github.com/taosdata/tsbackup-core/internal/errkind"
)

// lockAcquireTimeout bounds how long WriteBackupFile waits for the
// companion .lock file before giving up and classifying the attempt as a
// retryable FileIO failure.
const lockAcquireTimeout = 2 * time.Second

func zstdLevel(level uint8) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// WriteBackupFile serializes a container archive to path on fs under an
// exclusive file lock (so multiple coordinator processes sharing a
// BackupPath can't interleave writes), optionally zstd-compressed per
// Config.EnableCompression, and runs the whole attempt through
// ExecuteWithRetry. All write state is per-call: nothing is shared between
// concurrent WriteBackupFile invocations.
func (c *Coordinator) WriteBackupFile(ctx context.Context, fs afero.Fs, path string, hdr container.Header, blocks []container.Block) error {
	lk := flock.New(path + ".lock")

	op := func(opCtx context.Context) error {
		lockCtx, cancel := context.WithTimeout(opCtx, lockAcquireTimeout)
		defer cancel()
		locked, err := lk.TryLockContext(lockCtx, 20*time.Millisecond)
		if err != nil {
			return errkind.Wrap(errkind.FileIO, err, "acquire backup file lock")
		}
		if !locked {
			return errkind.New(errkind.FileIO, "backup file locked by another writer")
		}
		defer lk.Unlock()

		f, err := fs.Create(path)
		if err != nil {
			return errkind.Wrap(errkind.FileIO, err, "create backup file")
		}
		defer f.Close()

		var w io.Writer = f
		var zw *zstd.Encoder
		if c.cfg.EnableCompression {
			zw, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstdLevel(c.cfg.CompressionLevel)))
			if err != nil {
				return errkind.Wrap(errkind.FileIO, err, "init compressor")
			}
			w = zw
		}

		if err := container.Write(w, hdr, blocks); err != nil {
			return err
		}
		if zw != nil {
			if err := zw.Close(); err != nil {
				return errkind.Wrap(errkind.FileIO, err, "close compressor")
			}
		}
		return nil
	}

	return c.ExecuteWithRetry(ctx, op)
}

// ReadBackupFile is WriteBackupFile's inverse: opens path on fs, undoes the
// same optional zstd framing, and parses + CRC-validates the container.
func (c *Coordinator) ReadBackupFile(fs afero.Fs, path string) (container.Header, []container.Block, error) {
	f, err := fs.Open(path)
	if err != nil {
		return container.Header{}, nil, errkind.Wrap(errkind.FileIO, err, "open backup file")
	}
	defer f.Close()

	var r io.Reader = f
	if c.cfg.EnableCompression {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return container.Header{}, nil, errkind.Wrap(errkind.FileIO, err, "init decompressor")
		}
		defer zr.Close()
		r = zr
	}

	return container.Read(r)
}
