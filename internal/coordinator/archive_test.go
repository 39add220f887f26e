package coordinator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/taosdata/tsbackup-core/internal/container"
	"github.com/taosdata/tsbackup-core/internal/engine"
)

// gofrs/flock locks a real path on the OS filesystem, so these tests use
// afero.NewOsFs over a t.TempDir() rather than an in-memory afero.Fs: a
// MemMapFs would never agree with flock about what "locked" means.

func TestWriteReadBackupFileRoundTrip(t *testing.T) {
	eng := engine.New(engine.Config{})
	co := New(eng, Config{}, nil)
	fs := afero.NewOsFs()
	path := filepath.Join(t.TempDir(), "a.taosz")

	hdr := container.Header{ObjName: "db1", Timestamp: 123, FileSeq: 1}
	blocks := []container.Block{{Type: 1, MsgType: 1, Body: []byte("payload")}}

	require.NoError(t, co.WriteBackupFile(context.Background(), fs, path, hdr, blocks))

	gotHdr, gotBlocks, err := co.ReadBackupFile(fs, path)
	require.NoError(t, err)
	require.Equal(t, hdr, gotHdr)
	require.Equal(t, blocks, gotBlocks)
}

func TestWriteReadBackupFileWithCompression(t *testing.T) {
	eng := engine.New(engine.Config{})
	co := New(eng, Config{EnableCompression: true, CompressionLevel: 1}, nil)
	fs := afero.NewOsFs()
	path := filepath.Join(t.TempDir(), "b.taosz")

	hdr := container.Header{ObjName: "db2"}
	blocks := []container.Block{{Type: 2, MsgType: 0, Body: []byte("compress me compress me compress me")}}

	require.NoError(t, co.WriteBackupFile(context.Background(), fs, path, hdr, blocks))

	gotHdr, gotBlocks, err := co.ReadBackupFile(fs, path)
	require.NoError(t, err)
	require.Equal(t, hdr, gotHdr)
	require.Equal(t, blocks, gotBlocks)
}
