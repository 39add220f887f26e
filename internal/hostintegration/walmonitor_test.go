package hostintegration

import (
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type recordingHooks struct {
	mu     sync.Mutex
	events []struct {
		id   uint64
		wal  uint64
		ts   int64
		kind string
	}
}

func (r *recordingHooks) record(kind string, id, wal uint64, ts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, struct {
		id   uint64
		wal  uint64
		ts   int64
		kind string
	}{id, wal, ts, kind})
	return nil
}

func (r *recordingHooks) OnBlockCreate(id, wal uint64, ts int64) error {
	return r.record("create", id, wal, ts)
}
func (r *recordingHooks) OnBlockUpdate(id, wal uint64, ts int64) error {
	return r.record("update", id, wal, ts)
}
func (r *recordingHooks) OnBlockFlush(id, wal uint64, ts int64) error {
	return r.record("flush", id, wal, ts)
}
func (r *recordingHooks) OnBlockDelete(id, wal uint64, ts int64) error {
	return r.record("delete", id, wal, ts)
}

func (r *recordingHooks) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestWALMonitorEmitsUpdateOnSegmentGrowth(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/data/0001.wal", []byte("abcd"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/notes.txt", []byte("ignored"), 0o644))

	hooks := &recordingHooks{}
	m := NewWALMonitor(WALMonitorConfig{FS: fs, Dir: "/data", Interval: time.Hour}, hooks)

	m.Scan()
	require.Equal(t, 1, hooks.count(), "first sighting of a segment counts as a change")
	require.Equal(t, "update", hooks.events[0].kind)
	require.Equal(t, uint64(4), hooks.events[0].wal, "wal offset tracks the segment size")

	m.Scan()
	require.Equal(t, 1, hooks.count(), "unchanged segment must not re-fire")

	require.NoError(t, afero.WriteFile(fs, "/data/0001.wal", []byte("abcdefgh"), 0o644))
	m.Scan()
	require.Equal(t, 2, hooks.count())
	require.Equal(t, uint64(8), hooks.events[1].wal)
	require.Equal(t, hooks.events[0].id, hooks.events[1].id, "same segment must keep a stable block id")
}

func TestWALMonitorStartStopLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o755))

	m := NewWALMonitor(WALMonitorConfig{FS: fs, Dir: "/data", Interval: 5 * time.Millisecond}, &recordingHooks{})
	require.NoError(t, m.Start())
	require.NoError(t, m.Start(), "second Start must be a no-op")
	m.Stop()
	m.Stop() // idempotent
}

func TestWALMonitorStartFailsOnMissingDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewWALMonitor(WALMonitorConfig{FS: fs, Dir: "/nope"}, &recordingHooks{})
	require.Error(t, m.Start())
}

func TestDataDirHonorsEnvironment(t *testing.T) {
	t.Setenv(DataDirEnv, "/custom/taos")
	require.Equal(t, "/custom/taos", DataDir())

	t.Setenv(DataDirEnv, "")
	require.Equal(t, DefaultDataDir, DataDir())
}
