package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewWithFileSinkWritesAndRotatesConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.log")
	logger, err := New(Config{FilePath: path, MaxSizeMB: 1, Level: zapcore.DebugLevel})
	require.NoError(t, err)

	logger.Info("hello")
	// Sync can legitimately fail on the stderr sink (EINVAL on pipes);
	// only the file sink's existence matters here.
	_ = logger.Sync()

	// lumberjack creates the file lazily on first write.
	require.FileExists(t, path)
}

func TestJSONFieldPreMarshalsWithoutReflectionAtLogTime(t *testing.T) {
	f := JSONField("event", map[string]uint64{"block_id": 42})
	require.Equal(t, "event", f.Key)
	require.Equal(t, zapcore.ByteStringType, f.Type)
	require.Contains(t, string(f.Interface.([]byte)), `"block_id":42`)
}

func TestJSONFieldSurvivesUnmarshalableValue(t *testing.T) {
	f := JSONField("bad", func() {})
	require.Equal(t, zapcore.StringType, f.Type)
}
