package hostintegration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taosdata/tsbackup-core/internal/engine"
	"github.com/taosdata/tsbackup-core/internal/interceptor"
	"github.com/taosdata/tsbackup-core/internal/metadatamap"
)

func TestHookLifecycleReachesEngine(t *testing.T) {
	eng := engine.New(engine.Config{})
	ic := interceptor.New(interceptor.Config{EventBufferSize: 16, CallbackThreads: 2, DequeueTimeout: 20 * time.Millisecond}, NewSink(eng))
	require.NoError(t, ic.Start(context.Background()))
	defer ic.Stop()

	h := Bind(ic)
	require.NoError(t, h.OnBlockCreate(1, 100, 1000))
	require.Eventually(t, func() bool {
		st, err := eng.GetBlockState(1)
		return err == nil && st == metadatamap.New
	}, time.Second, time.Millisecond)

	require.NoError(t, h.OnBlockUpdate(1, 200, 2000))
	require.Eventually(t, func() bool {
		st, err := eng.GetBlockState(1)
		return err == nil && st == metadatamap.Dirty
	}, time.Second, time.Millisecond)

	require.NoError(t, h.OnBlockDelete(1, 300, 3000))
	require.Eventually(t, func() bool {
		st, err := eng.GetBlockState(1)
		return err == nil && st == metadatamap.Deleted
	}, time.Second, time.Millisecond)
}

func TestFlushClearsTrackedBlock(t *testing.T) {
	eng := engine.New(engine.Config{})
	// A single worker keeps the three events in submission order.
	ic := interceptor.New(interceptor.Config{EventBufferSize: 16, CallbackThreads: 1, DequeueTimeout: 20 * time.Millisecond}, NewSink(eng))
	require.NoError(t, ic.Start(context.Background()))
	defer ic.Stop()

	h := Bind(ic)
	require.NoError(t, h.OnBlockCreate(7, 100, 1000))
	require.NoError(t, h.OnBlockUpdate(7, 200, 2000))
	require.Eventually(t, func() bool {
		st, err := eng.GetBlockState(7)
		return err == nil && st == metadatamap.Dirty
	}, time.Second, time.Millisecond)

	require.NoError(t, h.OnBlockFlush(7, 300, 3000))
	require.Eventually(t, func() bool {
		_, err := eng.GetBlockState(7)
		return err != nil
	}, time.Second, time.Millisecond, "a flushed block must drop out of the tracked set")

	out := make([]uint64, 4)
	n, err := eng.GetDirtyBlocksByWAL(0, 1000, out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
