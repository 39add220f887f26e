package cmd

import (
	"github.com/spf13/cobra"

	"github.com/taosdata/tsbackup-core/internal/coordinator"
	"github.com/taosdata/tsbackup-core/internal/errkind"
	"github.com/taosdata/tsbackup-core/internal/plugin"
)

var (
	streamType      string
	streamStartTime int64
	streamEndTime   int64
	streamStartWAL  uint64
	streamEndWAL    uint64
	streamBatchSize int
)

func parseCursorType(s string) (coordinator.CursorType, error) {
	switch s {
	case "time":
		return coordinator.CursorTime, nil
	case "wal":
		return coordinator.CursorWAL, nil
	case "hybrid":
		return coordinator.CursorHybrid, nil
	default:
		return 0, errkind.New(errkind.InvalidParam, "unknown cursor type: "+s)
	}
}

// streamCmd drives a cursor to exhaustion within one process lifetime — a
// cursor handle never outlives the invocation that created it, so the CLI
// never exposes a cross-process handle.
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Create a cursor and stream every batch of changed blocks to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseCursorType(streamType)
		if err != nil {
			return err
		}
		var records []coordinator.BlockRecord
		err = withPlugin(func() error {
			cur, err := plugin.CreateCursor(t, streamStartTime, streamEndTime, streamStartWAL, streamEndWAL)
			if err != nil {
				return err
			}
			defer plugin.DestroyCursor(cur)

			out := make([]coordinator.BlockRecord, streamBatchSize)
			for {
				n, err := plugin.GetNextBatch(cur, out)
				if err != nil {
					return err
				}
				if n == 0 {
					return nil
				}
				records = append(records, out[:n]...)
				if !cur.HasMore {
					return nil
				}
			}
		})
		if err != nil {
			return err
		}
		return render(records)
	},
}

func init() {
	flags := streamCmd.Flags()
	flags.StringVar(&streamType, "type", "wal", "cursor type: time, wal, or hybrid")
	flags.Int64Var(&streamStartTime, "start-time", 0, "lower timestamp bound (time/hybrid cursors)")
	flags.Int64Var(&streamEndTime, "end-time", 0, "upper timestamp bound (time/hybrid cursors)")
	flags.Uint64Var(&streamStartWAL, "start-wal", 0, "lower WAL offset bound (wal/hybrid cursors)")
	flags.Uint64Var(&streamEndWAL, "end-wal", 0, "upper WAL offset bound (wal/hybrid cursors)")
	flags.IntVar(&streamBatchSize, "batch-size", 1000, "blocks fetched per get_next_batch call")
}
