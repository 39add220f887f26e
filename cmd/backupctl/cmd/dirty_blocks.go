package cmd

import (
	"github.com/spf13/cobra"

	"github.com/taosdata/tsbackup-core/internal/plugin"
)

var (
	dirtyStartWAL uint64
	dirtyEndWAL   uint64
	dirtyMax      int
)

var dirtyBlocksCmd = &cobra.Command{
	Use:   "dirty-blocks",
	Short: "List dirty block ids in a WAL offset range",
	RunE: func(cmd *cobra.Command, args []string) error {
		var ids []uint64
		err := withPlugin(func() error {
			out := make([]uint64, dirtyMax)
			n, err := plugin.GetDirtyBlocks(dirtyStartWAL, dirtyEndWAL, out)
			if err != nil {
				return err
			}
			ids = out[:n]
			return nil
		})
		if err != nil {
			return err
		}
		return render(ids)
	},
}

func init() {
	flags := dirtyBlocksCmd.Flags()
	flags.Uint64Var(&dirtyStartWAL, "start-wal", 0, "lower WAL offset bound, inclusive")
	flags.Uint64Var(&dirtyEndWAL, "end-wal", 0, "upper WAL offset bound, inclusive")
	flags.IntVar(&dirtyMax, "max", 1000, "maximum number of ids to return")
}
