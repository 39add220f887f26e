package cmd

import (
	"github.com/spf13/cobra"

	"github.com/taosdata/tsbackup-core/internal/plugin"
)

// statsCmd prints a snapshot of the bitmap engine's totals plus the
// coordinator's backup/error/retry counters.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show bitmap engine and coordinator statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats plugin.Stats
		err := withPlugin(func() error {
			s, err := plugin.GetStats()
			if err != nil {
				return err
			}
			stats = s
			return nil
		})
		if err != nil {
			return err
		}
		return render(stats)
	},
}
