package cmd

import (
	"github.com/spf13/cobra"

	"github.com/taosdata/tsbackup-core/internal/plugin"
)

var (
	estimateStartWAL uint64
	estimateEndWAL   uint64
)

type sizeEstimateReport struct {
	Blocks uint64 `json:"blocks" yaml:"blocks"`
	Bytes  uint64 `json:"bytes" yaml:"bytes"`
}

var estimateSizeCmd = &cobra.Command{
	Use:   "estimate-size",
	Short: "Estimate block count and byte size for a WAL offset range",
	RunE: func(cmd *cobra.Command, args []string) error {
		var report sizeEstimateReport
		err := withPlugin(func() error {
			blocks, bytes, err := plugin.EstimateSize(estimateStartWAL, estimateEndWAL)
			if err != nil {
				return err
			}
			report = sizeEstimateReport{Blocks: blocks, Bytes: bytes}
			return nil
		})
		if err != nil {
			return err
		}
		return render(report)
	},
}

func init() {
	flags := estimateSizeCmd.Flags()
	flags.Uint64Var(&estimateStartWAL, "start-wal", 0, "lower WAL offset bound, inclusive")
	flags.Uint64Var(&estimateEndWAL, "end-wal", 0, "upper WAL offset bound, inclusive")
}
