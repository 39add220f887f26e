package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taosdata/tsbackup-core/internal/coordinator"
	"github.com/taosdata/tsbackup-core/internal/errkind"
	"github.com/taosdata/tsbackup-core/internal/plugin"
)

var (
	validateStartWAL uint64
	validateEndWAL   uint64
	validateBlocksIn string
)

type validateReport struct {
	OK    bool   `json:"ok" yaml:"ok"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// validateCmd checks a caller-provided block list against live metadata.
// The list is read from --blocks as the same YAML shape `stream` emits,
// so `backupctl stream ... > blocks.yaml && backupctl validate --blocks
// blocks.yaml` is a realistic operator round trip.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate that a caller-provided block list matches live metadata in a WAL range",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(validateBlocksIn)
		if err != nil {
			return err
		}
		var blocks []coordinator.BlockRecord
		if err := yaml.Unmarshal(data, &blocks); err != nil {
			return errkind.Wrap(errkind.InvalidParam, err, "parse --blocks")
		}

		report := validateReport{OK: true}
		err = withPlugin(func() error {
			return plugin.ValidateBackup(validateStartWAL, validateEndWAL, blocks)
		})
		if err != nil {
			report.OK = false
			report.Error = err.Error()
		}
		if renderErr := render(report); renderErr != nil {
			return renderErr
		}
		if !report.OK {
			return err
		}
		return nil
	},
}

func init() {
	flags := validateCmd.Flags()
	flags.Uint64Var(&validateStartWAL, "start-wal", 0, "lower WAL offset bound, inclusive")
	flags.Uint64Var(&validateEndWAL, "end-wal", 0, "upper WAL offset bound, inclusive")
	flags.StringVar(&validateBlocksIn, "blocks", "", "path to a YAML block list (as emitted by `stream`)")
	validateCmd.MarkFlagRequired("blocks")
}
