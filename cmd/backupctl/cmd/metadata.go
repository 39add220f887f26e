package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/taosdata/tsbackup-core/internal/plugin"
)

var (
	metadataStartWAL uint64
	metadataEndWAL   uint64
	metadataOutPath  string
)

// metadataCmd emits the JSON metadata blob describing a WAL range. The
// blob is already serialized, so it bypasses render and either prints the
// raw bytes or writes them to --out.
var metadataCmd = &cobra.Command{
	Use:   "generate-metadata",
	Short: "Generate the metadata blob for a WAL offset range",
	RunE: func(cmd *cobra.Command, args []string) error {
		var blob []byte
		err := withPlugin(func() error {
			b, err := plugin.GenerateMetadata(metadataStartWAL, metadataEndWAL)
			if err != nil {
				return err
			}
			blob = b
			return nil
		})
		if err != nil {
			return err
		}
		if metadataOutPath != "" {
			return os.WriteFile(metadataOutPath, blob, 0o644)
		}
		_, err = os.Stdout.Write(blob)
		return err
	},
}

func init() {
	flags := metadataCmd.Flags()
	flags.Uint64Var(&metadataStartWAL, "start-wal", 0, "lower WAL offset bound, inclusive")
	flags.Uint64Var(&metadataEndWAL, "end-wal", 0, "upper WAL offset bound, inclusive")
	flags.StringVar(&metadataOutPath, "out", "", "write the metadata blob here instead of stdout")
}
