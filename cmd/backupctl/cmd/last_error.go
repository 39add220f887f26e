package cmd

import (
	"github.com/spf13/cobra"

	"github.com/taosdata/tsbackup-core/internal/plugin"
)

type lastErrorReport struct {
	Error string `json:"error" yaml:"error"`
}

// lastErrorCmd shows the coordinator's single owned last-error string,
// empty when no error is outstanding.
var lastErrorCmd = &cobra.Command{
	Use:   "last-error",
	Short: "Show the coordinator's most recently recorded error",
	RunE: func(cmd *cobra.Command, args []string) error {
		var msg string
		err := withPlugin(func() error {
			m, err := plugin.GetLastError()
			if err != nil {
				return err
			}
			msg = m
			return nil
		})
		if err != nil {
			return err
		}
		return render(lastErrorReport{Error: msg})
	},
}

// clearErrorCmd resets the coordinator's last-error slot.
var clearErrorCmd = &cobra.Command{
	Use:   "clear-error",
	Short: "Clear the coordinator's recorded last error",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlugin(func() error {
			return plugin.ClearError()
		})
	},
}
