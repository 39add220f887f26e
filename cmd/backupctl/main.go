// Command backupctl is the coordinator's operator CLI: a thin tool over
// the same internal/plugin entry points an embedding host calls directly.
package main

import (
	"fmt"
	"os"

	"github.com/taosdata/tsbackup-core/cmd/backupctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "backupctl:", err)
		os.Exit(cmd.ExitCode(err))
	}
}
