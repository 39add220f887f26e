package cmd

import "github.com/taosdata/tsbackup-core/internal/errkind"

// ExitCode maps err's errkind.Kind onto a process exit code. Kind's own
// iota ordering already starts at Success = 0, so the mapping is the
// identity — kept as a named function rather than a bare cast so call
// sites read as intent, not a type pun.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return int(errkind.Of(err))
}
