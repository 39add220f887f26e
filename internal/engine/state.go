package engine

import "github.com/taosdata/tsbackup-core/internal/metadatamap"

// transitions maps a "from" state to the set of legal "to" states. CLEAN
// is also the implicit state of any block id the engine has never seen, so
// a first-ever MarkNew for an id is legal.
var transitions = map[metadatamap.State]map[metadatamap.State]bool{
	metadatamap.Clean: {
		metadatamap.Dirty:   true,
		metadatamap.New:     true,
		metadatamap.Deleted: true,
	},
	metadatamap.Dirty: {
		metadatamap.Clean:   true,
		metadatamap.Deleted: true,
	},
	metadatamap.New: {
		metadatamap.Dirty:   true,
		metadatamap.Deleted: true,
	},
	metadatamap.Deleted: {
		// terminal: no outgoing transitions
	},
}

// legalTransition reports whether moving from `from` to `to` is permitted.
func legalTransition(from, to metadatamap.State) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
