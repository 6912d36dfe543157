package engine

import (
	"github.com/driftbyte/autosnap/pkg/provider"
)

// Decision partitions an ordered snapshot list into the snapshots to keep and
// the snapshots to delete.
type Decision struct {
	Keep   []provider.Snapshot
	Delete []provider.Snapshot
}

// Decide keeps the `retain` most recent snapshots and marks the rest for
// deletion. The input must be ordered oldest first. retain of zero marks the
// whole list, which is how a disabled period has its history purged. Pure and
// total: defined for empty input and for retain beyond the list length.
func Decide(snapshots []provider.Snapshot, retain int) Decision {
	if retain >= len(snapshots) {
		return Decision{Keep: snapshots}
	}
	cut := len(snapshots) - retain
	return Decision{
		Delete: snapshots[:cut],
		Keep:   snapshots[cut:],
	}
}
