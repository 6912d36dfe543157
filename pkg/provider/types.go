package provider

import (
	"errors"
	"fmt"
	"time"
)

// Volume is a block-storage volume as reported by the provider. Volumes are
// discovered fresh on every run and never cached across runs.
type Volume struct {
	ID       string
	Name     string
	SizeGiB  int32
	Tags     map[string]string
	Attached bool
}

// Snapshot is a point-in-time copy of a volume. Tags attribute it back to the
// (policy, period) track that created it; snapshots without those tags are
// invisible to the engine.
type Snapshot struct {
	ID        string
	VolumeID  string
	StartTime time.Time
	Tags      map[string]string
}

// VolumeFilter selects volumes by tag, optionally restricted to volumes
// currently attached to an instance. The attachment restriction is applied
// server-side so detached volumes never reach the engine.
type VolumeFilter struct {
	TagKey       string
	TagValue     string
	AttachedOnly bool
}

// SnapshotFilter selects snapshots by tag and, when VolumeID is set, by
// source volume.
type SnapshotFilter struct {
	VolumeID string
	Tags     map[string]string
}

// Error is a provider API failure scoped to a single call, surfaced after
// retries are exhausted.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s: %s", e.Code, e.Message)
}

// AsError unwraps err into a provider Error if there is one in the chain.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
