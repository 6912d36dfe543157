package engine

import (
	"context"
	"sort"

	"github.com/driftbyte/autosnap/pkg/config"
	"github.com/driftbyte/autosnap/pkg/provider"
)

type snapshotLister interface {
	ListSnapshots(ctx context.Context, f provider.SnapshotFilter) ([]provider.Snapshot, error)
}

// Inventory attributes existing snapshots back to the (policy, period) track
// that created them.
type Inventory struct {
	api snapshotLister
}

func NewInventory(api snapshotLister) *Inventory {
	return &Inventory{api: api}
}

// List returns the snapshots of one volume belonging to the (policy, period)
// track, fully materialized and ordered by creation time ascending. Two
// snapshots created in the same second are ordered by snapshot ID so the
// decision stays deterministic.
func (i *Inventory) List(ctx context.Context, policyID string, period config.Period, volumeID string) ([]provider.Snapshot, error) {
	snaps, err := i.api.ListSnapshots(ctx, provider.SnapshotFilter{
		VolumeID: volumeID,
		Tags:     trackTags(policyID, period),
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(snaps, func(a, b int) bool {
		if snaps[a].StartTime.Equal(snaps[b].StartTime) {
			return snaps[a].ID < snaps[b].ID
		}
		return snaps[a].StartTime.Before(snaps[b].StartTime)
	})
	return snaps, nil
}
