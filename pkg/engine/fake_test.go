package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftbyte/autosnap/pkg/config"
	"github.com/driftbyte/autosnap/pkg/provider"
)

// fakeProvider is an in-memory provider with the same visibility rules as
// EC2: snapshots become visible to tag-filtered listings only once tagged.
type fakeProvider struct {
	mu        sync.Mutex
	volumes   []provider.Volume
	snapshots map[string]provider.Snapshot
	seq       int
	clock     time.Time

	failCreate map[string]error
	failDelete map[string]error
	listErr    error

	calls []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		snapshots:  map[string]provider.Snapshot{},
		clock:      time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		failCreate: map[string]error{},
		failDelete: map[string]error{},
	}
}

func (f *fakeProvider) addVolume(id, name, policy string, attached bool) {
	f.volumes = append(f.volumes, provider.Volume{
		ID:       id,
		Name:     name,
		SizeGiB:  8,
		Tags:     map[string]string{"Name": name, "autosnap-policy": policy},
		Attached: attached,
	})
}

func (f *fakeProvider) addSnapshot(id, volumeID string, start time.Time, policy string, period config.Period) {
	f.snapshots[id] = provider.Snapshot{
		ID:        id,
		VolumeID:  volumeID,
		StartTime: start,
		Tags:      trackTags(policy, period),
	}
}

func (f *fakeProvider) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) ListVolumes(ctx context.Context, filter provider.VolumeFilter) ([]provider.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListVolumes:" + filter.TagValue)
	var out []provider.Volume
	for _, v := range f.volumes {
		if v.Tags[filter.TagKey] != filter.TagValue {
			continue
		}
		if filter.AttachedOnly && !v.Attached {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeProvider) ListSnapshots(ctx context.Context, filter provider.SnapshotFilter) ([]provider.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListSnapshots:" + filter.VolumeID)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []provider.Snapshot
	for _, s := range f.snapshots {
		if filter.VolumeID != "" && s.VolumeID != filter.VolumeID {
			continue
		}
		match := true
		for k, v := range filter.Tags {
			if s.Tags[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeProvider) CreateSnapshot(ctx context.Context, volumeID, description string) (provider.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateSnapshot:" + volumeID)
	if err := f.failCreate[volumeID]; err != nil {
		return provider.Snapshot{}, err
	}
	f.seq++
	snap := provider.Snapshot{
		ID:        fmt.Sprintf("snap-new-%d", f.seq),
		VolumeID:  volumeID,
		StartTime: f.clock.Add(time.Duration(f.seq) * time.Second),
		Tags:      map[string]string{},
	}
	f.snapshots[snap.ID] = snap
	return snap, nil
}

func (f *fakeProvider) TagResource(ctx context.Context, id string, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TagResource:" + id)
	snap, found := f.snapshots[id]
	if !found {
		return &provider.Error{Code: "InvalidSnapshot.NotFound", Message: id}
	}
	for k, v := range tags {
		snap.Tags[k] = v
	}
	f.snapshots[id] = snap
	return nil
}

func (f *fakeProvider) DeleteSnapshot(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteSnapshot:" + id)
	if err := f.failDelete[id]; err != nil {
		return err
	}
	if _, found := f.snapshots[id]; !found {
		return &provider.Error{Code: "InvalidSnapshot.NotFound", Message: id}
	}
	delete(f.snapshots, id)
	return nil
}

func (f *fakeProvider) snapshotIDs(volumeID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, s := range f.snapshots {
		if s.VolumeID == volumeID {
			out = append(out, id)
		}
	}
	return out
}

// fakeHook records invocations and fails on demand per volume.
type fakeHook struct {
	mu          sync.Mutex
	beforeErr   map[string]error
	afterErr    map[string]error
	beforeCalls []string
	afterCalls  []string
}

func newFakeHook() *fakeHook {
	return &fakeHook{beforeErr: map[string]error{}, afterErr: map[string]error{}}
}

func (h *fakeHook) Before(ctx context.Context, period config.Period, policyID, volumeID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beforeCalls = append(h.beforeCalls, volumeID)
	return h.beforeErr[volumeID]
}

func (h *fakeHook) After(ctx context.Context, period config.Period, policyID, volumeID, snapshotID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterCalls = append(h.afterCalls, volumeID)
	return h.afterErr[volumeID]
}
