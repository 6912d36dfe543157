package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftbyte/autosnap/pkg/config"
	"github.com/driftbyte/autosnap/pkg/provider"
)

func TestInventoryList(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	t.Run("orders by creation time ascending", func(t *testing.T) {
		r := require.New(t)
		fake := newFakeProvider()
		fake.addSnapshot("snap-c", "vol-1", base.Add(2*time.Hour), "CRITICAL", config.PeriodHour)
		fake.addSnapshot("snap-a", "vol-1", base, "CRITICAL", config.PeriodHour)
		fake.addSnapshot("snap-b", "vol-1", base.Add(time.Hour), "CRITICAL", config.PeriodHour)

		snaps, err := NewInventory(fake).List(context.Background(), "CRITICAL", config.PeriodHour, "vol-1")
		r.NoError(err)
		r.Equal([]string{"snap-a", "snap-b", "snap-c"}, ids(snaps))
	})

	t.Run("equal timestamps tie-break by snapshot id", func(t *testing.T) {
		r := require.New(t)
		fake := newFakeProvider()
		fake.addSnapshot("snap-b", "vol-1", base, "CRITICAL", config.PeriodHour)
		fake.addSnapshot("snap-a", "vol-1", base, "CRITICAL", config.PeriodHour)

		snaps, err := NewInventory(fake).List(context.Background(), "CRITICAL", config.PeriodHour, "vol-1")
		r.NoError(err)
		r.Equal([]string{"snap-a", "snap-b"}, ids(snaps))
	})

	t.Run("restricted to the exact policy, period and volume", func(t *testing.T) {
		r := require.New(t)
		fake := newFakeProvider()
		fake.addSnapshot("snap-mine", "vol-1", base, "CRITICAL", config.PeriodHour)
		fake.addSnapshot("snap-other-period", "vol-1", base, "CRITICAL", config.PeriodDay)
		fake.addSnapshot("snap-other-policy", "vol-1", base, "MEH", config.PeriodHour)
		fake.addSnapshot("snap-other-volume", "vol-2", base, "CRITICAL", config.PeriodHour)

		snaps, err := NewInventory(fake).List(context.Background(), "CRITICAL", config.PeriodHour, "vol-1")
		r.NoError(err)
		r.Equal([]string{"snap-mine"}, ids(snaps))
	})

	t.Run("untagged snapshots are invisible", func(t *testing.T) {
		r := require.New(t)
		fake := newFakeProvider()
		// Manual snapshot without the engine's tags.
		fake.snapshots["snap-manual"] = provider.Snapshot{
			ID: "snap-manual", VolumeID: "vol-1", StartTime: base, Tags: map[string]string{"Name": "manual"},
		}

		snaps, err := NewInventory(fake).List(context.Background(), "CRITICAL", config.PeriodHour, "vol-1")
		r.NoError(err)
		r.Empty(snaps)
	})
}
