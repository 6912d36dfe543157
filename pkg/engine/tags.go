package engine

import (
	"github.com/driftbyte/autosnap/pkg/config"
)

// Snapshot tag schema. Load-bearing: inventory filtering and the
// purge-on-zero-retention path both depend on exact round-trip of these tags.
// Snapshots without them (manual or out-of-band) are invisible to the engine
// and never touched.
const (
	TagPolicy    = "autosnap-policy"
	TagPeriod    = "autosnap-period"
	TagCreatedBy = "autosnap-created-by"
	TagRunID     = "autosnap-run-id"

	createdByMarker = "autosnap"
)

func snapshotTags(policyID string, period config.Period, volumeName, runID string) map[string]string {
	return map[string]string{
		"Name":       "[autosnap] " + volumeName,
		TagPolicy:    policyID,
		TagPeriod:    string(period),
		TagCreatedBy: createdByMarker,
		TagRunID:     runID,
	}
}

func trackTags(policyID string, period config.Period) map[string]string {
	return map[string]string{
		TagPolicy:    policyID,
		TagPeriod:    string(period),
		TagCreatedBy: createdByMarker,
	}
}
