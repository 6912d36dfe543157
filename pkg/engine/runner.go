package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/driftbyte/autosnap/pkg/config"
	"github.com/driftbyte/autosnap/pkg/hook"
	"github.com/driftbyte/autosnap/pkg/logging"
	"github.com/driftbyte/autosnap/pkg/provider"
)

// ProviderAPI is the slice of the provider surface the runner consumes.
type ProviderAPI interface {
	ListVolumes(ctx context.Context, f provider.VolumeFilter) ([]provider.Volume, error)
	ListSnapshots(ctx context.Context, f provider.SnapshotFilter) ([]provider.Snapshot, error)
	CreateSnapshot(ctx context.Context, volumeID, description string) (provider.Snapshot, error)
	TagResource(ctx context.Context, id string, tags map[string]string) error
	DeleteSnapshot(ctx context.Context, id string) error
}

type RunnerConfig struct {
	// Parallelism bounds concurrent (policy, volume) units. Units touch
	// disjoint snapshot tag-sets, so this is a throughput knob only.
	Parallelism int
	// DryRun logs intended snapshot creations and deletions without
	// calling any mutating API. Hooks are skipped too.
	DryRun bool
}

// Runner processes one period for every policy. Mutual exclusion between
// overlapping scheduled runs is the scheduler's responsibility: a creation
// and a concurrent purge on the same (policy, period, volume) from two runs
// could race, so each invocation is assumed to finish before the next one
// for the same period starts.
type Runner struct {
	log   *logging.Logger
	cfg   *config.Config
	api   ProviderAPI
	hooks *hook.Registry
	inv   *Inventory

	parallelism int
	dryRun      bool
}

func NewRunner(log *logging.Logger, cfg *config.Config, api ProviderAPI, hooks *hook.Registry, rc RunnerConfig) *Runner {
	parallelism := rc.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Runner{
		log:         log,
		cfg:         cfg,
		api:         api,
		hooks:       hooks,
		inv:         NewInventory(api),
		parallelism: parallelism,
		dryRun:      rc.DryRun,
	}
}

// PolicyCounts is the per-policy outcome of a run. Failed counts failed
// operations (creations, inventory lists, deletions), not failed runs:
// partial failure is not process failure.
type PolicyCounts struct {
	Created int
	Deleted int
	Skipped int
	Failed  int
}

type Summary struct {
	mu     sync.Mutex
	Counts map[string]*PolicyCounts
}

func newSummary() *Summary {
	return &Summary{Counts: map[string]*PolicyCounts{}}
}

func (s *Summary) update(policy string, fn func(*PolicyCounts)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, found := s.Counts[policy]
	if !found {
		c = &PolicyCounts{}
		s.Counts[policy] = c
	}
	fn(c)
}

// Run processes every (policy, applicable volume) pair for one period.
// Errors never cross unit boundaries; the returned error is reserved for
// startup problems such as an unresolvable hook reference.
func (r *Runner) Run(ctx context.Context, period config.Period) (*Summary, error) {
	runID := uuid.NewString()
	log := r.log.With("period", string(period), "run_id", runID)

	// Resolve every hook reference before any volume is touched.
	policyHooks := make(map[string]hook.Hook, len(r.cfg.Policies))
	for _, pol := range r.cfg.Policies {
		h, err := r.hooks.Resolve(pol.Hook)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", pol.Name, err)
		}
		policyHooks[pol.Name] = h
	}

	log.Infof("processing period %s across %d policies", period, len(r.cfg.Policies))
	summary := newSummary()
	for _, pol := range r.cfg.Policies {
		if ctx.Err() != nil {
			break
		}
		r.runPolicy(ctx, log, pol, policyHooks[pol.Name], period, runID, summary)
	}

	for _, pol := range r.cfg.Policies {
		summary.update(pol.Name, func(c *PolicyCounts) {
			log.Infof("policy %s: created=%d deleted=%d skipped=%d failed=%d",
				pol.Name, c.Created, c.Deleted, c.Skipped, c.Failed)
		})
	}
	return summary, nil
}

func (r *Runner) runPolicy(ctx context.Context, log *logging.Logger, pol config.Policy, h hook.Hook, period config.Period, runID string, summary *Summary) {
	log = log.With("policy", pol.Name)

	vols, err := r.api.ListVolumes(ctx, provider.VolumeFilter{
		TagKey:       r.cfg.TagKey,
		TagValue:     pol.Name,
		AttachedOnly: pol.OnlyAttached,
	})
	if err != nil {
		log.Errorf("listing volumes: %v", err)
		summary.update(pol.Name, func(c *PolicyCounts) { c.Failed++ })
		return
	}
	log.Infof("discovered %d volumes (only_attached=%v)", len(vols), pol.OnlyAttached)

	retain := pol.RetentionFor(period)
	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for _, vol := range vols {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r.runVolume(ctx, log.With("volume", vol.ID), pol, h, period, retain, vol, runID, summary)
			return nil
		})
	}
	_ = g.Wait()
}

// runVolume drives one (policy, period, volume) unit through
// discovered -> (before hook) -> created|skipped -> (after hook) ->
// reconciling -> done|failed.
func (r *Runner) runVolume(ctx context.Context, log *logging.Logger, pol config.Policy, h hook.Hook, period config.Period, retain int, vol provider.Volume, runID string, summary *Summary) {
	if retain > 0 {
		if !r.createSnapshot(ctx, log, pol, h, period, vol, runID, summary) {
			return
		}
	}
	// retain == 0 skips creation entirely and purges the track's history.
	r.reconcile(ctx, log, pol, period, retain, vol, summary)
}

// createSnapshot reports whether the unit should proceed to reconciliation.
func (r *Runner) createSnapshot(ctx context.Context, log *logging.Logger, pol config.Policy, h hook.Hook, period config.Period, vol provider.Volume, runID string, summary *Summary) bool {
	if r.dryRun {
		log.Infof("dry-run: would create %s snapshot of %s (%q, %dGiB)", period, vol.ID, vol.Name, vol.SizeGiB)
		summary.update(pol.Name, func(c *PolicyCounts) { c.Created++ })
		return true
	}

	if err := h.Before(ctx, period, pol.Name, vol.ID); err != nil {
		// Typically a failed application-level quiesce. The volume is
		// skipped for this period and its existing snapshots stay
		// untouched.
		log.Warnf("before hook failed, skipping volume: %v", err)
		summary.update(pol.Name, func(c *PolicyCounts) { c.Skipped++ })
		return false
	}

	desc := fmt.Sprintf("autosnap %s snapshot of %s", period, vol.ID)
	snap, err := r.api.CreateSnapshot(ctx, vol.ID, desc)
	if err != nil {
		log.Errorf("creating snapshot: %v", err)
		summary.update(pol.Name, func(c *PolicyCounts) { c.Failed++ })
		return false
	}

	if err := r.api.TagResource(ctx, snap.ID, snapshotTags(pol.Name, period, vol.Name, runID)); err != nil {
		// An untagged snapshot is invisible to the inventory and will
		// never be retired by the retention sweep. Surface it loudly.
		log.Errorf("tagging snapshot %s: %v (snapshot exists but is untracked)", snap.ID, err)
		summary.update(pol.Name, func(c *PolicyCounts) { c.Failed++ })
		return false
	}
	log.Infof("created snapshot %s", snap.ID)
	summary.update(pol.Name, func(c *PolicyCounts) { c.Created++ })

	if err := h.After(ctx, period, pol.Name, vol.ID, snap.ID); err != nil {
		// The backup exists; only the post-processing failed.
		log.Warnf("after hook failed: %v", err)
	}
	return true
}

func (r *Runner) reconcile(ctx context.Context, log *logging.Logger, pol config.Policy, period config.Period, retain int, vol provider.Volume, summary *Summary) {
	snaps, err := r.inv.List(ctx, pol.Name, period, vol.ID)
	if err != nil {
		log.Errorf("listing snapshots: %v", err)
		summary.update(pol.Name, func(c *PolicyCounts) { c.Failed++ })
		return
	}

	// If the provider has not yet made a just-created snapshot visible the
	// decision simply deletes one fewer. It never deletes too many.
	decision := Decide(snaps, retain)
	if len(decision.Delete) == 0 {
		log.Debugf("nothing to delete, keeping %d snapshots", len(decision.Keep))
		return
	}

	log.Infof("deleting %d of %d snapshots (retain=%d)", len(decision.Delete), len(snaps), retain)
	for _, snap := range decision.Delete {
		if r.dryRun {
			log.Infof("dry-run: would delete snapshot %s from %s", snap.ID, snap.StartTime.Format("2006-01-02T15:04:05Z07:00"))
			summary.update(pol.Name, func(c *PolicyCounts) { c.Deleted++ })
			continue
		}
		if err := r.api.DeleteSnapshot(ctx, snap.ID); err != nil {
			// One failed deletion must not block deleting the others.
			log.Errorf("deleting snapshot %s: %v", snap.ID, err)
			summary.update(pol.Name, func(c *PolicyCounts) { c.Failed++ })
			continue
		}
		summary.update(pol.Name, func(c *PolicyCounts) { c.Deleted++ })
	}
}
