package hook

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftbyte/autosnap/pkg/config"
)

// Hook runs application-level consistency steps around snapshot creation,
// e.g. flushing and locking a database before the snapshot and unlocking it
// after.
type Hook interface {
	Before(ctx context.Context, period config.Period, policyID, volumeID string) error
	After(ctx context.Context, period config.Period, policyID, volumeID, snapshotID string) error
}

// Error is a hook failure, scoped to a single volume. A before failure skips
// snapshot creation for that volume; an after failure is a warning only.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hook %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func AsError(err error) (*Error, bool) {
	var herr *Error
	if errors.As(err, &herr) {
		return herr, true
	}
	return nil, false
}

type nop struct{}

func (nop) Before(context.Context, config.Period, string, string) error        { return nil }
func (nop) After(context.Context, config.Period, string, string, string) error { return nil }

// Registry resolves hook references once at startup. Policies referencing
// hooks the config does not declare are rejected at load, so a miss here is a
// programming error surfaced as a plain error.
type Registry struct {
	hooks map[string]Hook
}

func NewRegistry(cfg *config.Config) *Registry {
	hooks := make(map[string]Hook, len(cfg.Hooks))
	for name, spec := range cfg.Hooks {
		hooks[name] = NewCommandHook(spec)
	}
	return &Registry{hooks: hooks}
}

// Register adds a hook under a name, replacing any command hook declared in
// the config. Useful for in-process hooks.
func (r *Registry) Register(name string, h Hook) {
	r.hooks[name] = h
}

// Resolve returns the hook for a policy's hook reference. An empty reference
// resolves to a no-op.
func (r *Registry) Resolve(name string) (Hook, error) {
	if name == "" {
		return nop{}, nil
	}
	h, found := r.hooks[name]
	if !found {
		return nil, fmt.Errorf("hook %q is not declared", name)
	}
	return h, nil
}
