package hook

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/driftbyte/autosnap/pkg/config"
)

const stderrTailBytes = 512

// CommandHook invokes an external executable with the stage and unit identity
// as arguments:
//
//	<command> before <period> <policy> <volume>
//	<command> after  <period> <policy> <volume> <snapshot>
//
// The same values are exported as AUTOSNAP_* environment variables. A
// non-zero exit or a timeout is a hook failure.
type CommandHook struct {
	command string
	timeout time.Duration
}

func NewCommandHook(spec config.HookSpec) *CommandHook {
	return &CommandHook{command: spec.Command, timeout: spec.Timeout}
}

func (h *CommandHook) Before(ctx context.Context, period config.Period, policyID, volumeID string) error {
	return h.run(ctx, "before", period, policyID, volumeID, "")
}

func (h *CommandHook) After(ctx context.Context, period config.Period, policyID, volumeID, snapshotID string) error {
	return h.run(ctx, "after", period, policyID, volumeID, snapshotID)
}

func (h *CommandHook) run(ctx context.Context, stage string, period config.Period, policyID, volumeID, snapshotID string) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	args := []string{stage, string(period), policyID, volumeID}
	if snapshotID != "" {
		args = append(args, snapshotID)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.command, args...)
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"AUTOSNAP_HOOK_STAGE="+stage,
		"AUTOSNAP_HOOK_PERIOD="+string(period),
		"AUTOSNAP_HOOK_POLICY="+policyID,
		"AUTOSNAP_HOOK_VOLUME="+volumeID,
		"AUTOSNAP_HOOK_SNAPSHOT="+snapshotID,
	)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return &Error{Stage: stage, Err: fmt.Errorf("%s timed out after %s", h.command, h.timeout)}
		}
		if tail := stderrTail(stderr.Bytes()); tail != "" {
			err = fmt.Errorf("%w: %s", err, tail)
		}
		return &Error{Stage: stage, Err: fmt.Errorf("%s: %w", h.command, err)}
	}
	return nil
}

func stderrTail(out []byte) string {
	if len(out) > stderrTailBytes {
		out = out[len(out)-stderrTailBytes:]
	}
	return strings.TrimSpace(string(out))
}
