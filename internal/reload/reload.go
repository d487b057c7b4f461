// Package reload makes the running proxy pick up a rewritten configuration.
package reload

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a restart command.
const DefaultTimeout = 10 * time.Second

// Reloader applies the on-disk configuration to the running service.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Func adapts a function to Reloader.
type Func func(ctx context.Context) error

func (f Func) Reload(ctx context.Context) error { return f(ctx) }

// execCommand is a seam for tests.
var execCommand = exec.CommandContext

// SystemdReloader restarts a systemd unit. A restart drops every open
// connection of the proxy, not only the ones of the changed user.
type SystemdReloader struct {
	service string
	timeout time.Duration
}

func NewSystemdReloader(service string, timeout time.Duration) *SystemdReloader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SystemdReloader{service: service, timeout: timeout}
}

// Reload runs `systemctl restart <service>` and fails on a non-zero exit,
// including the command output in the error.
func (r *SystemdReloader) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := execCommand(ctx, "systemctl", "restart", r.service)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("systemctl restart %s: %w: %s", r.service, err, msg)
		}
		return fmt.Errorf("systemctl restart %s: %w", r.service, err)
	}
	return nil
}
