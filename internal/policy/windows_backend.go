//go:build windows

package policy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sys/windows"

	"github.com/netsentinel/agent/internal/errs"
	"github.com/netsentinel/agent/internal/types"
)

// WindowsBackend enforces quarantine decisions with `netsh advfirewall`
// rules and, for process-scoped decisions, by terminating the owning
// process. Every call is fallible and surfaces the shelled command's
// stderr on failure, per spec.md §4.7.
type WindowsBackend struct {
	runCommand func(ctx context.Context, name string, args ...string) (string, error)
}

// NewWindowsBackend builds a backend that shells to the real netsh binary.
func NewWindowsBackend() *WindowsBackend {
	return &WindowsBackend{runCommand: runShell}
}

// NewPlatformBackend returns the real netsh/process-termination backend
// on Windows, per spec.md §4.7.
func NewPlatformBackend() Backend {
	return NewWindowsBackend()
}

func runShell(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stderr.String(), err
	}
	return "", nil
}

func (b *WindowsBackend) Apply(flow types.FlowEvent, decision types.QuarantineDecision) (AppliedRule, error) {
	rule := AppliedRule{Name: RuleName(flow)}
	if flow.Process != nil {
		rule.PID = flow.Process.PID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, port := range decision.Ports {
		stderr, err := b.runCommand(ctx, "netsh", "advfirewall", "firewall", "add", "rule",
			fmt.Sprintf("name=%s", rule.Name),
			"dir=out",
			"action=block",
			"protocol=TCP",
			fmt.Sprintf("remoteport=%d", port),
		)
		if err != nil {
			return rule, errs.New(errs.KindBackend, "policy: adding firewall rule", fmt.Errorf("%s: %w", stderr, err))
		}
	}

	if rule.PID > 0 {
		if err := terminateProcess(rule.PID); err != nil {
			return rule, errs.New(errs.KindBackend, "policy: terminating quarantined process", err)
		}
	}

	return rule, nil
}

func (b *WindowsBackend) Rollback(rule AppliedRule) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stderr, err := b.runCommand(ctx, "netsh", "advfirewall", "firewall", "delete", "rule",
		fmt.Sprintf("name=%s", rule.Name))
	if err != nil {
		return errs.New(errs.KindBackend, "policy: removing firewall rule", fmt.Errorf("%s: %w", stderr, err))
	}
	return nil
}

// terminateProcess opens pid with terminate rights and exits it with code
// 1, per spec.md §4.7's "open them with terminate rights and issuing
// termination with exit code 1".
func terminateProcess(pid int32) error {
	handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("opening process %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	if err := windows.TerminateProcess(handle, 1); err != nil {
		return fmt.Errorf("terminating process %d: %w", pid, err)
	}
	return nil
}
