//go:build !linux && !windows

package identity

import (
	"fmt"

	"github.com/netsentinel/agent/internal/types"
)

// resolveProcess has no procfs or Win32 equivalent to lean on outside
// Linux/Windows; it returns a minimal identity carrying only the PID, so
// callers still get a best-effort ProcessIdentity instead of failing the
// whole snapshot.
func resolveProcess(pid int32) (types.ProcessIdentity, error) {
	if pid <= 0 {
		return types.ProcessIdentity{}, fmt.Errorf("identity: invalid pid %d", pid)
	}
	return types.ProcessIdentity{PID: pid}, nil
}
