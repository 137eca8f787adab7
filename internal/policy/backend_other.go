//go:build !windows

package policy

// NewPlatformBackend returns the real enforcement backend for the host
// platform, falling back to the no-op backend wherever spec.md §4.7
// names no shell-based enforcement point (every non-Windows build).
func NewPlatformBackend() Backend {
	return NewNoopBackend()
}
