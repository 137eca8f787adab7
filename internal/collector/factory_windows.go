//go:build windows

package collector

import "time"

// NewFromVariant builds the Collector named by variant for this build.
// Unknown or platform-inappropriate variants fall back to Mock, per
// spec.md §4.1's unsupported-platform contract.
func NewFromVariant(variant string, tickInterval, identityTTL time.Duration, objectPath, iface string) Collector {
	switch variant {
	case "windows":
		return NewWindows(tickInterval, identityTTL)
	case "fallback":
		return NewFallback(tickInterval, identityTTL)
	case "mock":
		return NewMock(nil)
	default:
		return NewMock(nil)
	}
}
