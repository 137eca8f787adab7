//go:build linux

package collector

import "time"

// NewFromVariant builds the Collector named by variant for this build.
// Unknown or platform-inappropriate variants fall back to Mock, per
// spec.md §4.1's "unsupported platform falls back to the mock collector"
// contract (errs.KindUnsupportedPlatform is the caller-facing signal for
// that case; this factory makes the fallback decision for running the
// agent rather than failing start-up outright).
func NewFromVariant(variant string, tickInterval, identityTTL time.Duration, objectPath, iface string) Collector {
	switch variant {
	case "linux":
		return NewLinux(objectPath, iface, identityTTL)
	case "fallback":
		return NewFallback(tickInterval, identityTTL)
	case "mock":
		return NewMock(nil)
	default:
		return NewMock(nil)
	}
}
