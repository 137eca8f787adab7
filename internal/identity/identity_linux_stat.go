//go:build linux

package identity

import (
	"os"
	"syscall"
)

func statUID(info os.FileInfo) (uint32, bool) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return sys.Uid, true
}
