//go:build linux

package identity

import (
	"fmt"
	"os"
	"strconv"

	"github.com/netsentinel/agent/internal/types"
)

// resolveProcess resolves a ProcessIdentity from procfs, grounded on the
// teacher's cmd/probe/main.go IdentityCache.Resolve (os.Readlink on
// /proc/<pid>/exe, streaming SHA-256 over the executable).
func resolveProcess(pid int32) (types.ProcessIdentity, error) {
	base := "/proc/" + strconv.Itoa(int(pid))

	exePath, err := os.Readlink(base + "/exe")
	if err != nil {
		return types.ProcessIdentity{}, fmt.Errorf("identity: readlink %s/exe: %w", base, err)
	}

	hash, err := sha256_16(exePath)
	if err != nil {
		hash = ""
	}

	name, ppid := readStatus(base)
	user := readOwner(base)

	id := types.ProcessIdentity{
		PID:       pid,
		Name:      name,
		ExePath:   exePath,
		SHA256_16: hash,
		User:      user,
	}
	if ppid != 0 {
		id.PPID = &ppid
	}
	return id, nil
}

func readStatus(base string) (name string, ppid int32) {
	data, err := os.ReadFile(base + "/status")
	if err != nil {
		return "", 0
	}
	var inName, inPPid bool
	field := ""
	for _, b := range data {
		if b == '\n' {
			switch {
			case hasPrefixField(field, "Name:"):
				name = trimField(field, "Name:")
				inName = true
			case hasPrefixField(field, "PPid:"):
				if v, err := strconv.Atoi(trimField(field, "PPid:")); err == nil {
					ppid = int32(v)
				}
				inPPid = true
			}
			field = ""
			if inName && inPPid {
				break
			}
			continue
		}
		field += string(b)
	}
	return name, ppid
}

func hasPrefixField(field, prefix string) bool {
	return len(field) >= len(prefix) && field[:len(prefix)] == prefix
}

func trimField(field, prefix string) string {
	rest := field[len(prefix):]
	start := 0
	for start < len(rest) && (rest[start] == ' ' || rest[start] == '\t') {
		start++
	}
	return rest[start:]
}

func readOwner(base string) string {
	info, err := os.Stat(base)
	if err != nil {
		return ""
	}
	if sysStat, ok := statUID(info); ok {
		return strconv.Itoa(int(sysStat))
	}
	return ""
}
