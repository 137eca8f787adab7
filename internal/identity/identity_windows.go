//go:build windows

package identity

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/netsentinel/agent/internal/types"
)

// resolveProcess resolves a ProcessIdentity using the Windows process
// snapshot and access-token APIs, per spec.md §4.1's Windows variant:
// name from the process-entry snapshot, path from the image-file-name
// query, hash from a streaming SHA-256 over the executable, user from
// the access token SID, parent PID from the process entry.
func resolveProcess(pid int32) (types.ProcessIdentity, error) {
	name, ppid, err := processEntry(uint32(pid))
	if err != nil {
		return types.ProcessIdentity{}, fmt.Errorf("identity: process entry for pid %d: %w", pid, err)
	}

	handle, err := windows.OpenProcess(
		windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.PROCESS_VM_READ,
		false, uint32(pid),
	)
	if err != nil {
		return types.ProcessIdentity{}, fmt.Errorf("identity: open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	exePath, err := queryFullImageName(handle)
	if err != nil {
		exePath = ""
	}

	hash := ""
	if exePath != "" {
		if h, err := sha256_16(exePath); err == nil {
			hash = h
		}
	}

	user := tokenOwnerSID(handle)
	signed := isAuthenticodeSigned(exePath)

	id := types.ProcessIdentity{
		PID:       pid,
		Name:      name,
		ExePath:   exePath,
		SHA256_16: hash,
		User:      user,
		Signed:    &signed,
	}
	if ppid != 0 {
		p := int32(ppid)
		id.PPID = &p
	}
	return id, nil
}

// processEntry walks the Toolhelp32 process snapshot to find pid's name
// and parent PID.
func processEntry(pid uint32) (name string, ppid uint32, err error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return "", 0, err
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Process32First(snap, &entry); err != nil {
		return "", 0, err
	}
	for {
		if entry.ProcessID == pid {
			return windows.UTF16ToString(entry.ExeFile[:]), entry.ParentProcessID, nil
		}
		if err := windows.Process32Next(snap, &entry); err != nil {
			break
		}
	}
	return "", 0, fmt.Errorf("pid %d not found in process snapshot", pid)
}

func queryFullImageName(handle windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}

func tokenOwnerSID(handle windows.Handle) string {
	var token windows.Token
	if err := windows.OpenProcessToken(handle, windows.TOKEN_QUERY, &token); err != nil {
		return ""
	}
	defer token.Close()

	tu, err := token.GetTokenUser()
	if err != nil {
		return ""
	}
	sid, err := tu.User.Sid.String()
	if err != nil {
		return ""
	}
	return sid
}

// isAuthenticodeSigned is a placeholder for signature verification via
// WinVerifyTrust; the agent treats unverifiable paths as unsigned,
// matching spec.md's conservative HiddenListener criteria.
func isAuthenticodeSigned(exePath string) bool {
	if exePath == "" {
		return false
	}
	// TODO: shell to WinVerifyTrust (wintrust.dll) for a real Authenticode
	// check; left unimplemented since the pack carries no Windows
	// signature-verification library.
	return false
}
