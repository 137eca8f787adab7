package main

import "github.com/netsentinel/agent/internal/errs"

// Exit codes, grounded on the smart-mcp-proxy pack repo's
// cmd/mcpproxy/exit_codes.go taxonomy, re-keyed to the error kinds
// internal/errs.Error carries.
const (
	exitCodeSuccess      = 0
	exitCodeGeneralError = 1
	exitCodeIOError      = 2
	exitCodeParseError   = 3
	exitCodeConfigError  = 4
)

// classifyError maps a returned command error to a process exit code,
// per spec.md §6: "Exit code 0 on success, non-zero on I/O or parse
// errors."
func classifyError(err error) int {
	if err == nil {
		return exitCodeSuccess
	}
	var boundary *errs.Error
	if e, ok := err.(*errs.Error); ok {
		boundary = e
	} else if unwrapped, ok := unwrapToBoundary(err); ok {
		boundary = unwrapped
	}
	if boundary == nil {
		return exitCodeGeneralError
	}
	switch boundary.Kind {
	case errs.KindIO:
		return exitCodeIOError
	case errs.KindParse:
		return exitCodeParseError
	case errs.KindInit, errs.KindUnsupportedPlatform:
		return exitCodeConfigError
	default:
		return exitCodeGeneralError
	}
}

func unwrapToBoundary(err error) (*errs.Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
		if e, ok := err.(*errs.Error); ok {
			return e, true
		}
	}
}
