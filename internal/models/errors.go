package models

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every attempt outcome, including terminal ones, is
// recorded in history; no failure is silently dropped.
var (
	// ErrOracleUnavailable - the diagnosis round trip failed or returned a
	// malformed payload; consumes one retry, same as a build failure
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrBudgetExhausted - no retries remain
	ErrBudgetExhausted = errors.New("retry budget exhausted")
)

// ToolMissingError is raised pre-loop when required build tools are absent.
// It consumes no retry budget and triggers no oracle call.
type ToolMissingError struct {
	BuildSystem BuildSystem
	Tools       []string
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("build system %s requires missing tools: %v", e.BuildSystem, e.Tools)
}

// CommandRejectedError is the guard's veto on one candidate command. By
// itself it does not end the run; the remaining plan may still proceed.
type CommandRejectedError struct {
	Command string
	Reason  string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("command rejected: %s (%q)", e.Reason, e.Command)
}

// PrivilegeEscalationError terminates the run BLOCKED immediately. The
// condition is deterministic and would recur identically on every future
// attempt, so retrying gains nothing.
type PrivilegeEscalationError struct {
	Command string
	Token   string
}

func (e *PrivilegeEscalationError) Error() string {
	return fmt.Sprintf("privilege escalation token %q detected in %q; refusing to escalate privileges", e.Token, e.Command)
}

// IsPrivilegeEscalation reports whether err is (or wraps) a privilege
// escalation rejection
func IsPrivilegeEscalation(err error) bool {
	var pe *PrivilegeEscalationError
	return errors.As(err, &pe)
}
