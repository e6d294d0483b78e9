// -----------------------------------------------------------------------
// BuildAttempt - Immutable per-attempt record and run terminal states
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// BuildAttempt records one executed build command. Appended to the run
// history and never mutated afterwards; the ordered history drives diagnosis.
type BuildAttempt struct {
	Index         int       `json:"index"` // 1-based, strictly increasing
	Command       string    `json:"command"`
	ExitCode      int       `json:"exit_code"`
	StdoutExcerpt string    `json:"stdout_excerpt"`
	StderrExcerpt string    `json:"stderr_excerpt"`
	Reason        string    `json:"reason,omitempty"` // e.g. "timeout"; control flow ignores this
	Timestamp     time.Time `json:"timestamp"`
}

// TerminalState enumerates every way a run can end. The retry loop
// terminates exactly once, in exactly one of these states.
type TerminalState string

const (
	// StateSuccess - a build attempt exited zero
	StateSuccess TerminalState = "SUCCESS"
	// StateBlocked - the oracle produced no usable plan, or a plan demanded
	// privilege escalation; retrying would recur identically
	StateBlocked TerminalState = "BLOCKED"
	// StateExhausted - the retry budget ran out
	StateExhausted TerminalState = "EXHAUSTED"
	// StateMissingTools - required build tools absent; detected pre-loop
	// without consuming budget or any oracle round trip
	StateMissingTools TerminalState = "MISSING_TOOLS"
)

// Process exit codes per terminal state. Stable and documented: scripts key
// off these values. Exit code 1 is reserved for usage/config errors.
const (
	ExitSuccess      = 0
	ExitExhausted    = 2
	ExitBlocked      = 3
	ExitMissingTools = 4
)

// ExitCode maps a terminal state to its stable process exit code
func (s TerminalState) ExitCode() int {
	switch s {
	case StateSuccess:
		return ExitSuccess
	case StateExhausted:
		return ExitExhausted
	case StateBlocked:
		return ExitBlocked
	case StateMissingTools:
		return ExitMissingTools
	default:
		return 1
	}
}

// RetryBudget tracks how many failed-and-diagnosed attempts remain.
// Invariant: AttemptsUsed <= MaxRetry.
type RetryBudget struct {
	MaxRetry     int `json:"max_retry"`
	AttemptsUsed int `json:"attempts_used"`
}

// Consume records one failed attempt and reports whether the budget still
// allows another diagnosis round
func (b *RetryBudget) Consume() bool {
	b.AttemptsUsed++
	return b.AttemptsUsed <= b.MaxRetry
}

// Remaining returns the number of diagnosis rounds left
func (b *RetryBudget) Remaining() int {
	if b.AttemptsUsed >= b.MaxRetry {
		return 0
	}
	return b.MaxRetry - b.AttemptsUsed
}

// RunResult is the final outcome of one engine run
type RunResult struct {
	RunID        string         `json:"run_id"`
	State        TerminalState  `json:"state"`
	AttemptsUsed int            `json:"attempts_used"`
	History      []BuildAttempt `json:"history"`
	MissingTools []string       `json:"missing_tools,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Artifacts    []string       `json:"artifacts,omitempty"`
}

// Message returns the distinct, actionable user-facing message for the
// terminal state
func (r *RunResult) Message() string {
	switch r.State {
	case StateSuccess:
		return fmt.Sprintf("Build succeeded after %d attempt(s)", len(r.History))
	case StateMissingTools:
		return fmt.Sprintf("Required build tools are not installed: %v. Install them and re-run (e.g. apt-get install -y %s)",
			r.MissingTools, joinTools(r.MissingTools))
	case StateBlocked:
		if r.Reason != "" {
			return fmt.Sprintf("Run blocked: %s", r.Reason)
		}
		return "Run blocked: the oracle produced no usable fix plan"
	case StateExhausted:
		return fmt.Sprintf("Build still failing after %d repair attempts; giving up", r.AttemptsUsed)
	default:
		return string(r.State)
	}
}

func joinTools(tools []string) string {
	out := ""
	for i, t := range tools {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
