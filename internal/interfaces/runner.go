package interfaces

import (
	"context"
	"time"
)

// CommandResult captures one shell execution with bounded output
type CommandResult struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// CommandRunner executes a sanitized shell command line from a working
// directory with a time bound. A timeout is reported through TimedOut and a
// non-zero exit code; it is not a distinct failure class for control flow.
type CommandRunner interface {
	Run(ctx context.Context, dir, command string, timeout time.Duration) (*CommandResult, error)

	// LookTool probes whether an executable is available on PATH
	LookTool(name string) bool
}
