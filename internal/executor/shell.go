// -----------------------------------------------------------------------
// ShellExecutor - Runs sanitized command lines with bounded time and output
// -----------------------------------------------------------------------

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/interfaces"
)

// ShellExecutor executes commands through the system shell. Only command
// lines that already passed the guard reach this type.
type ShellExecutor struct {
	logger      arbor.ILogger
	outputLimit int
}

// New creates a shell executor. outputLimit bounds captured stdout/stderr
// per command so a chatty build cannot exhaust memory.
func New(outputLimit int, logger arbor.ILogger) *ShellExecutor {
	if outputLimit <= 0 {
		outputLimit = 64 * 1024
	}
	return &ShellExecutor{
		logger:      logger,
		outputLimit: outputLimit,
	}
}

// Run executes one sanitized command line from dir with the given timeout.
// A timeout surfaces as TimedOut plus a non-zero exit code and flows through
// the same failure path as any other non-zero exit; only the recorded reason
// differs.
func (e *ShellExecutor) Run(ctx context.Context, dir, command string, timeout time.Duration) (*interfaces.CommandResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Debug().
		Str("dir", dir).
		Str("command", command).
		Dur("timeout", timeout).
		Msg("Executing command")

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &interfaces.CommandResult{
		Command:  command,
		Stdout:   truncate(stdout.String(), e.outputLimit),
		Stderr:   truncate(stderr.String(), e.outputLimit),
		Duration: duration,
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Command could not be started at all
			return nil, fmt.Errorf("failed to execute %q: %w", command, err)
		}
	}

	e.logger.Debug().
		Str("command", command).
		Int("exit_code", result.ExitCode).
		Bool("timed_out", result.TimedOut).
		Dur("duration", duration).
		Msg("Command finished")

	return result, nil
}

// LookTool probes whether an executable is available on PATH
func (e *ShellExecutor) LookTool(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// truncate keeps the tail of output rather than the head: build errors
// cluster at the end
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return "... (truncated)\n" + s[len(s)-limit:]
}
