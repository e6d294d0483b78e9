// -----------------------------------------------------------------------
// Run log - Append-only JSONL record of one compile run
// Separate from operational logging; this file is the auditable artifact
// -----------------------------------------------------------------------

package runlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/ternarybob/compilot/internal/models"
)

// Recorder writes one JSON line per significant run event: state
// transitions, build attempts, and the terminal result. Records are
// append-only; nothing is ever rewritten.
type Recorder struct {
	runID  string
	file   *os.File
	logger log.Logger
}

// New creates a run log recorder appending to path. Each recorder gets a
// fresh run ID so consecutive runs against the same file stay separable.
func New(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log %s: %w", path, err)
	}

	recorder := &Recorder{
		runID: uuid.New().String(),
		file:  file,
		logger: log.Logger{
			Level:      log.InfoLevel,
			TimeField:  "ts",
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			Writer:     &log.IOWriter{Writer: file},
		},
	}

	return recorder, nil
}

// RunID returns the unique identifier of this run
func (r *Recorder) RunID() string {
	return r.runID
}

// RecordStart records the run beginning with the analyzed project state
func (r *Recorder) RecordStart(project *models.ProjectInfo) {
	r.logger.Info().
		Str("run_id", r.runID).
		Str("event", "run_start").
		Str("project", project.Name).
		Str("build_system", string(project.BuildSystem)).
		Str("build_root", project.BuildRoot).
		Str("build_command", project.BuildCommand).
		Msg("run started")
}

// RecordTransition records one state machine transition
func (r *Recorder) RecordTransition(from, to, detail string) {
	event := r.logger.Info().
		Str("run_id", r.runID).
		Str("event", "transition").
		Str("from", from).
		Str("to", to)
	if detail != "" {
		event = event.Str("detail", detail)
	}
	event.Msg("state transition")
}

// RecordAttempt records one executed build attempt
func (r *Recorder) RecordAttempt(attempt models.BuildAttempt) {
	r.logger.Info().
		Str("run_id", r.runID).
		Str("event", "build_attempt").
		Int("attempt", attempt.Index).
		Str("command", attempt.Command).
		Int("exit_code", attempt.ExitCode).
		Str("reason", attempt.Reason).
		Msg("build attempt")
}

// RecordFixPlan records the oracle's accepted fix plan for an attempt
func (r *Recorder) RecordFixPlan(attemptIndex int, plan *models.FixPlan) {
	r.logger.Info().
		Str("run_id", r.runID).
		Str("event", "fix_plan").
		Int("attempt", attemptIndex).
		Strs("fix_commands", plan.FixCommands).
		Strs("manual_steps", plan.ManualSteps).
		Str("new_build_command", plan.NewBuildCommand).
		Str("explanation", plan.Explanation).
		Msg("fix plan")
}

// RecordResult records the terminal outcome of the run
func (r *Recorder) RecordResult(result *models.RunResult) {
	r.logger.Info().
		Str("run_id", r.runID).
		Str("event", "run_result").
		Str("state", string(result.State)).
		Int("attempts_used", result.AttemptsUsed).
		Strs("missing_tools", result.MissingTools).
		Strs("artifacts", result.Artifacts).
		Str("reason", result.Reason).
		Msg("run finished")
}

// Close closes the underlying file
func (r *Recorder) Close() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close run log: %w", err)
	}
	return nil
}
