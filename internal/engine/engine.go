// -----------------------------------------------------------------------
// CompilerEngine - Analyze, build, diagnose, repair, retry
// The retry loop terminates exactly once, in exactly one terminal state
// -----------------------------------------------------------------------

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/analyzer"
	"github.com/ternarybob/compilot/internal/deps"
	"github.com/ternarybob/compilot/internal/guard"
	"github.com/ternarybob/compilot/internal/interfaces"
	"github.com/ternarybob/compilot/internal/models"
	"github.com/ternarybob/compilot/internal/runlog"
)

// Engine states as recorded in the run log
const (
	stateInit         = "INIT"
	stateAnalyze      = "ANALYZE"
	stateToolPrecheck = "TOOL_PRECHECK"
	stateBuildAttempt = "BUILD_ATTEMPT"
	stateDiagnose     = "DIAGNOSE"
	stateApplyFix     = "APPLY_FIX"
)

// requiredTools lists the executables each build system needs on PATH.
// Checked once before the loop; a missing tool ends the run without
// consuming budget or any oracle round trip. Project-local launchers
// (./configure, ./gradlew) are deliberately absent.
var requiredTools = map[models.BuildSystem][]string{
	models.BuildSystemCMake:      {"cmake", "make"},
	models.BuildSystemMake:       {"make"},
	models.BuildSystemAutotools:  {"make"},
	models.BuildSystemMeson:      {"meson", "ninja"},
	models.BuildSystemMaven:      {"mvn"},
	models.BuildSystemNPM:        {"npm"},
	models.BuildSystemCargo:      {"cargo"},
	models.BuildSystemGo:         {"go"},
	models.BuildSystemSetuptools: {"python3"},
	models.BuildSystemPoetry:     {"poetry"},
	models.BuildSystemSBT:        {"sbt"},
	models.BuildSystemBazel:      {"bazel"},
}

// artifactDirs are searched for build outputs after a successful run
var artifactDirs = []string{"build", "dist", "out", "target", "bin"}

// artifactExtensions identify build outputs that carry no exec bit
var artifactExtensions = map[string]bool{
	".so":    true,
	".a":     true,
	".dylib": true,
	".dll":   true,
	".jar":   true,
	".war":   true,
	".whl":   true,
	".exe":   true,
}

const maxArtifacts = 20

// Options wires the engine's collaborators
type Options struct {
	Analyzer  *analyzer.Analyzer
	Runner    interfaces.CommandRunner
	Deps      *deps.Manager
	Diagnoser interfaces.Diagnoser
	Recorder  *runlog.Recorder
	MaxRetry  int
	Logger    arbor.ILogger
}

// Engine drives one compile run through the retry state machine
type Engine struct {
	logger    arbor.ILogger
	analyzer  *analyzer.Analyzer
	guard     *guard.Guard
	runner    interfaces.CommandRunner
	deps      *deps.Manager
	diagnoser interfaces.Diagnoser
	recorder  *runlog.Recorder
	maxRetry  int
}

// New creates a compiler engine. The recorder may be nil when no run log
// artifact is wanted.
func New(opts Options) *Engine {
	return &Engine{
		logger:    opts.Logger,
		analyzer:  opts.Analyzer,
		guard:     guard.New(),
		runner:    opts.Runner,
		deps:      opts.Deps,
		diagnoser: opts.Diagnoser,
		recorder:  opts.Recorder,
		maxRetry:  opts.MaxRetry,
	}
}

// Run executes one complete compile run for the project at projectPath.
// The returned result always carries a terminal state; the error return is
// reserved for setup failures (bad path, unreadable project) that happen
// before the loop starts.
func (e *Engine) Run(ctx context.Context, projectPath string) (*models.RunResult, error) {
	e.transition(stateInit, stateAnalyze, "")

	project, err := e.analyzer.Analyze(ctx, projectPath)
	if err != nil {
		return nil, fmt.Errorf("project analysis failed: %w", err)
	}
	e.recordStart(project)

	result := &models.RunResult{RunID: e.runID()}

	// Tool precheck runs before any budget or oracle use
	e.transition(stateAnalyze, stateToolPrecheck, string(project.BuildSystem))
	if missing := e.missingTools(project.BuildSystem); len(missing) > 0 {
		result.State = models.StateMissingTools
		result.MissingTools = missing
		e.finish(result)
		return result, nil
	}

	if project.BuildCommand == "" {
		result.State = models.StateBlocked
		result.Reason = fmt.Sprintf("no build command could be determined for build system %q", project.BuildSystem)
		e.finish(result)
		return result, nil
	}

	e.deps.EnsureInstalled(ctx, project)

	budget := &models.RetryBudget{MaxRetry: e.maxRetry}
	e.transition(stateToolPrecheck, stateBuildAttempt, project.BuildCommand)

	for {
		attempt := e.runBuildAttempt(ctx, project, len(result.History)+1)
		result.History = append(result.History, attempt)
		e.recordAttempt(attempt)

		if attempt.ExitCode == 0 {
			result.State = models.StateSuccess
			result.AttemptsUsed = budget.AttemptsUsed
			result.Artifacts = e.discoverArtifacts(project)
			e.transition(stateBuildAttempt, string(models.StateSuccess), "")
			e.finish(result)
			return result, nil
		}

		if !budget.Consume() {
			result.State = models.StateExhausted
			result.AttemptsUsed = budget.AttemptsUsed - 1
			result.Reason = models.ErrBudgetExhausted.Error()
			e.transition(stateBuildAttempt, string(models.StateExhausted), "")
			e.finish(result)
			return result, nil
		}
		result.AttemptsUsed = budget.AttemptsUsed

		e.transition(stateBuildAttempt, stateDiagnose, fmt.Sprintf("exit code %d", attempt.ExitCode))

		plan, err := e.diagnoser.Diagnose(ctx, project, result.History, nil)
		if err != nil {
			result.State = models.StateBlocked
			result.Reason = fmt.Sprintf("diagnosis unavailable: %v", err)
			e.transition(stateDiagnose, string(models.StateBlocked), result.Reason)
			e.finish(result)
			return result, nil
		}

		// Escalation anywhere in the plan, manual steps included, is a
		// deterministic dead end: the same plan would recur on every retry
		if token, line, found := e.findPlanEscalation(plan); found {
			result.State = models.StateBlocked
			result.Reason = (&models.PrivilegeEscalationError{Command: line, Token: token}).Error()
			e.transition(stateDiagnose, string(models.StateBlocked), result.Reason)
			e.finish(result)
			return result, nil
		}

		if plan.IsEmpty() {
			result.State = models.StateBlocked
			result.Reason = "the oracle produced no actionable fix"
			if plan.Explanation != "" {
				result.Reason = fmt.Sprintf("no actionable fix: %s", plan.Explanation)
			}
			e.transition(stateDiagnose, string(models.StateBlocked), result.Reason)
			e.finish(result)
			return result, nil
		}

		e.recordFixPlan(attempt.Index, plan)
		e.transition(stateDiagnose, stateApplyFix, "")
		e.applyFixPlan(ctx, project, plan)
		e.transition(stateApplyFix, stateBuildAttempt, project.BuildCommand)
	}
}

// runBuildAttempt executes the current build command and records the
// outcome. A timeout surfaces through the same failure path as any other
// non-zero exit; only the reason differs.
func (e *Engine) runBuildAttempt(ctx context.Context, project *models.ProjectInfo, index int) models.BuildAttempt {
	command := project.BuildCommand
	timeout := e.deps.TimeoutFor(command)

	e.logger.Info().
		Int("attempt", index).
		Str("command", command).
		Msg("Running build attempt")

	attempt := models.BuildAttempt{
		Index:     index,
		Command:   command,
		Timestamp: time.Now(),
	}

	result, err := e.runner.Run(ctx, project.RootPath, command, timeout)
	if err != nil {
		attempt.ExitCode = -1
		attempt.Reason = err.Error()
		return attempt
	}

	attempt.ExitCode = result.ExitCode
	attempt.StdoutExcerpt = result.Stdout
	attempt.StderrExcerpt = result.Stderr
	if result.TimedOut {
		attempt.Reason = "timeout"
	}

	e.logger.Info().
		Int("attempt", index).
		Int("exit_code", attempt.ExitCode).
		Bool("timed_out", result.TimedOut).
		Msg("Build attempt finished")

	return attempt
}

// applyFixPlan runs the plan's fix commands and installs an accepted new
// build command. The command overwrite happens in place so the corrected
// command drives every later attempt.
func (e *Engine) applyFixPlan(ctx context.Context, project *models.ProjectInfo, plan *models.FixPlan) {
	for _, step := range plan.ManualSteps {
		e.logger.Info().Str("step", step).Msg("Manual step suggested (not executed)")
	}

	e.deps.RunFixCommands(ctx, project.RootPath, plan.FixCommands)

	if plan.NewBuildCommand == "" {
		return
	}

	sanitized, err := e.guard.Sanitize(plan.NewBuildCommand)
	if err != nil {
		e.logger.Warn().
			Str("command", plan.NewBuildCommand).
			Err(err).
			Msg("Rejected corrected build command, keeping current one")
		return
	}

	decision := models.BuildRootDecision{
		RootDir:    project.BuildRoot,
		RequiresCD: project.RequiresCD,
		Known:      true,
	}
	corrected := e.guard.EnsureBuildRoot(sanitized, decision)

	e.logger.Info().
		Str("old_command", project.BuildCommand).
		Str("new_command", corrected).
		Msg("Adopting corrected build command")
	project.SetBuildCommand(corrected)
}

// missingTools returns the required tools absent from PATH
func (e *Engine) missingTools(system models.BuildSystem) []string {
	var missing []string
	for _, tool := range requiredTools[system] {
		if !e.runner.LookTool(tool) {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		e.logger.Error().
			Str("build_system", string(system)).
			Strs("missing", missing).
			Msg("Required build tools are not installed")
	}
	return missing
}

// findPlanEscalation scans every textual field of the plan for escalation
// tokens
func (e *Engine) findPlanEscalation(plan *models.FixPlan) (token, line string, found bool) {
	var fields []string
	fields = append(fields, plan.FixCommands...)
	fields = append(fields, plan.ManualSteps...)
	fields = append(fields, plan.NewBuildCommand)
	return e.guard.FindEscalation(strings.Join(fields, "\n"))
}

// discoverArtifacts collects likely build outputs from the conventional
// output directories under the build root
func (e *Engine) discoverArtifacts(project *models.ProjectInfo) []string {
	root := project.RootPath
	if project.BuildRoot != "." {
		root = filepath.Join(root, project.BuildRoot)
	}

	var artifacts []string
	for _, dir := range artifactDirs {
		base := filepath.Join(root, dir)
		filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || len(artifacts) >= maxArtifacts {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			executable := info.Mode()&0o111 != 0
			if executable || artifactExtensions[filepath.Ext(d.Name())] {
				rel, err := filepath.Rel(project.RootPath, path)
				if err != nil {
					rel = path
				}
				artifacts = append(artifacts, rel)
			}
			return nil
		})
	}
	return artifacts
}

func (e *Engine) runID() string {
	if e.recorder == nil {
		return ""
	}
	return e.recorder.RunID()
}

func (e *Engine) transition(from, to, detail string) {
	e.logger.Debug().Str("from", from).Str("to", to).Str("detail", detail).Msg("State transition")
	if e.recorder != nil {
		e.recorder.RecordTransition(from, to, detail)
	}
}

func (e *Engine) recordStart(project *models.ProjectInfo) {
	if e.recorder != nil {
		e.recorder.RecordStart(project)
	}
}

func (e *Engine) recordAttempt(attempt models.BuildAttempt) {
	if e.recorder != nil {
		e.recorder.RecordAttempt(attempt)
	}
}

func (e *Engine) recordFixPlan(index int, plan *models.FixPlan) {
	if e.recorder != nil {
		e.recorder.RecordFixPlan(index, plan)
	}
}

func (e *Engine) finish(result *models.RunResult) {
	e.logger.Info().
		Str("state", string(result.State)).
		Int("attempts_used", result.AttemptsUsed).
		Msg(result.Message())
	if e.recorder != nil {
		e.recorder.RecordResult(result)
	}
}
