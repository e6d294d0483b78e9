// -----------------------------------------------------------------------
// ErrorHandler - Turns build failures into schema-validated fix plans
// Uses regex for error excerpt extraction and the oracle for diagnosis
// -----------------------------------------------------------------------

package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/interfaces"
	"github.com/ternarybob/compilot/internal/models"
)

// Error line patterns per toolchain. Applied to combined build output to
// pull the diagnostic lines out of hundreds of lines of compile noise.
var errorLinePatterns = []*regexp.Regexp{
	// gcc/clang: file.c:12:5: error: ...
	regexp.MustCompile(`(?m)^\S+\.(?:c|cc|cpp|cxx|h|hpp|m|mm):\d+(?::\d+)?:\s+(?:fatal\s+)?(?:error|warning):.*$`),

	// MSVC: file.cpp(12): error C1234: ...
	regexp.MustCompile(`(?m)^.*\(\d+\):\s+(?:fatal\s+)?error\s+[A-Z]+\d+:.*$`),

	// javac: File.java:12: error: ...
	regexp.MustCompile(`(?m)^.*\.java:\d+:\s+error:.*$`),

	// Python tracebacks and raised exceptions
	regexp.MustCompile(`(?m)^(?:Traceback \(most recent call last\):|\s+File ".*", line \d+.*|\w+Error:.*)$`),

	// make: *** [target] Error 2
	regexp.MustCompile(`(?m)^make(?:\[\d+\])?: \*\*\*.*$`),

	// cargo/rustc: error[E0432]: ...
	regexp.MustCompile(`(?m)^error(?:\[E\d+\])?:.*$`),

	// npm
	regexp.MustCompile(`(?m)^npm ERR!.*$`),

	// linker
	regexp.MustCompile(`(?m)^.*undefined reference to.*$`),

	// configure script failures
	regexp.MustCompile(`(?m)^configure: error:.*$`),
}

const (
	maxExcerptLines = 40
	maxTailBytes    = 2048
)

// Handler implements failure diagnosis and README hint extraction against
// the oracle. Oracle output is never trusted: every payload is parsed and
// schema validated before anything acts on it.
type Handler struct {
	oracle interfaces.Oracle
	logger arbor.ILogger
}

// New creates an error handler backed by the given oracle
func New(oracle interfaces.Oracle, logger arbor.ILogger) *Handler {
	return &Handler{
		oracle: oracle,
		logger: logger,
	}
}

// ExtractErrorExcerpt pulls recognizable error lines from build output.
// When no pattern matches, the tail of stderr (or stdout) is used instead
// since build failures cluster at the end.
func ExtractErrorExcerpt(stdout, stderr string) string {
	combined := stdout + "\n" + stderr

	var lines []string
	seen := make(map[string]bool)
	for _, pattern := range errorLinePatterns {
		for _, match := range pattern.FindAllString(combined, -1) {
			if !seen[match] {
				seen[match] = true
				lines = append(lines, match)
			}
			if len(lines) >= maxExcerptLines {
				return strings.Join(lines, "\n")
			}
		}
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n")
	}

	tail := strings.TrimSpace(stderr)
	if tail == "" {
		tail = strings.TrimSpace(stdout)
	}
	if len(tail) > maxTailBytes {
		tail = tail[len(tail)-maxTailBytes:]
	}
	return tail
}

// Diagnose asks the oracle for a fix plan after a failed build attempt.
// The latest attempt drives the prompt; earlier attempts are summarized so
// the oracle does not repeat suggestions that already failed. A malformed
// or unparseable payload maps to ErrOracleUnavailable.
func (h *Handler) Diagnose(ctx context.Context, project *models.ProjectInfo, history []models.BuildAttempt, constraints []string) (*models.FixPlan, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("diagnosis requires at least one failed attempt")
	}
	latest := history[len(history)-1]

	h.logger.Info().
		Int("attempt", latest.Index).
		Int("exit_code", latest.ExitCode).
		Msg("Requesting diagnosis from oracle")

	prompt := buildDiagnosisPrompt(project, history, latest)

	messages := []interfaces.Message{
		{Role: "system", Content: diagnosisSystemPrompt(constraints)},
		{Role: "user", Content: prompt},
	}

	response, err := h.oracle.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("diagnosis round trip failed: %w: %w", models.ErrOracleUnavailable, err)
	}

	var plan models.FixPlan
	if err := unmarshalOracleJSON(response, &plan); err != nil {
		h.logger.Warn().Err(err).Msg("Oracle returned unparseable fix plan")
		return nil, fmt.Errorf("%w: %w", models.ErrOracleUnavailable, err)
	}
	if err := models.ValidateFixPlan(&plan); err != nil {
		h.logger.Warn().Err(err).Msg("Oracle fix plan failed schema validation")
		return nil, fmt.Errorf("%w: %w", models.ErrOracleUnavailable, err)
	}

	h.logger.Info().
		Int("fix_commands", len(plan.FixCommands)).
		Int("manual_steps", len(plan.ManualSteps)).
		Bool("new_build_command", plan.NewBuildCommand != "").
		Msg("Received fix plan from oracle")

	return &plan, nil
}

// ParseBuildHints asks the oracle to extract build instructions from
// README-style free text
func (h *Handler) ParseBuildHints(ctx context.Context, projectName, readme string, files []string) (*models.BuildHints, error) {
	prompt := fmt.Sprintf(`You are helping a build engineer compile the project %q from source.

Top-level files:
%s

README content:
%s

Extract the build instructions and return JSON with:
{
  "build_system": "cmake|make|autotools|meson|maven|gradle|npm|cargo|go|setuptools|poetry|sbt|bazel",
  "build_command": "the shell command(s) to build, joined with &&",
  "dependencies": ["package1", "package2"],
  "language": "primary language",
  "notes": "Any important observations"
}

Use an empty string for anything the README does not state.
Only return valid JSON. Do not include markdown code blocks or any other text.`,
		projectName, strings.Join(files, "\n"), readme)

	messages := []interfaces.Message{
		{Role: "user", Content: prompt},
	}

	response, err := h.oracle.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("hint extraction failed: %w: %w", models.ErrOracleUnavailable, err)
	}

	var hints models.BuildHints
	if err := unmarshalOracleJSON(response, &hints); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrOracleUnavailable, err)
	}
	if err := models.ValidateBuildHints(&hints); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrOracleUnavailable, err)
	}

	return &hints, nil
}

// diagnosisSystemPrompt states the ground rules the fix plan must respect
func diagnosisSystemPrompt(constraints []string) string {
	var sb strings.Builder
	sb.WriteString("You are a build engineer diagnosing a failed compilation. ")
	sb.WriteString("Suggest shell commands that repair the build environment or a corrected build command. ")
	sb.WriteString("Hard constraints:\n")
	sb.WriteString("- Never use sudo, doas, pkexec, su, or any other privilege escalation\n")
	sb.WriteString("- Prefer user-scoped installs over system-wide changes\n")
	for _, c := range constraints {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildDiagnosisPrompt assembles the user prompt from project state and
// attempt history
func buildDiagnosisPrompt(project *models.ProjectInfo, history []models.BuildAttempt, latest models.BuildAttempt) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Project: %s\n", project.Name)
	fmt.Fprintf(&sb, "Build system: %s\n", project.BuildSystem)
	fmt.Fprintf(&sb, "Languages: %s\n", strings.Join(project.Languages, ", "))
	fmt.Fprintf(&sb, "Build root: %s\n\n", project.BuildRoot)

	if len(history) > 1 {
		sb.WriteString("Previous attempts that already failed (do not repeat these):\n")
		for _, attempt := range history[:len(history)-1] {
			fmt.Fprintf(&sb, "  %d. %s (exit %d)\n", attempt.Index, attempt.Command, attempt.ExitCode)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Failed command: %s\n", latest.Command)
	fmt.Fprintf(&sb, "Exit code: %d\n", latest.ExitCode)
	if latest.Reason != "" {
		fmt.Fprintf(&sb, "Failure reason: %s\n", latest.Reason)
	}
	excerpt := ExtractErrorExcerpt(latest.StdoutExcerpt, latest.StderrExcerpt)
	fmt.Fprintf(&sb, "\nError output:\n%s\n", excerpt)

	sb.WriteString(`
Return JSON with:
{
  "fix_commands": ["shell commands to run before retrying"],
  "manual_steps": ["steps a human must perform, if any"],
  "new_build_command": "corrected build command, or empty to keep the current one",
  "explanation": "one paragraph explaining the failure and the fix"
}

Only return valid JSON. Do not include markdown code blocks or any other text.`)

	return sb.String()
}

// unmarshalOracleJSON strips markdown code fences the oracle sometimes wraps
// around its payload, then parses it
func unmarshalOracleJSON(response string, v interface{}) error {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("failed to parse oracle response as JSON: %w", err)
	}
	return nil
}
