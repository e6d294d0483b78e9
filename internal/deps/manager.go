// -----------------------------------------------------------------------
// DependencyManager - Installs project dependencies before and between builds
// -----------------------------------------------------------------------

package deps

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/guard"
	"github.com/ternarybob/compilot/internal/interfaces"
	"github.com/ternarybob/compilot/internal/models"
)

// installCommands are the per-build-system dependency resolution steps run
// before the first build attempt. Build systems absent from the table fetch
// dependencies as part of the build itself.
var installCommands = map[models.BuildSystem]string{
	models.BuildSystemNPM:    "npm install",
	models.BuildSystemMaven:  "mvn dependency:resolve",
	models.BuildSystemGradle: "./gradlew dependencies",
	models.BuildSystemCargo:  "cargo fetch",
	models.BuildSystemGo:     "go mod download",
	models.BuildSystemPoetry: "poetry install",
}

// Manager runs dependency installation commands. Install failures are
// deliberately non-fatal: the build attempt that follows produces the
// authoritative error for the oracle to diagnose.
type Manager struct {
	logger         arbor.ILogger
	guard          *guard.Guard
	runner         interfaces.CommandRunner
	buildTimeout   time.Duration
	packageTimeout time.Duration
}

// New creates a dependency manager. buildTimeout applies to ordinary
// commands, packageTimeout to package manager invocations.
func New(runner interfaces.CommandRunner, buildTimeout, packageTimeout time.Duration, logger arbor.ILogger) *Manager {
	return &Manager{
		logger:         logger,
		guard:          guard.New(),
		runner:         runner,
		buildTimeout:   buildTimeout,
		packageTimeout: packageTimeout,
	}
}

// InstallCommand returns the dependency installation command for the
// project, or empty when the build system has no separate install step.
// Python projects install from requirements.txt when one exists.
func (m *Manager) InstallCommand(project *models.ProjectInfo) string {
	if cmd, ok := installCommands[project.BuildSystem]; ok {
		return cmd
	}
	if project.BuildSystem == models.BuildSystemSetuptools {
		if _, err := os.Stat(filepath.Join(project.RootPath, "requirements.txt")); err == nil {
			return "pip install -r requirements.txt"
		}
		return "pip install -e ."
	}
	return ""
}

// EnsureInstalled runs the project's dependency installation step if it has
// one. Failures are logged and swallowed.
func (m *Manager) EnsureInstalled(ctx context.Context, project *models.ProjectInfo) {
	command := m.InstallCommand(project)
	if command == "" {
		return
	}

	sanitized, err := m.guard.Sanitize(command)
	if err != nil {
		m.logger.Warn().Str("command", command).Err(err).Msg("Skipping rejected install command")
		return
	}

	m.logger.Info().Str("command", sanitized).Msg("Installing project dependencies")

	result, err := m.runner.Run(ctx, project.RootPath, sanitized, m.TimeoutFor(sanitized))
	if err != nil {
		m.logger.Warn().Err(err).Msg("Dependency installation could not run")
		return
	}
	if result.ExitCode != 0 {
		m.logger.Warn().
			Int("exit_code", result.ExitCode).
			Str("stderr", result.Stderr).
			Msg("Dependency installation failed, continuing to build")
	}
}

// RunFixCommands executes oracle-supplied fix commands in order. Each
// command is sanitized again before running; a rejected command is skipped.
// A failed fix command does not stop the sequence since later commands may
// still help the next build attempt.
func (m *Manager) RunFixCommands(ctx context.Context, dir string, commands []string) {
	for _, command := range commands {
		sanitized, err := m.guard.Sanitize(command)
		if err != nil {
			m.logger.Warn().Str("command", command).Err(err).Msg("Skipping rejected fix command")
			continue
		}

		m.logger.Info().Str("command", sanitized).Msg("Applying fix command")

		result, err := m.runner.Run(ctx, dir, sanitized, m.TimeoutFor(sanitized))
		if err != nil {
			m.logger.Warn().Str("command", sanitized).Err(err).Msg("Fix command could not run")
			continue
		}
		if result.ExitCode != 0 {
			m.logger.Warn().
				Str("command", sanitized).
				Int("exit_code", result.ExitCode).
				Msg("Fix command exited non-zero")
		}
	}
}

// TimeoutFor classifies a command: package manager invocations get the
// package timeout since network fetches dominate their runtime
func (m *Manager) TimeoutFor(command string) time.Duration {
	if guard.IsPackageManagerCommand(command) {
		return m.packageTimeout
	}
	return m.buildTimeout
}
