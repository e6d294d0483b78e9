package deps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/interfaces"
	"github.com/ternarybob/compilot/internal/models"
)

// fakeRunner records every command it is asked to run
type fakeRunner struct {
	commands []string
	timeouts []time.Duration
	exitCode int
}

func (f *fakeRunner) Run(ctx context.Context, dir, command string, timeout time.Duration) (*interfaces.CommandResult, error) {
	f.commands = append(f.commands, command)
	f.timeouts = append(f.timeouts, timeout)
	return &interfaces.CommandResult{Command: command, ExitCode: f.exitCode}, nil
}

func (f *fakeRunner) LookTool(name string) bool { return true }

func newTestManager(runner interfaces.CommandRunner) *Manager {
	return New(runner, 5*time.Minute, 2*time.Minute, arbor.NewLogger())
}

func TestInstallCommand_PerBuildSystem(t *testing.T) {
	m := newTestManager(&fakeRunner{})

	tests := []struct {
		system   models.BuildSystem
		expected string
	}{
		{models.BuildSystemNPM, "npm install"},
		{models.BuildSystemMaven, "mvn dependency:resolve"},
		{models.BuildSystemCargo, "cargo fetch"},
		{models.BuildSystemGo, "go mod download"},
		{models.BuildSystemPoetry, "poetry install"},
		{models.BuildSystemCMake, ""},
		{models.BuildSystemMake, ""},
	}

	for _, tt := range tests {
		project := &models.ProjectInfo{BuildSystem: tt.system, RootPath: t.TempDir()}
		assert.Equal(t, tt.expected, m.InstallCommand(project), "system: %s", tt.system)
	}
}

func TestInstallCommand_PythonRequirementsFile(t *testing.T) {
	m := newTestManager(&fakeRunner{})

	project := &models.ProjectInfo{BuildSystem: models.BuildSystemSetuptools, RootPath: t.TempDir()}
	assert.Equal(t, "pip install -e .", m.InstallCommand(project))
}

func TestEnsureInstalled_RunsInstallStep(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)

	project := &models.ProjectInfo{BuildSystem: models.BuildSystemNPM, RootPath: t.TempDir()}
	m.EnsureInstalled(context.Background(), project)

	assert.Equal(t, []string{"npm install"}, runner.commands)
}

func TestEnsureInstalled_NoStepForCMake(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)

	project := &models.ProjectInfo{BuildSystem: models.BuildSystemCMake, RootPath: t.TempDir()}
	m.EnsureInstalled(context.Background(), project)

	assert.Empty(t, runner.commands)
}

func TestEnsureInstalled_FailureIsSwallowed(t *testing.T) {
	runner := &fakeRunner{exitCode: 1}
	m := newTestManager(runner)

	project := &models.ProjectInfo{BuildSystem: models.BuildSystemCargo, RootPath: t.TempDir()}
	m.EnsureInstalled(context.Background(), project)

	assert.Equal(t, []string{"cargo fetch"}, runner.commands)
}

func TestRunFixCommands_SkipsRejected(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)

	m.RunFixCommands(context.Background(), t.TempDir(), []string{
		"mkdir build",
		"dpkg -i broken.deb",
		"apt-get install -y cmake",
	})

	assert.Equal(t, []string{"mkdir -p build", "apt-get install -y cmake"}, runner.commands)
}

func TestTimeoutFor_PackageManagerClassification(t *testing.T) {
	m := newTestManager(&fakeRunner{})

	assert.Equal(t, 2*time.Minute, m.TimeoutFor("apt-get install -y cmake"))
	assert.Equal(t, 5*time.Minute, m.TimeoutFor("cmake .. && make"))
	assert.Equal(t, 5*time.Minute, m.TimeoutFor("pip install -r requirements.txt"))
}
