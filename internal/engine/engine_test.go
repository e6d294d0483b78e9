package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/analyzer"
	"github.com/ternarybob/compilot/internal/deps"
	"github.com/ternarybob/compilot/internal/interfaces"
	"github.com/ternarybob/compilot/internal/models"
)

// scriptRunner resolves each command through a script function and records
// everything it ran
type scriptRunner struct {
	exitFor      func(command string) int
	missingTools map[string]bool
	commands     []string
}

func (s *scriptRunner) Run(ctx context.Context, dir, command string, timeout time.Duration) (*interfaces.CommandResult, error) {
	s.commands = append(s.commands, command)
	code := 0
	if s.exitFor != nil {
		code = s.exitFor(command)
	}
	result := &interfaces.CommandResult{Command: command, ExitCode: code}
	if code != 0 {
		result.Stderr = "parser.c:42:10: fatal error: expat.h: No such file or directory"
	}
	return result, nil
}

func (s *scriptRunner) LookTool(name string) bool {
	return !s.missingTools[name]
}

// scriptDiagnoser returns canned plans in order and records call count
type scriptDiagnoser struct {
	plans []*models.FixPlan
	err   error
	calls int
}

func (s *scriptDiagnoser) Diagnose(ctx context.Context, project *models.ProjectInfo, history []models.BuildAttempt, constraints []string) (*models.FixPlan, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.plans) {
		idx = len(s.plans) - 1
	}
	return s.plans[idx], nil
}

func makeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Makefile"), []byte("all:\n\ttrue\n"), 0o644))
	return dir
}

func newTestEngine(runner *scriptRunner, diagnoser interfaces.Diagnoser, maxRetry int) *Engine {
	logger := arbor.NewLogger()
	return New(Options{
		Analyzer:  analyzer.New(nil, logger),
		Runner:    runner,
		Deps:      deps.New(runner, time.Minute, time.Minute, logger),
		Diagnoser: diagnoser,
		MaxRetry:  maxRetry,
		Logger:    logger,
	})
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	runner := &scriptRunner{}
	diagnoser := &scriptDiagnoser{}
	e := newTestEngine(runner, diagnoser, 5)

	result, err := e.Run(context.Background(), makeProject(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateSuccess, result.State)
	assert.Equal(t, 0, result.State.ExitCode())
	assert.Equal(t, 0, result.AttemptsUsed)
	require.Len(t, result.History, 1)
	assert.Equal(t, "make", result.History[0].Command)
	assert.Zero(t, diagnoser.calls)
}

func TestRun_MissingToolsEndsBeforeLoop(t *testing.T) {
	runner := &scriptRunner{missingTools: map[string]bool{"make": true}}
	diagnoser := &scriptDiagnoser{}
	e := newTestEngine(runner, diagnoser, 5)

	result, err := e.Run(context.Background(), makeProject(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateMissingTools, result.State)
	assert.Equal(t, models.ExitMissingTools, result.State.ExitCode())
	assert.Equal(t, []string{"make"}, result.MissingTools)
	assert.Empty(t, result.History)
	assert.Empty(t, runner.commands, "no command may run when tools are missing")
	assert.Zero(t, diagnoser.calls, "no oracle round trip when tools are missing")
	assert.Contains(t, result.Message(), "make")
}

func TestRun_ExhaustsBudget(t *testing.T) {
	runner := &scriptRunner{exitFor: func(string) int { return 2 }}
	diagnoser := &scriptDiagnoser{
		plans: []*models.FixPlan{
			{FixCommands: []string{"make clean"}, Explanation: "stale objects"},
		},
	}
	e := newTestEngine(runner, diagnoser, 2)

	result, err := e.Run(context.Background(), makeProject(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateExhausted, result.State)
	assert.Equal(t, models.ExitExhausted, result.State.ExitCode())
	assert.Equal(t, 2, result.AttemptsUsed)
	assert.Len(t, result.History, 3, "initial attempt plus one per diagnosis round")
	assert.Equal(t, 2, diagnoser.calls)

	// History indexes are strictly increasing from 1
	for i, attempt := range result.History {
		assert.Equal(t, i+1, attempt.Index)
	}
}

func TestRun_CorrectedCommandPersists(t *testing.T) {
	runner := &scriptRunner{
		exitFor: func(command string) int {
			if strings.HasPrefix(command, "mkdir -p build") {
				return 0
			}
			return 2
		},
	}
	diagnoser := &scriptDiagnoser{
		plans: []*models.FixPlan{
			{
				NewBuildCommand: "mkdir build\ncd build\ncmake ..\nmake",
				Explanation:     "the project is CMake-based, not plain make",
			},
		},
	}
	e := newTestEngine(runner, diagnoser, 5)

	result, err := e.Run(context.Background(), makeProject(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateSuccess, result.State)
	require.Len(t, result.History, 2)
	assert.Equal(t, "mkdir -p build && cd build && cmake .. && make", result.History[1].Command,
		"corrected command is normalized and drives the next attempt")
}

func TestRun_EscalationInPlanBlocksRun(t *testing.T) {
	runner := &scriptRunner{exitFor: func(string) int { return 2 }}
	diagnoser := &scriptDiagnoser{
		plans: []*models.FixPlan{
			{
				FixCommands: []string{"apt-get install -y libexpat1-dev"},
				ManualSteps: []string{"Run sudo ldconfig after installing"},
				Explanation: "missing headers",
			},
		},
	}
	e := newTestEngine(runner, diagnoser, 5)

	result, err := e.Run(context.Background(), makeProject(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateBlocked, result.State)
	assert.Equal(t, models.ExitBlocked, result.State.ExitCode())
	assert.Contains(t, result.Reason, "sudo")
	assert.Len(t, result.History, 1, "escalation ends the run without further attempts")
}

func TestRun_EmptyPlanBlocksRun(t *testing.T) {
	runner := &scriptRunner{exitFor: func(string) int { return 2 }}
	diagnoser := &scriptDiagnoser{
		plans: []*models.FixPlan{
			{Explanation: "the source file has a syntax error that must be fixed by hand"},
		},
	}
	e := newTestEngine(runner, diagnoser, 5)

	result, err := e.Run(context.Background(), makeProject(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateBlocked, result.State)
	assert.Contains(t, result.Reason, "syntax error")
}

func TestRun_DiagnoserFailureBlocksRun(t *testing.T) {
	runner := &scriptRunner{exitFor: func(string) int { return 2 }}
	diagnoser := &scriptDiagnoser{err: models.ErrOracleUnavailable}
	e := newTestEngine(runner, diagnoser, 5)

	result, err := e.Run(context.Background(), makeProject(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateBlocked, result.State)
	assert.Contains(t, result.Reason, "oracle unavailable")
}

func TestRun_FixCommandsRunBetweenAttempts(t *testing.T) {
	first := true
	runner := &scriptRunner{
		exitFor: func(command string) int {
			if command == "make" && first {
				first = false
				return 2
			}
			return 0
		},
	}
	diagnoser := &scriptDiagnoser{
		plans: []*models.FixPlan{
			{FixCommands: []string{"mkdir includes", "dpkg -i bad.deb"}, Explanation: "missing include dir"},
		},
	}
	e := newTestEngine(runner, diagnoser, 5)

	result, err := e.Run(context.Background(), makeProject(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateSuccess, result.State)
	// The rejected dpkg command is skipped; the mkdir command is normalized
	assert.Equal(t, []string{"make", "mkdir -p includes", "make"}, runner.commands)
}

func TestRun_InvalidPathFailsBeforeLoop(t *testing.T) {
	e := newTestEngine(&scriptRunner{}, &scriptDiagnoser{}, 5)

	_, err := e.Run(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrBudgetExhausted))
}
