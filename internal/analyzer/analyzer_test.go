package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/models"
)

// mockHintParser returns canned hints and records whether it was consulted
type mockHintParser struct {
	hints  *models.BuildHints
	err    error
	called bool
	readme string
}

func (m *mockHintParser) ParseBuildHints(ctx context.Context, projectName, readme string, files []string) (*models.BuildHints, error) {
	m.called = true
	m.readme = readme
	return m.hints, m.err
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestAnalyze_CMakeAtRoot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"CMakeLists.txt": "project(demo)",
		"main.c":         "int main(void) { return 0; }",
	})

	a := New(nil, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, models.BuildSystemCMake, project.BuildSystem)
	assert.Equal(t, ".", project.BuildRoot)
	assert.False(t, project.RequiresCD)
	assert.Equal(t, "mkdir -p build && cd build && cmake .. && make", project.BuildCommand)
	assert.Equal(t, []string{"C"}, project.Languages)
}

func TestAnalyze_SubdirectoryBuildRoot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"README.md":        "see expat/",
		"expat/configure":  "#!/bin/sh",
		"expat/parser.c":   "",
		"tests/Makefile":   "all:",
		"tests/run_test.c": "",
	})

	a := New(nil, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, models.BuildSystemAutotools, project.BuildSystem)
	assert.Equal(t, "expat", project.BuildRoot)
	assert.True(t, project.RequiresCD)
	assert.Equal(t, "cd expat && ./configure && make", project.BuildCommand)
}

func TestAnalyze_LanguagesOrderedByCount(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Makefile":  "all:",
		"a.c":       "",
		"b.c":       "",
		"helper.py": "",
	})

	a := New(nil, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "Python"}, project.Languages)
}

func TestAnalyze_SkipsGeneratedDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod":                "module demo",
		"main.go":               "package main",
		"node_modules/dep.js":   "",
		"build/generated.py":    "",
		"target/Generated.java": "",
	})

	a := New(nil, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, models.BuildSystemGo, project.BuildSystem)
	assert.Equal(t, []string{"Go"}, project.Languages)
}

func TestAnalyze_ReadmeHintsFillUnknown(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"README.md": "## Building\nUse cmake after generating the sources.",
		"main.c":    "",
	})

	hints := &mockHintParser{
		hints: &models.BuildHints{
			BuildSystem:  "cmake",
			BuildCommand: "sudo make install",
			Dependencies: []string{"libtool", "autoconf"},
			Language:     "C",
		},
	}

	a := New(hints, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.True(t, hints.called)
	assert.Contains(t, hints.readme, "Use cmake")
	assert.True(t, project.ReadmeParsed)
	assert.Equal(t, models.BuildSystemCMake, project.BuildSystem)
	// The escalating hint command is dropped; the build system default stays
	assert.Equal(t, "mkdir -p build && cd build && cmake .. && make", project.BuildCommand)
	assert.Equal(t, []string{"libtool", "autoconf"}, project.Dependencies)
}

func TestAnalyze_HintCommandAccepted(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"README.md": "Run buildconf then configure.",
		"Makefile":  "all:",
	})

	hints := &mockHintParser{
		hints: &models.BuildHints{
			BuildCommand: "./buildconf.sh\n./configure\nmake",
		},
	}

	a := New(hints, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "./buildconf.sh && ./configure && make", project.BuildCommand)
}

func TestAnalyze_HintFailureIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"README.md": "docs",
		"Makefile":  "all:",
	})

	hints := &mockHintParser{err: models.ErrOracleUnavailable}

	a := New(hints, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, models.BuildSystemMake, project.BuildSystem)
	assert.Equal(t, "make", project.BuildCommand)
	assert.False(t, project.ReadmeParsed)
}

func TestAnalyze_OverridesWin(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Makefile": "all:",
		".compilot.yaml": `build_command: "mkdir out && make DESTDIR=out"
dependencies:
  - zlib
`,
	})

	a := New(nil, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "mkdir -p out && make DESTDIR=out", project.BuildCommand)
	assert.Equal(t, []string{"zlib"}, project.Dependencies)
}

func TestAnalyze_BuildRootOverride(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Makefile":     "all:",
		"lib/Makefile": "all:",
		".compilot.yaml": `build_root: lib
`,
	})

	a := New(nil, arbor.NewLogger())
	project, err := a.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "lib", project.BuildRoot)
	assert.True(t, project.RequiresCD)
	assert.Equal(t, "cd lib && make", project.BuildCommand)
}

func TestAnalyze_MalformedOverridesFail(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Makefile":       "all:",
		".compilot.yaml": "build_command: [not, a, string",
	})

	a := New(nil, arbor.NewLogger())
	_, err := a.Analyze(context.Background(), dir)
	require.Error(t, err)
}

func TestAnalyze_RejectsFilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	a := New(nil, arbor.NewLogger())
	_, err := a.Analyze(context.Background(), path)
	require.Error(t, err)
}

func TestDefaultBuildCommand(t *testing.T) {
	assert.Equal(t, "make", DefaultBuildCommand(models.BuildSystemMake))
	assert.Equal(t, "cargo build --release", DefaultBuildCommand(models.BuildSystemCargo))
	assert.Empty(t, DefaultBuildCommand(models.BuildSystemUnknown))
}
