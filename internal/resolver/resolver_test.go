package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_RootMarkerWins(t *testing.T) {
	r := New()

	// A root-level CMakeLists.txt selects the root even when a subdirectory
	// named after the project carries its own marker.
	snapshot := Snapshot{
		".":     {"CMakeLists.txt", "README.md"},
		"expat": {"CMakeLists.txt"},
		"src":   {"Makefile"},
	}

	decision := r.Resolve("expat", snapshot)
	assert.True(t, decision.Known)
	assert.Equal(t, ".", decision.RootDir)
	assert.False(t, decision.RequiresCD)
}

func TestResolve_TemplatesNeverCount(t *testing.T) {
	r := New()

	// configure.ac alone indicates a project that still needs generation
	snapshot := Snapshot{
		".":     {"README.md"},
		"expat": {"configure.ac", "Makefile.am"},
	}

	decision := r.Resolve("libexpat", snapshot)
	assert.False(t, decision.Known)

	// Once buildconf.sh appears, the subdirectory is ready to build from
	snapshot["expat"] = []string{"configure.ac", "Makefile.am", "buildconf.sh"}

	decision = r.Resolve("libexpat", snapshot)
	assert.True(t, decision.Known)
	assert.Equal(t, "expat", decision.RootDir)
	assert.True(t, decision.RequiresCD)
}

func TestResolve_DeniedDirsSkipped(t *testing.T) {
	r := New()

	snapshot := Snapshot{
		".":     {"README.md"},
		"tests": {"Makefile"},
		"docs":  {"Makefile"},
		"core":  {"Makefile"},
	}

	decision := r.Resolve("project", snapshot)
	assert.True(t, decision.Known)
	assert.Equal(t, "core", decision.RootDir)
	assert.True(t, decision.RequiresCD)
}

func TestResolve_PrefersProjectNameMatch(t *testing.T) {
	r := New()

	snapshot := Snapshot{
		".":     {"README.md"},
		"alpha": {"CMakeLists.txt"},
		"mylib": {"CMakeLists.txt"},
	}

	decision := r.Resolve("mylib", snapshot)
	assert.Equal(t, "mylib", decision.RootDir)
}

func TestResolve_DeterministicOrder(t *testing.T) {
	r := New()

	snapshot := Snapshot{
		".":    {},
		"zeta": {"Makefile"},
		"beta": {"Makefile"},
	}

	// First in sorted order wins when no name matches
	for i := 0; i < 5; i++ {
		decision := r.Resolve("other", snapshot)
		assert.Equal(t, "beta", decision.RootDir)
	}
}

func TestResolve_NoMarkerAnywhere(t *testing.T) {
	r := New()

	snapshot := Snapshot{
		".":   {"README.md"},
		"src": {"main.c"},
	}

	decision := r.Resolve("project", snapshot)
	assert.False(t, decision.Known)
	assert.Equal(t, ".", decision.RootDir)
	assert.False(t, decision.RequiresCD)
}
