// -----------------------------------------------------------------------
// BuildRootResolver - Decides which directory actually governs the build
// Pure: operates on a marker snapshot, never touches the filesystem itself
// -----------------------------------------------------------------------

package resolver

import (
	"sort"

	"github.com/ternarybob/compilot/internal/guard"
	"github.com/ternarybob/compilot/internal/models"
)

// generatedMarkers are executable or generated build entry points. Their
// presence means the directory is ready to build from.
var generatedMarkers = []string{
	"CMakeLists.txt",
	"Makefile",
	"makefile",
	"GNUmakefile",
	"configure",
	"buildconf.sh",
}

// templateMarkers are source templates that still need generation. They
// indicate a project that is not ready to build, and never count as markers.
var templateMarkers = []string{
	"configure.ac",
	"configure.in",
	"Makefile.am",
	"Makefile.in",
}

var (
	generatedMarkerSet = make(map[string]bool, len(generatedMarkers))
	templateMarkerSet  = make(map[string]bool, len(templateMarkers))
)

func init() {
	for _, m := range generatedMarkers {
		generatedMarkerSet[m] = true
	}
	for _, m := range templateMarkers {
		templateMarkerSet[m] = true
	}
}

// Snapshot maps each directory (the root as "." plus direct children) to the
// set of marker files present in it
type Snapshot map[string][]string

// Resolver decides the build root from a filesystem snapshot
type Resolver struct{}

// New creates a build root resolver
func New() *Resolver {
	return &Resolver{}
}

// Resolve picks the build root. First match wins:
//  1. The root itself carries a generated marker - root is the build root
//     and subdirectories are never inspected.
//  2. Otherwise scan direct subdirectories, excluding the deny list.
//     Prefer a subdirectory named like the project; otherwise the first
//     marker-carrying subdirectory in sorted order.
//  3. No marker anywhere - the decision is "no known build root", left for
//     the oracle-facing layer as a hint.
func (r *Resolver) Resolve(projectName string, snapshot Snapshot) models.BuildRootDecision {
	if hasGeneratedMarker(snapshot["."]) {
		return models.BuildRootDecision{RootDir: ".", RequiresCD: false, Known: true}
	}

	var candidates []string
	for dir, markers := range snapshot {
		if dir == "." || guard.IsDeniedDir(dir) {
			continue
		}
		if hasGeneratedMarker(markers) {
			candidates = append(candidates, dir)
		}
	}

	if len(candidates) == 0 {
		return models.BuildRootDecision{RootDir: ".", RequiresCD: false, Known: false}
	}

	sort.Strings(candidates)
	for _, dir := range candidates {
		if dir == projectName {
			return models.BuildRootDecision{RootDir: dir, RequiresCD: true, Known: true}
		}
	}
	return models.BuildRootDecision{RootDir: candidates[0], RequiresCD: true, Known: true}
}

// hasGeneratedMarker reports whether the marker set contains a generated
// build entry point. Template files are ignored: configure.ac without a
// configure script means the build is not ready here.
func hasGeneratedMarker(markers []string) bool {
	for _, m := range markers {
		if templateMarkerSet[m] {
			continue
		}
		if generatedMarkerSet[m] {
			return true
		}
	}
	return false
}
