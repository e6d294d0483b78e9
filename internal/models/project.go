// -----------------------------------------------------------------------
// ProjectInfo - Mutable single source of truth for one compile run
// -----------------------------------------------------------------------

package models

// BuildSystem identifies the build tooling that governs a project
type BuildSystem string

// Recognized build systems
const (
	BuildSystemCMake      BuildSystem = "cmake"
	BuildSystemMake       BuildSystem = "make"
	BuildSystemAutotools  BuildSystem = "autotools"
	BuildSystemMeson      BuildSystem = "meson"
	BuildSystemMaven      BuildSystem = "maven"
	BuildSystemGradle     BuildSystem = "gradle"
	BuildSystemNPM        BuildSystem = "npm"
	BuildSystemCargo      BuildSystem = "cargo"
	BuildSystemGo         BuildSystem = "go"
	BuildSystemSetuptools BuildSystem = "setuptools"
	BuildSystemPoetry     BuildSystem = "poetry"
	BuildSystemSBT        BuildSystem = "sbt"
	BuildSystemBazel      BuildSystem = "bazel"
	BuildSystemUnknown    BuildSystem = "unknown"
)

// ProjectInfo is the structured description of the project under compilation.
// Created once by the analyzer; BuildCommand is mutated in place when the
// engine accepts a corrected command so the fix survives into the next
// attempt. Not persisted across runs.
type ProjectInfo struct {
	Name         string      `json:"name"`
	RootPath     string      `json:"root_path"`
	BuildSystem  BuildSystem `json:"build_system"`
	Languages    []string    `json:"languages"`
	BuildCommand string      `json:"build_command"`
	BuildRoot    string      `json:"build_root"`  // Relative to RootPath; "." for the root itself
	RequiresCD   bool        `json:"requires_cd"` // BuildCommand must start with "cd <BuildRoot> &&"
	Dependencies []string    `json:"dependencies"`
	ReadmeParsed bool        `json:"readme_parsed"`
}

// SetBuildCommand overwrites the current build command in place. The current
// command is always the single source of truth for the next attempt; it is
// never re-derived from a stale copy.
func (p *ProjectInfo) SetBuildCommand(command string) {
	p.BuildCommand = command
}

// AddDependencies appends dependencies, preserving order and skipping
// entries already present
func (p *ProjectInfo) AddDependencies(deps []string) {
	seen := make(map[string]bool, len(p.Dependencies))
	for _, d := range p.Dependencies {
		seen[d] = true
	}
	for _, d := range deps {
		if d != "" && !seen[d] {
			seen[d] = true
			p.Dependencies = append(p.Dependencies, d)
		}
	}
}

// BuildRootDecision is the resolver's verdict on where the build actually
// runs from
type BuildRootDecision struct {
	RootDir    string `json:"root_dir"`    // Relative path; "." means the project root
	RequiresCD bool   `json:"requires_cd"` // True when RootDir is a subdirectory
	Known      bool   `json:"known"`       // False when no recognized marker was found anywhere
}
