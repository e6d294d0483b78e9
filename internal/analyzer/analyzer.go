// -----------------------------------------------------------------------
// ProjectAnalyzer - Inspects a project tree and produces ProjectInfo
// -----------------------------------------------------------------------

package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/compilot/internal/guard"
	"github.com/ternarybob/compilot/internal/interfaces"
	"github.com/ternarybob/compilot/internal/models"
	"github.com/ternarybob/compilot/internal/resolver"
)

// markerRule maps a marker file to the build system it indicates. Rules are
// checked in order: cmake and autotools outrank a bare Makefile because
// those generators emit Makefiles of their own.
type markerRule struct {
	file   string
	system models.BuildSystem
}

var markerRules = []markerRule{
	{"CMakeLists.txt", models.BuildSystemCMake},
	{"configure", models.BuildSystemAutotools},
	{"configure.ac", models.BuildSystemAutotools},
	{"configure.in", models.BuildSystemAutotools},
	{"buildconf.sh", models.BuildSystemAutotools},
	{"meson.build", models.BuildSystemMeson},
	{"pom.xml", models.BuildSystemMaven},
	{"build.gradle", models.BuildSystemGradle},
	{"build.gradle.kts", models.BuildSystemGradle},
	{"settings.gradle", models.BuildSystemGradle},
	{"package.json", models.BuildSystemNPM},
	{"Cargo.toml", models.BuildSystemCargo},
	{"go.mod", models.BuildSystemGo},
	{"pyproject.toml", models.BuildSystemPoetry},
	{"setup.py", models.BuildSystemSetuptools},
	{"build.sbt", models.BuildSystemSBT},
	{"BUILD.bazel", models.BuildSystemBazel},
	{"WORKSPACE", models.BuildSystemBazel},
	{"Makefile", models.BuildSystemMake},
	{"makefile", models.BuildSystemMake},
	{"GNUmakefile", models.BuildSystemMake},
}

// defaultBuildCommands are the starting commands per build system. The
// engine overwrites the command in place when the oracle supplies a better
// one that passes the guard.
var defaultBuildCommands = map[models.BuildSystem]string{
	models.BuildSystemCMake:      "mkdir -p build && cd build && cmake .. && make",
	models.BuildSystemMake:       "make",
	models.BuildSystemAutotools:  "./configure && make",
	models.BuildSystemMeson:      "meson setup build && meson compile -C build",
	models.BuildSystemMaven:      "mvn clean package",
	models.BuildSystemGradle:     "./gradlew build",
	models.BuildSystemNPM:        "npm install && npm run build",
	models.BuildSystemCargo:      "cargo build --release",
	models.BuildSystemGo:         "go build ./...",
	models.BuildSystemSetuptools: "python setup.py build",
	models.BuildSystemPoetry:     "poetry build",
	models.BuildSystemSBT:        "sbt compile",
	models.BuildSystemBazel:      "bazel build //...",
}

// languageByExtension maps source file extensions to language names
var languageByExtension = map[string]string{
	".c":     "C",
	".h":     "C",
	".cc":    "C++",
	".cpp":   "C++",
	".cxx":   "C++",
	".hpp":   "C++",
	".java":  "Java",
	".kt":    "Kotlin",
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".go":    "Go",
	".rs":    "Rust",
	".scala": "Scala",
	".rb":    "Ruby",
	".cs":    "C#",
}

// skippedDirs are never descended into during language scanning
var skippedDirs = map[string]bool{
	"node_modules": true,
	"build":        true,
	"dist":         true,
	"target":       true,
	"__pycache__":  true,
	"venv":         true,
	".venv":        true,
	"vendor":       true,
}

// readmeCandidates in discovery order
var readmeCandidates = []string{
	"README.md",
	"README",
	"README.rst",
	"INSTALL.md",
	"INSTALL",
}

// overrideFileName is the optional per-project override file
const overrideFileName = ".compilot.yaml"

const maxReadmeBytes = 16 * 1024

// projectOverrides mirrors the optional per-project override file. Values
// set here win over everything the analyzer detects.
type projectOverrides struct {
	BuildSystem  string   `yaml:"build_system"`
	BuildCommand string   `yaml:"build_command"`
	BuildRoot    string   `yaml:"build_root"`
	Dependencies []string `yaml:"dependencies"`
}

// Analyzer inspects a project directory and produces the ProjectInfo the
// engine runs from. The hint parser is optional; without it the analyzer
// relies on marker files alone.
type Analyzer struct {
	logger   arbor.ILogger
	guard    *guard.Guard
	resolver *resolver.Resolver
	hints    interfaces.HintParser
}

// New creates a project analyzer. hints may be nil.
func New(hints interfaces.HintParser, logger arbor.ILogger) *Analyzer {
	return &Analyzer{
		logger:   logger,
		guard:    guard.New(),
		resolver: resolver.New(),
		hints:    hints,
	}
}

// Analyze inspects projectPath and returns a populated ProjectInfo.
// Detection order: per-project overrides, marker files, README hints. The
// final build command always reflects the resolved build root.
func (a *Analyzer) Analyze(ctx context.Context, projectPath string) (*models.ProjectInfo, error) {
	absPath, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access project path: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("project path is not a directory: %s", absPath)
	}

	info := &models.ProjectInfo{
		Name:     filepath.Base(absPath),
		RootPath: absPath,
	}

	snapshot, err := a.buildSnapshot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	decision := a.resolver.Resolve(info.Name, snapshot)
	info.BuildRoot = decision.RootDir
	info.RequiresCD = decision.RequiresCD

	info.BuildSystem = detectBuildSystem(snapshot, decision)
	info.Languages = a.detectLanguages(absPath)

	if cmd, ok := defaultBuildCommands[info.BuildSystem]; ok {
		info.BuildCommand = cmd
	}

	a.applyReadmeHints(ctx, absPath, info)

	if err := a.applyOverrides(absPath, info); err != nil {
		return nil, err
	}

	if info.BuildSystem == "" {
		info.BuildSystem = models.BuildSystemUnknown
	}
	if info.BuildCommand != "" {
		// Overrides may have moved the build root; re-derive the decision
		// from the final ProjectInfo state
		final := models.BuildRootDecision{
			RootDir:    info.BuildRoot,
			RequiresCD: info.RequiresCD,
			Known:      decision.Known || info.BuildRoot != decision.RootDir,
		}
		info.SetBuildCommand(a.guard.EnsureBuildRoot(info.BuildCommand, final))
	}

	a.logger.Info().
		Str("project", info.Name).
		Str("build_system", string(info.BuildSystem)).
		Str("build_root", info.BuildRoot).
		Str("build_command", info.BuildCommand).
		Strs("languages", info.Languages).
		Msg("Project analyzed")

	return info, nil
}

// DefaultBuildCommand returns the starting command for a build system, or
// empty when none is known
func DefaultBuildCommand(system models.BuildSystem) string {
	return defaultBuildCommands[system]
}

// buildSnapshot lists the file names of the project root and its direct
// subdirectories. The resolver decides which names count as markers.
func (a *Analyzer) buildSnapshot(absPath string) (resolver.Snapshot, error) {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, err
	}

	snapshot := resolver.Snapshot{".": {}}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !entry.IsDir() {
			snapshot["."] = append(snapshot["."], name)
			continue
		}
		subEntries, err := os.ReadDir(filepath.Join(absPath, name))
		if err != nil {
			a.logger.Warn().Str("dir", name).Err(err).Msg("Skipping unreadable subdirectory")
			continue
		}
		var files []string
		for _, sub := range subEntries {
			if !sub.IsDir() {
				files = append(files, sub.Name())
			}
		}
		snapshot[name] = files
	}
	return snapshot, nil
}

// detectBuildSystem checks the resolved build root first, then the project
// root. First matching rule wins.
func detectBuildSystem(snapshot resolver.Snapshot, decision models.BuildRootDecision) models.BuildSystem {
	if system, ok := matchMarkers(snapshot[decision.RootDir]); ok {
		return system
	}
	if decision.RootDir != "." {
		if system, ok := matchMarkers(snapshot["."]); ok {
			return system
		}
	}
	return models.BuildSystemUnknown
}

func matchMarkers(files []string) (models.BuildSystem, bool) {
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	for _, rule := range markerRules {
		if present[rule.file] {
			return rule.system, true
		}
	}
	return models.BuildSystemUnknown, false
}

// detectLanguages walks the tree counting source files by extension and
// returns languages ordered by file count, most common first
func (a *Analyzer) detectLanguages(absPath string) []string {
	counts := make(map[string]int)

	filepath.WalkDir(absPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != absPath && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if lang, ok := languageByExtension[strings.ToLower(filepath.Ext(name))]; ok {
			counts[lang]++
		}
		return nil
	})

	languages := make([]string, 0, len(counts))
	for lang := range counts {
		languages = append(languages, lang)
	}
	sort.Slice(languages, func(i, j int) bool {
		if counts[languages[i]] != counts[languages[j]] {
			return counts[languages[i]] > counts[languages[j]]
		}
		return languages[i] < languages[j]
	})
	return languages
}

// applyReadmeHints consults the hint parser with the project README. Hints
// are advisory: a hinted command must pass the guard, and a rejected hint is
// dropped without failing the analysis.
func (a *Analyzer) applyReadmeHints(ctx context.Context, absPath string, info *models.ProjectInfo) {
	if a.hints == nil {
		return
	}

	readme, found := readFirstReadme(absPath)
	if !found {
		return
	}

	var rootFiles []string
	if entries, err := os.ReadDir(absPath); err == nil {
		for _, e := range entries {
			rootFiles = append(rootFiles, e.Name())
		}
	}

	hints, err := a.hints.ParseBuildHints(ctx, info.Name, readme, rootFiles)
	if err != nil {
		a.logger.Warn().Err(err).Msg("README hint extraction failed, continuing without hints")
		return
	}
	if hints == nil || !hints.HasContent() {
		return
	}
	info.ReadmeParsed = true

	if info.BuildSystem == models.BuildSystemUnknown && hints.BuildSystem != "" {
		info.BuildSystem = models.BuildSystem(hints.BuildSystem)
		if cmd, ok := defaultBuildCommands[info.BuildSystem]; ok && info.BuildCommand == "" {
			info.BuildCommand = cmd
		}
	}

	if hints.BuildCommand != "" {
		sanitized, err := a.guard.Sanitize(hints.BuildCommand)
		if err != nil {
			a.logger.Warn().
				Str("command", hints.BuildCommand).
				Err(err).
				Msg("Dropping README build command rejected by guard")
		} else {
			info.SetBuildCommand(sanitized)
		}
	}

	info.AddDependencies(hints.Dependencies)
}

// applyOverrides merges the optional .compilot.yaml override file. A
// malformed override file is a hard error: the user wrote it deliberately.
func (a *Analyzer) applyOverrides(absPath string, info *models.ProjectInfo) error {
	data, err := os.ReadFile(filepath.Join(absPath, overrideFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", overrideFileName, err)
	}

	var overrides projectOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse %s: %w", overrideFileName, err)
	}

	if overrides.BuildSystem != "" {
		info.BuildSystem = models.BuildSystem(overrides.BuildSystem)
		if info.BuildCommand == "" {
			info.BuildCommand = defaultBuildCommands[info.BuildSystem]
		}
	}
	if overrides.BuildCommand != "" {
		sanitized, err := a.guard.Sanitize(overrides.BuildCommand)
		if err != nil {
			return fmt.Errorf("override build command rejected: %w", err)
		}
		info.SetBuildCommand(sanitized)
	}
	if overrides.BuildRoot != "" {
		info.BuildRoot = overrides.BuildRoot
		info.RequiresCD = overrides.BuildRoot != "."
	}
	info.AddDependencies(overrides.Dependencies)

	a.logger.Debug().Str("file", overrideFileName).Msg("Applied project overrides")
	return nil
}

// readFirstReadme returns the content of the first README-style file found,
// truncated to a size the oracle can digest
func readFirstReadme(absPath string) (string, bool) {
	for _, name := range readmeCandidates {
		data, err := os.ReadFile(filepath.Join(absPath, name))
		if err != nil {
			continue
		}
		if len(data) > maxReadmeBytes {
			data = data[:maxReadmeBytes]
		}
		return string(data), true
	}
	return "", false
}
