// -----------------------------------------------------------------------
// CommandGuard data tables - verb whitelist, escalation tokens, deny lists
// Behavior lives in these tables, not in control flow, so the guard and
// resolver stay independently testable and extensible
// -----------------------------------------------------------------------

package guard

// escalationTokens are privilege-escalation verbs. Any occurrence anywhere
// in a candidate command or plan is an unconditional, whole-run rejection:
// the condition is deterministic and recurs identically on every attempt.
var escalationTokens = []string{
	"sudo",
	"doas",
	"pkexec",
	"su",
}

// rejectedPackageTools are root-level package database tools that are never
// acceptable outside the allow-listed managers below
var rejectedPackageTools = []string{
	"dpkg",
	"rpm",
}

// allowedPackageManagers may appear in fix commands without escalation.
// They run user-scoped or already assume sufficient container privileges.
var allowedPackageManagers = []string{
	"apt-get",
	"apt",
	"yum",
	"dnf",
	"apk",
	"brew",
}

// commandVerbs is the whitelist of recognized shell verbs. A candidate
// segment whose leading verb is not listed here (and does not start with
// "./") is treated as narration and dropped. A segment that matches a
// listed verb is kept even if it also contains a colon; colon presence
// alone is never a rejection signal.
var commandVerbs = []string{
	"cd",
	"mkdir",
	"cmake",
	"make",
	"configure",
	"autoreconf",
	"autoconf",
	"automake",
	"gcc",
	"g++",
	"clang",
	"clang++",
	"python",
	"python3",
	"pip",
	"pip3",
	"npm",
	"yarn",
	"cargo",
	"go",
	"mvn",
	"gradle",
	"sbt",
	"meson",
	"ninja",
	"bazel",
	"poetry",
	"git",
}

// deniedBuildDirs are subdirectory names that never govern a build. Shared
// with the resolver: a `cd` into one of these is corrected, and the resolver
// never selects them as build root.
var deniedBuildDirs = []string{
	"test",
	"tests",
	"testing",
	"fuzzing",
	"examples",
	"samples",
	"docs",
	"doc",
}

var (
	escalationTokenSet map[string]bool
	rejectedPackageSet map[string]bool
	allowedPackageSet  map[string]bool
	commandVerbSet     map[string]bool
	deniedBuildDirSet  map[string]bool
)

func init() {
	escalationTokenSet = toSet(escalationTokens)
	rejectedPackageSet = toSet(rejectedPackageTools)
	allowedPackageSet = toSet(allowedPackageManagers)
	commandVerbSet = toSet(commandVerbs)
	deniedBuildDirSet = toSet(deniedBuildDirs)

	// Package managers are valid verbs too
	for _, pm := range allowedPackageManagers {
		commandVerbSet[pm] = true
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// IsDeniedDir reports whether a directory name is on the build-root deny list
func IsDeniedDir(name string) bool {
	return deniedBuildDirSet[name]
}

// IsPackageManagerCommand reports whether a sanitized command line invokes a
// system package manager. Such commands receive a shorter execution bound so
// package database lock contention fails fast.
func IsPackageManagerCommand(command string) bool {
	for _, segment := range splitSegments(command) {
		verb := leadingVerb(segment)
		if allowedPackageSet[verb] {
			return true
		}
	}
	return false
}
