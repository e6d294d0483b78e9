// -----------------------------------------------------------------------
// CommandGuard - Sanitization gate between advisory output and execution
// Pure and deterministic: re-sanitizing its own output yields the same
// output, so the guard can sit anywhere in the pipeline
// -----------------------------------------------------------------------

package guard

import (
	"strings"

	"github.com/ternarybob/compilot/internal/models"
)

// Guard validates untrusted candidate command lines before execution.
// Stateless; safe for reuse across a run.
type Guard struct{}

// New creates a command guard
func New() *Guard {
	return &Guard{}
}

// Sanitize validates one raw multi-line or &&-joined candidate command from
// an untrusted source and returns a sanitized, &&-joined command line.
//
// Rules, applied in order:
//  1. Reject outright on any privilege-escalation token, or on a root-level
//     package tool outside the allow-listed managers.
//  2. Drop segments that are pure narration (no recognized shell verb).
//  3. Normalize re-entrancy hazards: mkdir without -p gains -p so re-running
//     after a partial prior failure does not error on "directory exists".
//  4. Join survivors with "&&", preserving original relative order.
func (g *Guard) Sanitize(raw string) (string, error) {
	if token, cmd, found := g.FindEscalation(raw); found {
		return "", &models.PrivilegeEscalationError{Command: cmd, Token: token}
	}

	segments := splitSegments(raw)
	kept := make([]string, 0, len(segments))
	for _, segment := range segments {
		verb := leadingVerb(segment)
		if rejectedPackageSet[verb] {
			return "", &models.CommandRejectedError{
				Command: segment,
				Reason:  "root-level package tool " + verb + " is not permitted",
			}
		}
		if !isCommandSegment(segment) {
			// Narration; not an error by itself
			continue
		}
		kept = append(kept, normalizeSegment(segment))
	}

	if len(kept) == 0 {
		return "", &models.CommandRejectedError{
			Command: raw,
			Reason:  "no executable command segments after sanitization",
		}
	}

	return strings.Join(kept, " && "), nil
}

// FindEscalation scans free text for privilege-escalation tokens. Used on
// whole fix plans, including manual steps, because escalation anywhere in a
// plan makes the entire run unrepairable by retrying.
func (g *Guard) FindEscalation(text string) (token string, line string, found bool) {
	for _, segment := range splitSegments(text) {
		for _, word := range strings.Fields(segment) {
			w := strings.Trim(word, "\"'`();")
			if escalationTokenSet[w] {
				return w, segment, true
			}
		}
	}
	return "", "", false
}

// EnsureBuildRoot reconciles a sanitized command with the resolver's build
// root decision. The resolver wins over any oracle-supplied directory: a
// leading cd into a deny-listed or wrong directory is stripped or corrected,
// and the required "cd <root> &&" prefix is injected when absent.
func (g *Guard) EnsureBuildRoot(command string, decision models.BuildRootDecision) string {
	segments := splitSegments(command)
	if len(segments) == 0 {
		return command
	}

	fields := strings.Fields(segments[0])
	if len(fields) >= 2 && fields[0] == "cd" {
		target := strings.Trim(fields[1], "/")
		wrongTarget := IsDeniedDir(target) || (decision.Known && decision.RequiresCD && target != decision.RootDir)
		if wrongTarget || (decision.Known && !decision.RequiresCD) {
			// Drop the misdirected cd; the correct prefix is re-added below
			segments = segments[1:]
		}
	}

	if decision.RequiresCD {
		needsPrefix := true
		if len(segments) > 0 {
			first := strings.Fields(segments[0])
			if len(first) >= 2 && first[0] == "cd" && strings.Trim(first[1], "/") == decision.RootDir {
				needsPrefix = false
			}
		}
		if needsPrefix {
			segments = append([]string{"cd " + decision.RootDir}, segments...)
		}
	}

	return strings.Join(segments, " && ")
}

// splitSegments breaks raw candidate text into individual command segments,
// splitting on newlines, "&&", and ";"
func splitSegments(raw string) []string {
	raw = strings.ReplaceAll(raw, "&&", "\n")
	raw = strings.ReplaceAll(raw, ";", "\n")
	var segments []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "$ ")
		line = strings.TrimSpace(strings.TrimPrefix(line, "$"))
		if line != "" {
			segments = append(segments, line)
		}
	}
	return segments
}

// leadingVerb returns the first word of a segment, skipping environment
// assignments like CC=gcc
func leadingVerb(segment string) string {
	for _, field := range strings.Fields(segment) {
		if isEnvAssignment(field) {
			continue
		}
		return field
	}
	return ""
}

// isEnvAssignment reports whether a field is a KEY=VALUE environment prefix
func isEnvAssignment(field string) bool {
	eq := strings.Index(field, "=")
	if eq <= 0 {
		return false
	}
	for _, r := range field[:eq] {
		if !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// isCommandSegment reports whether a segment starts with a recognized shell
// verb. A line with no recognized verb is narration even if it superficially
// resembles a command (contains a colon, non-Latin text, or a trailing
// description). Colon presence alone is never a rejection signal.
func isCommandSegment(segment string) bool {
	verb := leadingVerb(segment)
	if verb == "" {
		return false
	}
	if strings.HasPrefix(verb, "./") {
		return true
	}
	return commandVerbSet[verb]
}

// normalizeSegment applies re-entrancy normalizations to one kept segment
func normalizeSegment(segment string) string {
	fields := strings.Fields(segment)
	if len(fields) >= 2 && fields[0] == "mkdir" {
		hasDashP := false
		for _, f := range fields[1:] {
			if f == "-p" || strings.HasPrefix(f, "-p") || (strings.HasPrefix(f, "-") && strings.Contains(f, "p")) {
				hasDashP = true
				break
			}
		}
		if !hasDashP {
			fields = append([]string{"mkdir", "-p"}, fields[1:]...)
			return strings.Join(fields, " ")
		}
	}
	return strings.Join(fields, " ")
}
