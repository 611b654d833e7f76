package router

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrWriteGuardBlocked is returned when a NATIVE command looks like a
// file-modifying shell idiom the built-in write/edit verbs should be used
// for instead.
type ErrWriteGuardBlocked struct {
	Command string
	Reason  string
}

func (e *ErrWriteGuardBlocked) Error() string {
	return fmt.Sprintf("write-guard: blocked %q: %s", e.Command, e.Reason)
}

// writeGuardRules recognize shell idioms that modify files directly
// instead of going through the write/edit built-in verbs. These are
// fixed, not configurable: the point is to force a structured edit path
// rather than freeform redirection the router cannot diff or undo.
var writeGuardRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{"redirect to file", regexp.MustCompile(`>\s*[^&|]`)},
	{"heredoc", regexp.MustCompile(`<<[-~]?\s*['"]?\w+`)},
	{"sed in-place edit", regexp.MustCompile(`\bsed\b[^|;]*\s-i\b`)},
	{"sed output redirect", regexp.MustCompile(`\bsed\b[^|;]*>\s*[^&|]`)},
}

// unwrapBashC unwraps one level of `bash -c '...'` (or `sh -c "..."`) so
// the write-guard can inspect the command actually being run, per spec
// §4.3 step 4 ("unwrapping of one level of bash ... is performed before
// the check").
var bashCPattern = regexp.MustCompile(`^\s*(?:/bin/)?(?:bash|sh)\s+-c\s+(['"])(.*)\1\s*$`)

func unwrapBashC(command string) string {
	m := bashCPattern.FindStringSubmatch(command)
	if m == nil {
		return command
	}
	return m[2]
}

// checkWriteGuard returns a non-nil error if command looks like a
// file-modifying shell idiom that should go through write/edit instead.
func checkWriteGuard(command string) error {
	inspected := unwrapBashC(command)

	for _, rule := range writeGuardRules {
		if rule.name == "redirect to file" && looksLikeRedirectNoise(inspected) {
			continue
		}
		if rule.re.MatchString(inspected) {
			return &ErrWriteGuardBlocked{
				Command: command,
				Reason: fmt.Sprintf(
					"this looks like a %s; use the write or edit tool to modify files instead of shell redirection",
					rule.name,
				),
			}
		}
	}
	return nil
}

// looksLikeRedirectNoise guards the common case of `2>&1`/`>&2` stream
// duplication, which the blunt "> " rule above would otherwise flag
// along with genuine file redirection. Kept separate and simple rather
// than folded into the regex so the false-positive carve-out stays easy
// to audit.
func looksLikeRedirectNoise(command string) bool {
	trimmed := strings.TrimSpace(command)
	return strings.Contains(trimmed, ">&") && !strings.Contains(trimmed, "> ")
}
