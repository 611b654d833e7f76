package shellsession

import (
	"regexp"
	"strconv"
)

// Marker literals injected on the wire to the child shell to detect command
// completion and recover the exit code. These must never leak into
// user-visible output (spec §6).
const (
	ExitCodeMarker = "___SYNAPSE_EXIT_CODE___"
	EndMarker      = "___SYNAPSE_COMMAND_END___"
)

// markerLine matches the full "exit-code + end" marker line so it can be
// stripped from stdout once consumed.
var markerLine = regexp.MustCompile(ExitCodeMarker + `(\d+)` + EndMarker)

// frameCommand appends the completion-detection suffix to a user command.
// The suffix captures the shell's own $? before anything else can clobber
// it, then echoes both markers on one line.
func frameCommand(command string) string {
	return command + "\n__ec=$?; echo \"" + ExitCodeMarker + "${__ec}" + EndMarker + "\"\n"
}

// findCompletion scans buf for the marker line. If found, it returns the
// parsed exit code, the buffer with the marker line (and anything after
// the match start) stripped, and true. Output preceding the marker is
// returned untouched.
func findCompletion(buf string) (exitCode int, stripped string, ok bool) {
	loc := markerLine.FindStringSubmatchIndex(buf)
	if loc == nil {
		return 0, buf, false
	}

	code, err := strconv.Atoi(buf[loc[2]:loc[3]])
	if err != nil {
		return 0, buf, false
	}

	// Strip the marker line itself, and the trailing newline the echo
	// produced if present, but keep everything the command legitimately
	// wrote before it.
	before := buf[:loc[0]]
	for len(before) > 0 && (before[len(before)-1] == '\n' || before[len(before)-1] == '\r') {
		// Keep exactly one trailing newline consumed (the one the echo's
		// own stdin would have produced); anything past that is the
		// command's real output and must be preserved.
		before = before[:len(before)-1]
		break
	}

	return code, before, true
}
