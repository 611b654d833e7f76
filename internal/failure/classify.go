// Package failure normalizes raw command/tool failures into the closed
// taxonomy the rest of the core reasons about: whether a failure looks like
// a missing tool, a usage mistake, or a genuine execution error, and whether
// it should count toward an outer consecutive-failure circuit breaker.
package failure

import "strings"

// Category is the closed taxonomy a failure is classified into.
type Category string

const (
	// CommandNotFound means the shell or handler could not resolve the
	// requested tool/command at all.
	CommandNotFound Category = "CommandNotFound"

	// InvalidUsage means the tool was found but was called with bad
	// arguments.
	InvalidUsage Category = "InvalidUsage"

	// ExecutionError means the tool ran and failed for domain reasons
	// unrelated to how it was invoked.
	ExecutionError Category = "ExecutionError"
)

// commandNotFoundKeywords and usageKeywords are non-overlapping by
// construction: classify checks CommandNotFound first, so any string
// matching both sets is reported as CommandNotFound. No known keyword
// appears in both lists.
var commandNotFoundKeywords = []string{
	"unknown tool",
	"command not found",
	"unknown command",
}

var usageKeywords = []string{
	"usage:",
	"requires a number argument",
	"must be a non-negative number",
	"unexpected argument:",
	"invalid parameters",
}

// Classify maps raw stderr text to exactly one Category.
func Classify(stderr string) Category {
	lower := strings.ToLower(stderr)

	for _, kw := range commandNotFoundKeywords {
		if strings.Contains(lower, kw) {
			return CommandNotFound
		}
	}

	for _, kw := range usageKeywords {
		if strings.Contains(lower, kw) {
			return InvalidUsage
		}
	}

	return ExecutionError
}

// ShouldAttachSelfDescription reports whether the "--help then retry" hint
// should be appended to the failure output. Execution errors are domain
// failures, not usage mistakes, so appending a usage hint there is noise.
func ShouldAttachSelfDescription(cat Category) bool {
	return cat != ExecutionError
}

// ShouldCountFailure reports whether this category should count toward an
// outer consecutive-failure circuit breaker. Execution errors do not count:
// a flaky network call or a domain failure is not evidence the model is
// stuck misusing the tool surface.
func ShouldCountFailure(cat Category) bool {
	return cat == CommandNotFound || cat == InvalidUsage
}

// Hint renders the machine-targeted self-correction hint for baseCommand.
func Hint(baseCommand string) string {
	return "\n\nSelf-description: The command failed. Next step: run `Bash(command=\"" +
		baseCommand + " --help\")` to learn usage, then retry with valid arguments."
}
