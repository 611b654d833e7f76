package policy

import "strings"

// Profile is a pre-configured tool access level a sub-agent or Permission
// Filter can be granted (spec §4.5/§4.6).
type Profile string

const (
	ProfileMinimal Profile = "minimal"
	ProfileCoding   Profile = "coding"
	ProfileReadonly Profile = "readonly"
	ProfileFull     Profile = "full"
)

// Policy combines a profile with explicit allow/deny overrides. Deny
// always wins over allow.
type Policy struct {
	Profile Profile
	Allow   []string
	Deny    []string
}

// ToolAliases maps alternative spellings to the canonical base command
// used for pattern matching, registry lookup, and approval/permission
// checks (e.g. "bash" and "shell" both mean the NATIVE shell path).
var ToolAliases = map[string]string{
	"shell": "bash",
	"sh":    "bash",
	"todo":  "TodoWrite",
}

// NormalizeTool lowercases and resolves aliases, except for TodoWrite
// whose canonical spelling is itself mixed-case by convention.
func NormalizeTool(name string) string {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)
	if alias, ok := ToolAliases[lower]; ok {
		return alias
	}
	if lower == "todowrite" {
		return "TodoWrite"
	}
	return lower
}

// DefaultGroups are the built-in tool groups referenceable from a Policy's
// Allow/Deny lists as "group:<name>". They mirror the spec's fixed
// BUILTIN_VERB set (§4.3) plus the two extension families.
var DefaultGroups = map[string][]string{
	"group:fs": {"read", "write", "edit", "glob"},

	"group:skill": {
		"skill:load", "skill:list", "skill:info",
		"skill:import", "skill:rollback", "skill:delete",
	},

	"group:task":  {"task:"},
	"group:mcp":   {"mcp:"},
	"group:shell": {"bash"},

	"group:builtin": {
		"read", "write", "edit", "glob",
		"skill:load", "skill:list", "skill:info",
		"skill:import", "skill:rollback", "skill:delete",
		"command:search", "bash", "TodoWrite", "task:",
	},

	"group:readonly": {"read", "glob", "skill:list", "skill:info", "command:search"},
}

// ProfileDefaults defines the default allow lists for each profile.
var ProfileDefaults = map[Profile]*Policy{
	ProfileMinimal:  {Allow: []string{"read", "glob"}},
	ProfileReadonly: {Allow: []string{"group:readonly"}},
	ProfileCoding:   {Allow: []string{"group:builtin", "group:mcp"}},
	ProfileFull:     {},
}
