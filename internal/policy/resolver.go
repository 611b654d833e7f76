package policy

import (
	"strings"
	"sync"
)

// Decision explains why a tool/base-command was allowed or denied.
type Decision struct {
	Allowed bool
	Tool    string
	Reason  string
}

// Resolver resolves tool access against a Policy by expanding groups and
// applying allow/deny rules, and separately tracks registered MCP servers
// and tool aliases. This is the backing implementation for the Permission
// Filter's include/exclude matching (spec §4.5) and for presenting a
// sub-agent its allowed tool set.
type Resolver struct {
	mu         sync.RWMutex
	groups     map[string][]string
	mcpServers map[string][]string // serverID -> tool names
	aliases    map[string]string   // alias -> canonical base command
}

// NewResolver creates a resolver seeded with the default groups.
func NewResolver() *Resolver {
	groups := make(map[string][]string, len(DefaultGroups))
	for k, v := range DefaultGroups {
		groups[k] = v
	}
	return &Resolver{
		groups:     groups,
		mcpServers: make(map[string][]string),
		aliases:    make(map[string]string),
	}
}

// AddGroup adds or replaces a custom tool group.
func (r *Resolver) AddGroup(name string, tools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[name] = tools
}

// RegisterMCPServer registers an MCP server's tool list, also exposing it
// as the group "mcp:<serverID>:" for convenience in Allow/Deny lists.
func (r *Resolver) RegisterMCPServer(serverID string, tools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcpServers[serverID] = tools
	r.groups["mcp:"+serverID+":"] = tools
}

// UnregisterMCPServer removes a previously registered MCP server.
func (r *Resolver) UnregisterMCPServer(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mcpServers, serverID)
	delete(r.groups, "mcp:"+serverID+":")
}

// RegisterAlias registers an alias resolving to a canonical base command.
func (r *Resolver) RegisterAlias(alias, canonical string) {
	alias = NormalizeTool(alias)
	canonical = NormalizeTool(canonical)
	if alias == "" || canonical == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = canonical
}

// CanonicalName resolves name through registered aliases.
func (r *Resolver) CanonicalName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalNameLocked(name)
}

func (r *Resolver) canonicalNameLocked(name string) string {
	normalized := NormalizeTool(name)
	if canonical, ok := r.aliases[normalized]; ok {
		return canonical
	}
	return normalized
}

// ExpandGroups expands group references (e.g. "group:fs") in items to
// their constituent tools, deduplicating as it goes. Non-group items pass
// through unchanged.
func (r *Resolver) ExpandGroups(items []string) []string {
	var result []string
	seen := make(map[string]bool)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, item := range items {
		normalized := r.canonicalNameLocked(item)
		if tools, ok := r.groups[normalized]; ok {
			for _, tool := range tools {
				if !seen[tool] {
					seen[tool] = true
					result = append(result, tool)
				}
			}
			continue
		}
		if !seen[normalized] {
			seen[normalized] = true
			result = append(result, normalized)
		}
	}
	return result
}

// IsAllowed reports whether toolName is allowed under policy.
func (r *Resolver) IsAllowed(policy *Policy, toolName string) bool {
	return r.Decide(policy, toolName).Allowed
}

// Decide returns an allow/deny decision with an explanatory reason.
func (r *Resolver) Decide(policy *Policy, toolName string) Decision {
	normalized := r.CanonicalName(toolName)
	decision := Decision{Tool: normalized, Reason: "no matching allow rule"}

	if policy == nil {
		decision.Reason = "no policy configured"
		return decision
	}

	denied := r.ExpandGroups(policy.Deny)
	for _, d := range denied {
		if matchPattern(d, normalized) {
			decision.Reason = "denied by rule: " + d
			return decision
		}
	}

	if policy.Profile == ProfileFull {
		decision.Allowed = true
		decision.Reason = "allowed by profile full"
		return decision
	}

	var allowed []string
	if policy.Profile != "" {
		if profilePolicy, ok := ProfileDefaults[policy.Profile]; ok && profilePolicy != nil {
			allowed = r.ExpandGroups(profilePolicy.Allow)
		}
	}
	allowed = append(allowed, r.ExpandGroups(policy.Allow)...)

	for _, a := range allowed {
		if matchPattern(a, normalized) {
			decision.Allowed = true
			decision.Reason = "allowed by rule: " + a
			return decision
		}
	}
	return decision
}

// matchPattern reuses the Handler Registry's own convention: a pattern
// ending in ":" is a prefix match, everything else is exact. This keeps
// the Permission Filter, the approval gate, and the registry reading
// patterns identically.
func matchPattern(pattern, toolName string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ":") {
		return strings.HasPrefix(toolName, pattern)
	}
	return pattern == toolName
}

// MatchPattern is the exported form of matchPattern, for callers outside
// this package (the Permission Filter, the approval gate) that need the
// same exact/prefix convention without duplicating it.
func MatchPattern(pattern, toolName string) bool {
	return matchPattern(pattern, toolName)
}

// FilterAllowed filters tools down to those allowed by policy.
func (r *Resolver) FilterAllowed(policy *Policy, tools []string) []string {
	var result []string
	for _, tool := range tools {
		if r.IsAllowed(policy, tool) {
			result = append(result, tool)
		}
	}
	return result
}

// Merge combines policies left to right: the last non-empty Profile wins,
// Allow/Deny accumulate.
func Merge(policies ...*Policy) *Policy {
	result := &Policy{}
	for _, p := range policies {
		if p == nil {
			continue
		}
		if p.Profile != "" {
			result.Profile = p.Profile
		}
		result.Allow = append(result.Allow, p.Allow...)
		result.Deny = append(result.Deny, p.Deny...)
	}
	return result
}
