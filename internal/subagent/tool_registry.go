// Package subagent implements the bounded nested agent loop (spec §4.6):
// an isolated tool set via createIsolatedCopy, the Permission Filter that
// wraps a Bash Tool with include/exclude rules, and the executor that
// drives a sub-agent's own tool-call loop with progress events and
// cancellation propagation.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/policy"
	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// Tool parameter limits, guarding against resource exhaustion from a
// pathological tool call rather than any expected legitimate input.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20
)

// Tool is anything a sub-agent (or the top-level agent) can call by name:
// the Bash Tool, the built-in verbs, MCP/skill extension handlers.
type Tool interface {
	Name() string
	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

// ToolRegistry is a thread-safe name -> Tool map.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by its name.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a registered tool by name, validating size limits first.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*models.ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &models.ToolResult{
			Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError: true,
		}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &models.ToolResult{
			Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &models.ToolResult{Content: "tool not found: " + name, IsError: true}, nil
	}
	return tool.Execute(ctx, params)
}

// Names returns every registered tool's name.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// FilterByPolicy returns the subset of tool names allowed under toolPolicy,
// used to present a sub-agent only the tools its profile grants it.
func (r *ToolRegistry) FilterByPolicy(resolver *policy.Resolver, toolPolicy *policy.Policy) []string {
	names := r.Names()
	if resolver == nil || toolPolicy == nil {
		return names
	}
	return resolver.FilterAllowed(toolPolicy, names)
}
