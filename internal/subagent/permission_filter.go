package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/policy"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/router"
	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// bashToolParams is the subset of the Bash Tool's call parameters the
// filter needs to extract a base command; any additional fields are
// passed through to the wrapped tool untouched.
type bashToolParams struct {
	Command string `json:"command"`
}

// PermissionFilter wraps a Tool (normally a fresh Bash Tool from
// createIsolatedCopy) with an include/exclude policy, so a sub-agent type
// can be handed a restricted view of the tool surface without the wrapped
// tool or the model being able to tell it's restricted.
type PermissionFilter struct {
	wrapped   Tool
	include   []string
	exclude   []string
	agentType string
}

// NewPermissionFilter builds a filter around wrapped. An empty include
// list means "reject every call" (pure-reasoning mode); a nil include
// list means "no include restriction, fall through to exclude".
func NewPermissionFilter(wrapped Tool, include, exclude []string, agentType string) *PermissionFilter {
	return &PermissionFilter{wrapped: wrapped, include: include, exclude: exclude, agentType: agentType}
}

// Name implements Tool, preserving the wrapped tool's name so the model
// cannot distinguish a filtered tool from an unfiltered one.
func (f *PermissionFilter) Name() string {
	return f.wrapped.Name()
}

// Execute implements Tool: rejects empty-include pure-reasoning mode
// outright, then checks exclude patterns against the call's base command,
// then delegates.
func (f *PermissionFilter) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	if f.include != nil && len(f.include) == 0 {
		return f.refusal(""), nil
	}

	baseCmd := f.extractBaseCommand(params)

	for _, pattern := range f.exclude {
		if pattern != "" && policy.MatchPattern(pattern, baseCmd) {
			return f.refusal(baseCmd), nil
		}
	}

	return f.wrapped.Execute(ctx, params)
}

func (f *PermissionFilter) extractBaseCommand(params json.RawMessage) string {
	var p bashToolParams
	if err := json.Unmarshal(params, &p); err != nil || p.Command == "" {
		return ""
	}
	return router.BaseCommand(p.Command)
}

// refusal renders a policy-error-shaped result: it must read like a normal
// tool failure, not like an internal restriction leaking through.
func (f *PermissionFilter) refusal(baseCmd string) *models.ToolResult {
	msg := fmt.Sprintf("agent type %q is not permitted to run this command", f.agentType)
	if baseCmd != "" {
		msg = fmt.Sprintf("agent type %q is not permitted to run %q", f.agentType, baseCmd)
	}
	return &models.ToolResult{Content: msg, IsError: true}
}
