package models

// ProgressEvent is the host-facing progress stream emitted by the sub-agent
// executor and its async dispatcher (see spec §6 "Progress event stream"). The
// renderer/host consumes these; ordering is only guaranteed per sub-agent ID.
type ProgressEvent struct {
	Kind ProgressEventKind `json:"kind"`

	// ToolStart / ToolEnd fields.
	ID       string `json:"id,omitempty"`
	Depth    int    `json:"depth,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Command  string `json:"command,omitempty"`
	Success  bool   `json:"success,omitempty"`
	Output   string `json:"output,omitempty"`

	// SubAgent fields.
	SubAgentID          string `json:"sub_agent_id,omitempty"`
	SubAgentType        string `json:"sub_agent_type,omitempty"`
	SubAgentDescription string `json:"sub_agent_description,omitempty"`
	ToolCount           int    `json:"tool_count,omitempty"`
	DurationMs          int64  `json:"duration_ms,omitempty"`
	Error               string `json:"error,omitempty"`
}

// ProgressEventKind enumerates the event shapes spec §6 defines.
type ProgressEventKind string

const (
	ProgressToolStart         ProgressEventKind = "ToolStart"
	ProgressToolEnd           ProgressEventKind = "ToolEnd"
	ProgressSubAgentStart     ProgressEventKind = "SubAgentStart"
	ProgressSubAgentToolStart ProgressEventKind = "SubAgentToolStart"
	ProgressSubAgentToolEnd   ProgressEventKind = "SubAgentToolEnd"
	ProgressSubAgentComplete  ProgressEventKind = "SubAgentComplete"
)

// ProgressSink receives progress events. Implementations (an external
// renderer) must not block the emitting goroutine for long: progress
// callbacks are invoked synchronously on the goroutine that produced the
// event, with no buffering in between.
type ProgressSink interface {
	Emit(ProgressEvent)
}

// ProgressSinkFunc adapts a function to a ProgressSink.
type ProgressSinkFunc func(ProgressEvent)

// Emit implements ProgressSink.
func (f ProgressSinkFunc) Emit(e ProgressEvent) {
	if f != nil {
		f(e)
	}
}

// NoopProgressSink discards all events.
var NoopProgressSink ProgressSink = ProgressSinkFunc(func(ProgressEvent) {})
