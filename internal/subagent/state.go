package subagent

import (
	"sync"
	"time"

	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// DefaultRingSize is SYNAPSE_SUBAGENT_RING_SIZE's default: how many recent
// tool call IDs a running sub-agent remembers, bounding memory for a
// long-running nested agent rather than retaining every id it has ever
// issued.
const DefaultRingSize = 5

// ToolState is the last known state of one tool call a sub-agent issued.
type ToolState struct {
	Command string
	Success *bool
	Output  string
}

// State is the bookkeeping record for one running sub-agent: identity,
// timing, and a fixed-size ring of its most recent tool call ids (spec §3
// "Sub-agent state"). The ring exists so a long-running nested agent's
// memory is bounded instead of growing with every tool call it ever makes.
type State struct {
	mu sync.Mutex

	ID          string
	Type        string
	Description string
	StartTime   time.Time
	ToolCount   int

	toolIDs    []string
	ring       []string
	ringSize   int
	ringNext   int
	toolStates map[string]ToolState

	pendingProgress []models.ProgressEvent
}

// NewState constructs a State with the given ring size (DefaultRingSize if
// ringSize <= 0).
func NewState(id, typeName, description string, ringSize int) *State {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &State{
		ID:          id,
		Type:        typeName,
		Description: description,
		StartTime:   time.Now(),
		ringSize:    ringSize,
		ring:        make([]string, 0, ringSize),
		toolStates:  make(map[string]ToolState),
	}
}

// RecordToolStart appends toolID to the full history and the bounded
// ring, and seeds its ToolState.
func (s *State) RecordToolStart(toolID, command string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ToolCount++
	s.toolIDs = append(s.toolIDs, toolID)
	s.pushRing(toolID)
	s.toolStates[toolID] = ToolState{Command: command}
}

// RecordToolEnd updates a tool's recorded outcome once it completes.
func (s *State) RecordToolEnd(toolID string, success bool, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.toolStates[toolID]
	if !ok {
		st = ToolState{}
	}
	st.Success = &success
	st.Output = output
	s.toolStates[toolID] = st
}

// pushRing is an overwrite-oldest ring insert; callers must hold s.mu.
func (s *State) pushRing(toolID string) {
	if len(s.ring) < s.ringSize {
		s.ring = append(s.ring, toolID)
		return
	}
	s.ring[s.ringNext] = toolID
	s.ringNext = (s.ringNext + 1) % s.ringSize
}

// RecentToolIDs returns the ring's contents in insertion order (oldest
// first among those still retained).
func (s *State) RecentToolIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ring) < s.ringSize {
		out := make([]string, len(s.ring))
		copy(out, s.ring)
		return out
	}
	out := make([]string, 0, s.ringSize)
	for i := 0; i < s.ringSize; i++ {
		out = append(out, s.ring[(s.ringNext+i)%s.ringSize])
	}
	return out
}

// ToolIDs returns every tool id this sub-agent has issued, unbounded.
func (s *State) ToolIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.toolIDs))
	copy(out, s.toolIDs)
	return out
}

// ToolStateFor returns the recorded state for toolID, if any.
func (s *State) ToolStateFor(toolID string) (ToolState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.toolStates[toolID]
	return st, ok
}

// QueueProgressEvent buffers a progress event for later draining, used
// when a consumer isn't ready to receive events synchronously.
func (s *State) QueueProgressEvent(e models.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingProgress = append(s.pendingProgress, e)
}

// DrainProgressEvents returns and clears the buffered progress events.
func (s *State) DrainProgressEvents() []models.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pendingProgress
	s.pendingProgress = nil
	return out
}
