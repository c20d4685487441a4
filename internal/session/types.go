// ABOUTME: Session data model: agents, chat turns, tool call and source records
// ABOUTME: Snapshot is the deep-copied read-only projection handed to the UI

package session

import (
	"fmt"
	"time"
)

// Agent identifies a backend reasoning agent. It partitions all session state.
type Agent string

const (
	AgentGeneral   Agent = "general"
	AgentKnowledge Agent = "kb"
	AgentIssues    Agent = "ims"
	AgentVision    Agent = "vision"
	AgentCode      Agent = "code"
	AgentPlanner   Agent = "planner"
)

// Agents lists every known agent in display order.
var Agents = []Agent{
	AgentGeneral,
	AgentKnowledge,
	AgentIssues,
	AgentVision,
	AgentCode,
	AgentPlanner,
}

// ParseAgent validates an agent name.
func ParseAgent(s string) (Agent, error) {
	for _, a := range Agents {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown agent %q", s)
}

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleStatus    Role = "status" // transient progress line, pruned at done
)

// ToolStatus tracks a tool invocation. Pending resolves exactly once.
type ToolStatus string

const (
	ToolPending ToolStatus = "pending"
	ToolSuccess ToolStatus = "success"
	ToolError   ToolStatus = "error"
)

// ToolCallRecord is one tool invocation within an assistant turn.
type ToolCallRecord struct {
	Name   string
	Input  map[string]any
	Output string
	Status ToolStatus
}

// SourceRecord is one retrieved document attached to an assistant turn.
type SourceRecord struct {
	Content        string
	OriginRef      string
	RelevanceScore float64
}

// ChatTurn is one message in a conversation.
type ChatTurn struct {
	ID          string
	Role        Role
	Content     string
	CreatedAt   time.Time
	Agent       Agent
	ToolCalls   []ToolCallRecord
	Sources     []SourceRecord
	IsStreaming bool
	Error       string
	StatusKind  string // status turns only: the raw status value
}

func (t ChatTurn) clone() ChatTurn {
	c := t
	if t.ToolCalls != nil {
		c.ToolCalls = make([]ToolCallRecord, len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			c.ToolCalls[i] = tc
			if tc.Input != nil {
				in := make(map[string]any, len(tc.Input))
				for k, v := range tc.Input {
					in[k] = v
				}
				c.ToolCalls[i].Input = in
			}
		}
	}
	if t.Sources != nil {
		c.Sources = append([]SourceRecord(nil), t.Sources...)
	}
	return c
}

// Phase is where a session's current submission is in its lifecycle.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseStarting            Phase = "starting"
	PhaseAnalyzing           Phase = "analyzing"
	PhaseCalling             Phase = "calling"
	PhaseResponding          Phase = "responding"
	PhaseFinalizing          Phase = "finalizing"
	PhaseCompleted           Phase = "completed"
	PhaseFailed              Phase = "failed"
	PhaseCancelled           Phase = "cancelled"
	PhaseCredentialsRequired Phase = "credentials_required"
)

// Terminal reports whether no further events are applied in this phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled, PhaseCredentialsRequired:
		return true
	}
	return false
}

// Session is all conversation and streaming state owned by one agent.
// Invariants: IsBusy() iff a cancel token is held; InFlight != nil implies IsBusy().
type Session struct {
	Turns          []ChatTurn
	InFlight       *ChatTurn
	ConversationID string
	Phase          Phase
	Credentials    CredentialState

	run *runToken
}

// IsBusy reports whether a submission is outstanding.
func (s *Session) IsBusy() bool {
	return s.run != nil
}

// pruneStatusTurns removes every transient status turn.
func (s *Session) pruneStatusTurns() {
	kept := s.Turns[:0]
	for _, t := range s.Turns {
		if t.Role != RoleStatus {
			kept = append(kept, t)
		}
	}
	// Zero the tail so dropped turns can be collected
	for i := len(kept); i < len(s.Turns); i++ {
		s.Turns[i] = ChatTurn{}
	}
	s.Turns = kept
}

// Snapshot is an immutable copy of one session for rendering.
type Snapshot struct {
	Agent          Agent
	Turns          []ChatTurn
	InFlight       *ChatTurn
	Busy           bool
	ConversationID string
	Phase          Phase
	Credentials    CredentialState
}

func (s *Session) snapshot(agent Agent) Snapshot {
	snap := Snapshot{
		Agent:          agent,
		Turns:          make([]ChatTurn, len(s.Turns)),
		Busy:           s.IsBusy(),
		ConversationID: s.ConversationID,
		Phase:          s.Phase,
		Credentials:    s.Credentials,
	}
	for i, t := range s.Turns {
		snap.Turns[i] = t.clone()
	}
	if s.InFlight != nil {
		inFlight := s.InFlight.clone()
		snap.InFlight = &inFlight
	}
	return snap
}

// Messages holds the user-visible texts the engine produces on its own.
type Messages struct {
	// Analyzing is the placeholder content of a fresh assistant turn.
	Analyzing string
	// NoResponse is the content of a turn whose stream produced no text.
	NoResponse string
	// Failure is the content of a turn that failed in transport.
	Failure string
}

// DefaultMessages returns the English defaults.
func DefaultMessages() Messages {
	return Messages{
		Analyzing:  "Analyzing your request...",
		NoResponse: "Failed to get a response from the agent.",
		Failure:    "Something went wrong while contacting the agent. Please try again.",
	}
}

func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.Analyzing == "" {
		m.Analyzing = d.Analyzing
	}
	if m.NoResponse == "" {
		m.NoResponse = d.NoResponse
	}
	if m.Failure == "" {
		m.Failure = d.Failure
	}
	return m
}
