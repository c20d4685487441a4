// ABOUTME: Registry owns one isolated Session per agent and projects the selected one
// ABOUTME: Entry point for submitting tasks; background agents keep streaming unseen

package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentdesk/internal/stream"
)

// Recorder is what the registry needs from the persistence layer.
// Both methods must be best-effort: they never fail the chat flow.
type Recorder interface {
	// EnsureConversation returns boundID if set, otherwise creates a
	// conversation for task and returns its id ("" on failure).
	EnsureConversation(ctx context.Context, agent, boundID, task string) string
	// RecordTurn appends a turn to a conversation without blocking.
	RecordTurn(conversationID, turnID, role, content string)
}

// ArtifactSink receives side artifacts produced while a turn streams.
type ArtifactSink interface {
	PutArtifact(turnID string, artifact stream.Artifact)
}

// Task is one user submission.
type Task struct {
	Text        string
	FileContext string
}

// Outcome is the terminal result of one submission.
type Outcome struct {
	Agent Agent
	Phase Phase
	// Turn is the finalized assistant turn for Completed and Failed.
	Turn *ChatTurn
	// Err is the transport error behind a Failed outcome, if any.
	Err error
}

// Options configures a Registry.
type Options struct {
	Opener      stream.Opener
	Recorder    Recorder          // optional
	Credentials CredentialHandler // optional
	Artifacts   ArtifactSink      // optional
	Projector   *Projector        // optional
	Language    string
	Messages    Messages
	Selected    Agent
	Logger      *slog.Logger
}

type entry struct {
	mu sync.Mutex
	s  Session
}

// Registry maps agents to their sessions. Each session is locked on its own;
// the registry lock only guards the map and the selected agent.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Agent]*entry
	selected Agent

	opener      stream.Opener
	recorder    Recorder
	credentials CredentialHandler
	artifacts   ArtifactSink
	projector   *Projector
	language    string
	messages    Messages
	logger      *slog.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// NewRegistry creates a registry. Opener is required.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	projector := opts.Projector
	if projector == nil {
		projector = NewProjector(logger)
	}
	selected := opts.Selected
	if selected == "" {
		selected = AgentGeneral
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}

	return &Registry{
		sessions:    make(map[Agent]*entry),
		selected:    selected,
		opener:      opts.Opener,
		recorder:    opts.Recorder,
		credentials: opts.Credentials,
		artifacts:   opts.Artifacts,
		projector:   projector,
		language:    language,
		messages:    opts.Messages.withDefaults(),
		logger:      logger.With("component", "session"),
		now:         time.Now,
	}
}

// Projector returns the projector snapshots are published on.
func (r *Registry) Projector() *Projector {
	return r.projector
}

// entry returns the agent's entry, creating the zero session on first access.
func (r *Registry) entry(agent Agent) *entry {
	r.mu.RLock()
	e, ok := r.sessions[agent]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[agent]; ok {
		return e
	}
	e = &entry{s: Session{Phase: PhaseIdle}}
	r.sessions[agent] = e
	return e
}

// Session returns a snapshot of the agent's current session.
func (r *Registry) Session(agent Agent) Snapshot {
	e := r.entry(agent)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.snapshot(agent)
}

// Mutate applies fn to the agent's session. A snapshot is published only when
// agent is the selected one; other sessions change silently.
func (r *Registry) Mutate(agent Agent, fn func(*Session)) {
	r.update(agent, func(s *Session) bool {
		fn(s)
		return true
	})
}

// update applies fn under the session lock and publishes when fn reports a
// change to the selected session. Callbacks must not call back into r.
func (r *Registry) update(agent Agent, fn func(*Session) bool) bool {
	e := r.entry(agent)

	r.mu.RLock()
	defer r.mu.RUnlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if !fn(&e.s) {
		return false
	}
	if agent == r.selected {
		r.projector.Publish(e.s.snapshot(agent))
	}
	return true
}

// Selected returns the UI-visible agent.
func (r *Registry) Selected() Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Select makes agent UI-visible and immediately publishes its current state,
// including any partial progress of a stream that ran in the background.
func (r *Registry) Select(agent Agent) {
	e := r.entry(agent)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = agent

	e.mu.Lock()
	snap := e.s.snapshot(agent)
	e.mu.Unlock()

	r.projector.Publish(snap)
	r.logger.Debug("agent selected", "agent", agent)
}

// Submit starts streaming task to agent. It returns false without touching
// the session when the agent already has a submission in flight or the task
// is blank. The returned channel yields exactly one Outcome, then closes.
func (r *Registry) Submit(ctx context.Context, agent Agent, task Task) (<-chan Outcome, bool) {
	if strings.TrimSpace(task.Text) == "" {
		return nil, false
	}

	userTurn := ChatTurn{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   task.Text,
		CreatedAt: r.now(),
		Agent:     agent,
	}
	placeholder := ChatTurn{
		ID:          uuid.New().String(),
		Role:        RoleAssistant,
		Content:     r.messages.Analyzing,
		CreatedAt:   r.now(),
		Agent:       agent,
		IsStreaming: true,
	}

	var boundID string
	runCtx, tok, ok := r.begin(ctx, agent, func(s *Session) {
		boundID = s.ConversationID
		s.Turns = append(s.Turns, userTurn)
		s.InFlight = &placeholder
		s.Credentials = CredentialsNormal
		s.Phase = PhaseAnalyzing
	})
	if !ok {
		r.logger.Debug("submit ignored, agent busy", "agent", agent)
		return nil, false
	}

	r.logger.Info("task submitted", "agent", agent, "turn_id", placeholder.ID)

	out := make(chan Outcome, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(out)
		out <- r.run(runCtx, agent, tok, task, userTurn.ID, boundID)
	}()
	return out, true
}

// Wait blocks until every submitted stream has reached a terminal state.
func (r *Registry) Wait() {
	r.wg.Wait()
}
