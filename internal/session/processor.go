// ABOUTME: Stream processor: folds one request's ordered events into a session
// ABOUTME: State machine Analyzing -> Calling/Responding -> Finalizing -> terminal phase

package session

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/agentdesk/internal/stream"
)

// fold accumulates one stream's contribution to the in-flight turn.
type fold struct {
	agent    Agent
	phase    Phase
	text     strings.Builder
	received int

	errMessage  string
	credMessage string

	artifact       *stream.Artifact
	artifactTurnID string
}

// apply folds ev into s. Terminal outcomes are only recorded on f here;
// the run loop finalizes them in a single write.
func (f *fold) apply(s *Session, ev stream.Event, newID func() string, r *Registry) {
	turn := s.InFlight

	switch e := ev.(type) {
	case stream.Thinking:
		// Narrative only stands in for the answer until text starts
		if f.text.Len() == 0 {
			turn.Content = e.Text
		}
		f.phase = PhaseAnalyzing

	case stream.ToolCall:
		turn.ToolCalls = append(turn.ToolCalls, ToolCallRecord{
			Name:   e.Name,
			Input:  e.Input,
			Status: ToolPending,
		})
		f.phase = PhaseCalling

	case stream.ToolResult:
		if !resolveToolCall(turn, e) {
			r.logger.Debug("tool result without pending call", "agent", f.agent, "tool", e.Name)
		}
		f.phase = PhaseResponding

	case stream.Text:
		f.text.WriteString(e.Text)
		turn.Content = f.text.String()
		f.phase = PhaseResponding

	case stream.Sources:
		sources := make([]SourceRecord, len(e.Sources))
		for i, src := range e.Sources {
			sources[i] = SourceRecord{
				Content:        src.Content,
				OriginRef:      src.OriginRef,
				RelevanceScore: src.RelevanceScore,
			}
		}
		turn.Sources = sources

	case stream.Artifact:
		if e.Complete() {
			a := e
			f.artifact = &a
			f.artifactTurnID = turn.ID
		}

	case stream.Status:
		if e.Status == stream.StatusCredentialsRequired {
			f.credMessage = e.Message
			f.phase = PhaseCredentialsRequired
			return
		}
		content := e.Message
		if content == "" {
			content = e.Status
		}
		s.Turns = append(s.Turns, ChatTurn{
			ID:         newID(),
			Role:       RoleStatus,
			Content:    content,
			CreatedAt:  r.now(),
			Agent:      f.agent,
			StatusKind: e.Status,
		})

	case stream.Error:
		f.errMessage = e.Message
		f.phase = PhaseFailed

	case stream.Done:
		s.pruneStatusTurns()
		f.phase = PhaseFinalizing
	}

	s.Phase = f.phase
}

// resolveToolCall settles the most recent pending call named like the result.
// Output containing "error" in any case marks the call failed; this can flag
// legitimate output that merely mentions the word.
func resolveToolCall(turn *ChatTurn, res stream.ToolResult) bool {
	for i := len(turn.ToolCalls) - 1; i >= 0; i-- {
		tc := &turn.ToolCalls[i]
		if tc.Name != res.Name || tc.Status != ToolPending {
			continue
		}
		tc.Output = res.Output
		if strings.Contains(strings.ToLower(res.Output), "error") {
			tc.Status = ToolError
		} else {
			tc.Status = ToolSuccess
		}
		return true
	}
	return false
}

// run drives one submission from conversation setup to a terminal phase.
func (r *Registry) run(ctx context.Context, agent Agent, tok *runToken, task Task, userTurnID, boundID string) Outcome {
	convID := r.bindConversation(ctx, agent, tok, boundID, task, userTurnID)
	if ctx.Err() != nil {
		return r.cancelled(agent, tok)
	}

	st, err := r.opener.Open(ctx, &stream.Request{
		Task:        task.Text,
		Agent:       string(agent),
		Language:    r.language,
		FileContext: task.FileContext,
	})
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(agent, tok)
		}
		return r.failed(agent, tok, err)
	}
	defer st.Close()

	f := &fold{agent: agent, phase: PhaseAnalyzing}

	for f.phase != PhaseFinalizing {
		ev, err := st.Next()
		if ctx.Err() != nil {
			return r.cancelled(agent, tok)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.failed(agent, tok, err)
		}

		f.received++
		applied := r.mutateRun(agent, tok, func(s *Session) {
			f.apply(s, ev, newTurnID, r)
		})
		if !applied {
			return Outcome{Agent: agent, Phase: PhaseCancelled}
		}

		if f.artifact != nil {
			if r.artifacts != nil {
				r.artifacts.PutArtifact(f.artifactTurnID, *f.artifact)
			}
			f.artifact = nil
		}

		switch f.phase {
		case PhaseFailed:
			return r.agentError(agent, tok, f.errMessage)
		case PhaseCredentialsRequired:
			return r.interruptForCredentials(agent, tok, userTurnID, task, f.credMessage)
		}
	}

	return r.complete(agent, tok, f, convID)
}

// bindConversation makes sure the session has a conversation and records the
// user's task against it before the stream opens. A run that was cancelled or
// superseded while the conversation was being created binds and records nothing.
func (r *Registry) bindConversation(ctx context.Context, agent Agent, tok *runToken, boundID string, task Task, userTurnID string) string {
	if r.recorder == nil {
		return boundID
	}

	convID := r.recorder.EnsureConversation(ctx, string(agent), boundID, task.Text)
	if convID == "" || ctx.Err() != nil {
		return ""
	}

	// RecordTurn never blocks, so it may run under the session lock
	owned := r.mutateRun(agent, tok, func(s *Session) {
		if s.ConversationID == "" {
			s.ConversationID = convID
		}
		r.recorder.RecordTurn(convID, userTurnID, string(RoleUser), task.Text)
	})
	if !owned {
		r.logger.Debug("run gone before conversation bound", "agent", agent, "conversation_id", convID)
		return ""
	}
	return convID
}

// complete finalizes the in-flight turn into history and persists its text.
func (r *Registry) complete(agent Agent, tok *runToken, f *fold, convID string) Outcome {
	text := f.text.String()
	var final ChatTurn

	ok := r.finish(agent, tok, func(s *Session) {
		s.pruneStatusTurns()
		final = s.InFlight.clone()
		final.IsStreaming = false
		final.Content = text
		if text == "" {
			final.Content = r.messages.NoResponse
		}
		s.Turns = append(s.Turns, final)
		s.InFlight = nil
		s.Phase = PhaseCompleted
		if s.ConversationID != "" {
			convID = s.ConversationID
		}
	})
	if !ok {
		return Outcome{Agent: agent, Phase: PhaseCancelled}
	}

	if f.received == 0 {
		r.logger.Warn("stream ended without events", "agent", agent, "turn_id", final.ID)
	}
	r.logger.Info("turn completed",
		"agent", agent,
		"turn_id", final.ID,
		"events", f.received,
		"tool_calls", len(final.ToolCalls))

	if text != "" && r.recorder != nil && convID != "" {
		r.recorder.RecordTurn(convID, final.ID, string(RoleAssistant), text)
	}

	return Outcome{Agent: agent, Phase: PhaseCompleted, Turn: &final}
}

// agentError finalizes the turn with the error the agent reported.
func (r *Registry) agentError(agent Agent, tok *runToken, message string) Outcome {
	return r.finalizeFailed(agent, tok, message, message, nil)
}

// failed finalizes the turn after a transport failure.
func (r *Registry) failed(agent Agent, tok *runToken, err error) Outcome {
	r.logger.Error("stream failed", "agent", agent, "error", err)
	return r.finalizeFailed(agent, tok, r.messages.Failure, err.Error(), err)
}

func (r *Registry) finalizeFailed(agent Agent, tok *runToken, content, errText string, err error) Outcome {
	var final ChatTurn
	ok := r.finish(agent, tok, func(s *Session) {
		s.pruneStatusTurns()
		final = s.InFlight.clone()
		final.IsStreaming = false
		final.Content = content
		final.Error = errText
		s.Turns = append(s.Turns, final)
		s.InFlight = nil
		s.Phase = PhaseFailed
	})
	if !ok {
		return Outcome{Agent: agent, Phase: PhaseCancelled}
	}
	return Outcome{Agent: agent, Phase: PhaseFailed, Turn: &final, Err: err}
}

// cancelled cleans up after a context cancellation. When Cancel already did
// the cleanup the run no longer owns the session and this is a no-op.
func (r *Registry) cancelled(agent Agent, tok *runToken) Outcome {
	r.finish(agent, tok, func(s *Session) {
		discardRun(s)
		s.Phase = PhaseCancelled
	})
	return Outcome{Agent: agent, Phase: PhaseCancelled}
}

func newTurnID() string {
	return uuid.New().String()
}
