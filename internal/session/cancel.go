// ABOUTME: Per-agent cancellation: one run token per session, idempotent cancel
// ABOUTME: Run tokens also fence off writes from streams that were cancelled or superseded

package session

import (
	"context"
)

// runToken is the cancellation handle of one submission. A session holds at
// most one; stream goroutines present theirs with every write.
type runToken struct {
	cancel context.CancelFunc
}

// begin claims the agent's session for a new run. prepare runs under the same
// lock as the busy check, so two concurrent submits cannot both succeed.
func (r *Registry) begin(parent context.Context, agent Agent, prepare func(*Session)) (context.Context, *runToken, bool) {
	var (
		ctx context.Context
		tok *runToken
	)
	ok := r.update(agent, func(s *Session) bool {
		if s.IsBusy() {
			return false
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(parent)
		tok = &runToken{cancel: cancel}
		s.run = tok
		prepare(s)
		return true
	})
	return ctx, tok, ok
}

// Cancel aborts the agent's in-flight submission, if any. The partial turn and
// transient status lines are discarded immediately and the session is free
// for a new Submit. Cancelling an idle session is a no-op.
func (r *Registry) Cancel(agent Agent) bool {
	cancelled := r.update(agent, func(s *Session) bool {
		if s.run == nil {
			return false
		}
		s.run.cancel()
		discardRun(s)
		s.Phase = PhaseCancelled
		return true
	})
	if cancelled {
		r.logger.Info("submission cancelled", "agent", agent)
	}
	return cancelled
}

// CancelAll aborts every in-flight submission.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	agents := make([]Agent, 0, len(r.sessions))
	for a := range r.sessions {
		agents = append(agents, a)
	}
	r.mu.RUnlock()

	for _, a := range agents {
		r.Cancel(a)
	}
}

// mutateRun applies fn only while tok is still the session's current run.
func (r *Registry) mutateRun(agent Agent, tok *runToken, fn func(*Session)) bool {
	return r.update(agent, func(s *Session) bool {
		if s.run != tok {
			return false
		}
		fn(s)
		return true
	})
}

// finish applies fn as the last write of tok's run and releases the session.
func (r *Registry) finish(agent Agent, tok *runToken, fn func(*Session)) bool {
	return r.mutateRun(agent, tok, func(s *Session) {
		fn(s)
		s.run = nil
		tok.cancel()
	})
}

// discardRun drops everything a run left on the session and releases it.
func discardRun(s *Session) {
	s.InFlight = nil
	s.pruneStatusTurns()
	s.run = nil
}
