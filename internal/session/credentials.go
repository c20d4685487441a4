// ABOUTME: Credential interrupt handling for agents that need out-of-band login
// ABOUTME: Rolls back the interrupted submission and hands its task to a prompt handler

package session

// CredentialState tracks the credential interrupt of one session.
type CredentialState string

const (
	CredentialsNormal    CredentialState = "normal"
	CredentialsRequired  CredentialState = "required"
	CredentialsAbandoned CredentialState = "abandoned"
)

// CredentialPrompt asks the caller to collect credentials for an agent.
// Task and FileContext are the interrupted submission, ready to resubmit.
type CredentialPrompt struct {
	Agent       Agent
	Task        string
	FileContext string
	Message     string
}

// CredentialHandler triggers the "collect credentials" interaction. It is
// called from the stream goroutine and must not block for long.
type CredentialHandler interface {
	RequestCredentials(prompt CredentialPrompt)
}

// CredentialHandlerFunc adapts a function to CredentialHandler.
type CredentialHandlerFunc func(CredentialPrompt)

// RequestCredentials calls f(prompt).
func (f CredentialHandlerFunc) RequestCredentials(prompt CredentialPrompt) {
	f(prompt)
}

// interruptForCredentials ends tok's run: the in-flight turn is discarded
// unfinalized and the user turn that started it is withdrawn, leaving the turn
// list as it was before Submit.
func (r *Registry) interruptForCredentials(agent Agent, tok *runToken, userTurnID string, task Task, message string) Outcome {
	ok := r.finish(agent, tok, func(s *Session) {
		s.InFlight = nil
		s.pruneStatusTurns()
		for i, t := range s.Turns {
			if t.ID == userTurnID {
				s.Turns = append(s.Turns[:i], s.Turns[i+1:]...)
				break
			}
		}
		s.Credentials = CredentialsRequired
		s.Phase = PhaseCredentialsRequired
	})
	if !ok {
		// Cancelled while the sentinel was in flight; the cancel wins
		return Outcome{Agent: agent, Phase: PhaseCancelled}
	}

	r.logger.Info("agent requires credentials", "agent", agent)

	if r.credentials != nil {
		r.credentials.RequestCredentials(CredentialPrompt{
			Agent:       agent,
			Task:        task.Text,
			FileContext: task.FileContext,
			Message:     message,
		})
	} else {
		r.logger.Warn("no credential handler configured, dropping prompt", "agent", agent)
	}

	return Outcome{Agent: agent, Phase: PhaseCredentialsRequired}
}

// ResolveCredentials records how the credential interaction ended. supplied
// returns the session to normal; otherwise the interrupt is abandoned. The
// caller resubmits the task itself; nothing is retried automatically.
func (r *Registry) ResolveCredentials(agent Agent, supplied bool) {
	r.Mutate(agent, func(s *Session) {
		if s.Credentials != CredentialsRequired {
			return
		}
		if supplied {
			s.Credentials = CredentialsNormal
		} else {
			s.Credentials = CredentialsAbandoned
		}
	})
}
