// Package session is the multi-agent streaming chat engine.
//
// # Overview
//
// A Registry keeps one Session per Agent for the lifetime of the process.
// Each session can have at most one submission in flight; sessions of
// different agents stream concurrently and independently. Only the selected
// agent's session is projected to the UI:
//
//	reg := session.NewRegistry(session.Options{Opener: client, Recorder: rec})
//	snaps, _ := reg.Projector().Subscribe(ctx)
//	reg.Submit(ctx, session.AgentIssues, session.Task{Text: "find issue X"})
//	reg.Select(session.AgentIssues) // shows partial progress immediately
//
// # Submission Lifecycle
//
//  1. Submit claims the session (no-op if busy), appends the user turn and a
//     streaming placeholder assistant turn
//  2. The Recorder binds a conversation and records the task
//  3. The stream is opened and each event is folded into the in-flight turn
//  4. The turn ends Completed, Failed, Cancelled or CredentialsRequired
//
// Phases of the in-flight turn:
//
//	Analyzing -> Calling -> Responding -> Finalizing -> Completed
//	    |           |           |                    -> Failed
//	    +-----------+-----------+--------------------> Cancelled
//	                                                  -> CredentialsRequired
//
// # Cancellation
//
// Cancel releases the session at once: the partial turn and status lines are
// discarded and a new Submit is accepted immediately. The cancelled stream may
// still be unwinding; its writes are fenced off by its run token.
//
// # Credentials
//
// A status event carrying credentials_required abandons the turn, withdraws
// the user turn it answered, and calls the CredentialHandler with the
// original task so the caller can resubmit once credentials are supplied.
package session
