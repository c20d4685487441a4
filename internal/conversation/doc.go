// Package conversation persists chat sessions without ever blocking them.
//
// # Recorder
//
// The Recorder sits between the session engine and a store.Store:
//
//	rec := conversation.New(st, conversation.Options{WriteTimeout: 5 * time.Second}, logger)
//	defer rec.Close()
//
// EnsureConversation runs on the submitting stream's goroutine and creates a
// conversation titled after the first task of a session. RecordTurn only
// enqueues; a single worker applies writes in arrival order, so the user turn
// of a submission always lands before its assistant turn.
//
// # Failure Policy
//
// Persistence is best effort. A failed write is logged and dropped, a full
// queue drops the newest write, and each write gets its own timeout detached
// from the chat request. Turn ids are claimed in a dedupe.Guard so a turn
// recorded twice is written once; a store reporting ErrDuplicateMessage is
// treated as success.
package conversation
