// Package store persists conversations and their messages.
//
// # Implementations
//
//   - SQLiteStore: local database file using modernc.org/sqlite (no cgo)
//   - RemoteStore: REST client for a conversation service
//   - MockStore: in-memory store for tests and the development backend
//
// All three satisfy Store. Message ids are the chat turn ids, so every
// implementation rejects a repeated id with ErrDuplicateMessage; callers that
// retry treat that as success.
//
// # Schema
//
//	conversations(id, agent, title, created_at, updated_at)
//	messages(id, conversation_id, role, content, created_at)
//
// Timestamps are stored as fixed-width RFC3339 text in UTC. Messages are ordered by
// creation time with insertion order breaking ties.
package store
