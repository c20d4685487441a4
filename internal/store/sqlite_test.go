// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation CRUD, message persistence, ordering and limiting

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "agentdesk.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "agentdesk.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	id, err := s.CreateConversation(ctx, "kb", "first")
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(ctx, id, &Message{ID: "m1", Role: RoleUser, Content: "hi"}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first", conv.Title)
	assert.Equal(t, 1, conv.MessageCount)
}

func TestSQLiteStore_CreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx, "ims", "find issue X")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "ims", conv.Agent)
	assert.Equal(t, "find issue X", conv.Title)
	assert.Zero(t, conv.MessageCount)
	assert.False(t, conv.CreatedAt.IsZero())
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)
}

func TestSQLiteStore_GetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_AddAndGetMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx, "ims", "find issue X")
	require.NoError(t, err)

	require.NoError(t, s.AddMessage(ctx, id, &Message{ID: "turn-1", Role: RoleUser, Content: "find issue X"}))
	require.NoError(t, s.AddMessage(ctx, id, &Message{ID: "turn-2", Role: RoleAssistant, Content: "Found 3 matching issues."}))

	msgs, err := s.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "turn-1", msgs[0].ID)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, id, msgs[0].ConversationID)
	assert.Equal(t, "Found 3 matching issues.", msgs[1].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
	assert.False(t, conv.UpdatedAt.Before(conv.CreatedAt))
}

func TestSQLiteStore_AddMessage_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AddMessage(ctx, "missing", &Message{ID: "m", Role: RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := s.CreateConversation(ctx, "kb", "t")
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(ctx, id, &Message{ID: "dup", Role: RoleUser, Content: "x"}))

	err = s.AddMessage(ctx, id, &Message{ID: "dup", Role: RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	msgs, err := s.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSQLiteStore_MessagesSameTimestampKeepInsertOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.CreateConversation(ctx, "code", "t")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddMessage(ctx, id, &Message{
			ID:        fmt.Sprintf("m%d", i),
			Role:      RoleUser,
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: at,
		}))
	}

	msgs, err := s.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.ID)
		assert.True(t, m.CreatedAt.Equal(at))
	}
}

func TestSQLiteStore_GetMessagesLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.CreateConversation(ctx, "code", "t")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AddMessage(ctx, id, &Message{
			ID:        fmt.Sprintf("m%d", i),
			Role:      RoleAssistant,
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	msgs, err := s.GetMessages(ctx, id, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m7", msgs[0].ID)
	assert.Equal(t, "m8", msgs[1].ID)
	assert.Equal(t, "m9", msgs[2].ID)
}

func TestSQLiteStore_ListConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	kb1, err := s.CreateConversation(ctx, "kb", "kb one")
	require.NoError(t, err)
	ims, err := s.CreateConversation(ctx, "ims", "ims one")
	require.NoError(t, err)
	kb2, err := s.CreateConversation(ctx, "kb", "kb two")
	require.NoError(t, err)

	// Activity on kb1 moves it to the front
	require.NoError(t, s.AddMessage(ctx, kb1, &Message{ID: "m", Role: RoleUser, Content: "again"}))

	all, err := s.ListConversations(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, kb1, all[0].ID)
	assert.Equal(t, 1, all[0].MessageCount)
	assert.Equal(t, kb2, all[1].ID)
	assert.Equal(t, ims, all[2].ID)

	kbOnly, err := s.ListConversations(ctx, "kb", 0)
	require.NoError(t, err)
	require.Len(t, kbOnly, 2)
	for _, c := range kbOnly {
		assert.Equal(t, "kb", c.Agent)
	}

	limited, err := s.ListConversations(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_ConcurrentWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx, "general", "t")
	require.NoError(t, err)

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			errs <- s.AddMessage(ctx, id, &Message{ID: fmt.Sprintf("m%d", i), Role: RoleUser, Content: "x"})
		}()
	}
	for i := 0; i < 20; i++ {
		assert.NoError(t, <-errs)
	}

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 20, conv.MessageCount)
}
