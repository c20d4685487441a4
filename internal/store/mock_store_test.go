// ABOUTME: Tests for MockStore to ensure it mirrors SQLiteStore semantics
// ABOUTME: Tests rely on it standing in for the real store

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_ConversationLifecycle(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	id, err := m.CreateConversation(ctx, "kb", "question")
	require.NoError(t, err)

	require.NoError(t, m.AddMessage(ctx, id, &Message{ID: "u", Role: RoleUser, Content: "q"}))
	require.NoError(t, m.AddMessage(ctx, id, &Message{ID: "a", Role: RoleAssistant, Content: "answer"}))

	conv, err := m.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "kb", conv.Agent)
	assert.Equal(t, 2, conv.MessageCount)
	assert.True(t, conv.UpdatedAt.After(conv.CreatedAt))

	msgs, err := m.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "u", msgs[0].ID)
	assert.Equal(t, "a", msgs[1].ID)

	// Returned messages are copies
	msgs[0].Content = "changed"
	again, _ := m.GetMessages(ctx, id, 1)
	require.Len(t, again, 1)
	assert.Equal(t, "a", again[0].ID)
}

func TestMockStore_Errors(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	_, err := m.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.AddMessage(ctx, "missing", &Message{Role: RoleUser}), ErrNotFound)

	id, _ := m.CreateConversation(ctx, "kb", "t")
	require.NoError(t, m.AddMessage(ctx, id, &Message{ID: "x", Role: RoleUser}))
	assert.ErrorIs(t, m.AddMessage(ctx, id, &Message{ID: "x", Role: RoleUser}), ErrDuplicateMessage)

	boom := errors.New("disk full")
	m.SetFailure(boom)
	_, err = m.CreateConversation(ctx, "kb", "t")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.AddMessage(ctx, id, &Message{ID: "y", Role: RoleUser}), boom)

	m.SetFailure(nil)
	assert.NoError(t, m.AddMessage(ctx, id, &Message{ID: "y", Role: RoleUser}))
}

func TestMockStore_ListNewestFirst(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.CreateConversation(ctx, "code", fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	other, _ := m.CreateConversation(ctx, "kb", "other")

	convs, err := m.ListConversations(ctx, "code", 0)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, ids[2], convs[0].ID)
	assert.Equal(t, ids[0], convs[2].ID)

	all, err := m.ListConversations(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, other, all[0].ID)
}
