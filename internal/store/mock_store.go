// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests and the development backend to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	messages      map[string][]*Message    // keyed by conversation ID
	messageIDs    map[string]bool
	seq           int
	failWith      error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		messageIDs:    make(map[string]bool),
	}
}

// SetFailure makes every subsequent write return err. nil restores writes.
func (m *MockStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// tick returns a strictly increasing timestamp so ordering is deterministic.
func (m *MockStore) tick() time.Time {
	m.seq++
	return time.Unix(0, 0).UTC().Add(time.Duration(m.seq) * time.Millisecond)
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, agent, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return "", m.failWith
	}

	now := m.tick()
	conv := &Conversation{
		ID:        uuid.New().String(),
		Agent:     agent,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[conv.ID] = conv
	return conv.ID, nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	result.MessageCount = len(m.messages[id])
	return &result, nil
}

// ListConversations returns conversations newest first.
func (m *MockStore) ListConversations(ctx context.Context, agent string, limit int) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, c := range m.conversations {
		if agent != "" && c.Agent != agent {
			continue
		}
		conv := *c
		conv.MessageCount = len(m.messages[c.ID])
		result = append(result, &conv)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	if limit = clampLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AddMessage appends a message to a conversation.
func (m *MockStore) AddMessage(ctx context.Context, conversationID string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if m.messageIDs[msg.ID] {
		return ErrDuplicateMessage
	}

	now := m.tick()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.ConversationID = conversationID

	stored := *msg
	m.messages[conversationID] = append(m.messages[conversationID], &stored)
	m.messageIDs[msg.ID] = true
	conv.UpdatedAt = now
	return nil
}

// GetMessages returns messages in insertion order.
func (m *MockStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	result := make([]*Message, len(msgs))
	for i, msg := range msgs {
		cp := *msg
		result[i] = &cp
	}
	return result, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RemoteStore)(nil)
)
