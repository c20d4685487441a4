// ABOUTME: Store interface and data types for conversation persistence
// ABOUTME: Conversations group the user and assistant turns of one agent session

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateMessage is returned when a message id was already stored
var ErrDuplicateMessage = errors.New("message already exists")

// Message roles as persisted
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is the persisted record of one agent session's history
type Conversation struct {
	ID           string    `json:"id"`
	Agent        string    `json:"agent_type"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is one persisted turn. ID is the chat turn id, which makes
// re-delivery of the same turn detectable.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store defines conversation persistence
type Store interface {
	// CreateConversation creates a conversation and returns its id
	CreateConversation(ctx context.Context, agent, title string) (string, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns conversations newest first. An empty agent
	// lists all agents.
	ListConversations(ctx context.Context, agent string, limit int) ([]*Conversation, error)

	// AddMessage appends msg to a conversation. Returns ErrNotFound for an
	// unknown conversation and ErrDuplicateMessage for a repeated id.
	AddMessage(ctx context.Context, conversationID string, msg *Message) error
	// GetMessages returns the most recent limit messages oldest first.
	// limit <= 0 returns all of them.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}

// clampLimit applies the list default and ceiling
func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
