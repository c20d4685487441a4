// ABOUTME: REST client implementation of Store for a hosted conversation service
// ABOUTME: Maps 404 to ErrNotFound and 409 to ErrDuplicateMessage

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// TokenSource supplies the bearer token for remote calls.
type TokenSource interface {
	Token() (string, error)
}

// RemoteStore implements Store over the conversation REST API:
//
//	POST /api/conversations                 {"agent_type","title"} -> {"id"}
//	GET  /api/conversations?agent_type=&limit=
//	GET  /api/conversations/{id}
//	POST /api/conversations/{id}/messages   Message
//	GET  /api/conversations/{id}/messages?limit=
type RemoteStore struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithRemoteHTTPClient overrides the underlying http.Client.
func WithRemoteHTTPClient(hc *http.Client) RemoteOption {
	return func(s *RemoteStore) { s.client = hc }
}

// WithRemoteTokenSource attaches bearer tokens to requests.
func WithRemoteTokenSource(ts TokenSource) RemoteOption {
	return func(s *RemoteStore) { s.tokens = ts }
}

// NewRemoteStore creates a store backed by the service at baseURL.
func NewRemoteStore(baseURL string, opts ...RemoteOption) *RemoteStore {
	s := &RemoteStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		logger:  slog.Default().With("component", "remote_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateConversation creates a conversation remotely
func (s *RemoteStore) CreateConversation(ctx context.Context, agent, title string) (string, error) {
	req := struct {
		Agent string `json:"agent_type"`
		Title string `json:"title"`
	}{agent, title}

	var resp struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/conversations", req, &resp); err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("creating conversation: response has no id")
	}

	s.logger.Debug("created conversation", "id", resp.ID, "agent", agent)
	return resp.ID, nil
}

// GetConversation fetches one conversation
func (s *RemoteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := s.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations lists conversations newest first
func (s *RemoteStore) ListConversations(ctx context.Context, agent string, limit int) ([]*Conversation, error) {
	q := url.Values{}
	if agent != "" {
		q.Set("agent_type", agent)
	}
	q.Set("limit", strconv.Itoa(clampLimit(limit)))

	var convs []*Conversation
	if err := s.do(ctx, http.MethodGet, "/api/conversations?"+q.Encode(), nil, &convs); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return convs, nil
}

// AddMessage posts a message to a conversation
func (s *RemoteStore) AddMessage(ctx context.Context, conversationID string, msg *Message) error {
	msg.ConversationID = conversationID
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	return s.do(ctx, http.MethodPost, path, msg, nil)
}

// GetMessages fetches the messages of a conversation
func (s *RemoteStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var msgs []*Message
	if err := s.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Close releases idle connections
func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends a JSON request and decodes a JSON response into out, if non-nil.
func (s *RemoteStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.tokens != nil {
		token, err := s.tokens.Token()
		if err != nil {
			return fmt.Errorf("loading token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicateMessage
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("conversation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
