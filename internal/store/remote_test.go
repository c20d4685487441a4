// ABOUTME: Tests for RemoteStore against the conversation API handler
// ABOUTME: Uses httptest with a MockStore behind the chi routes

package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

// headerLog records Authorization headers seen by the server.
type headerLog struct {
	mu   sync.Mutex
	seen []string
}

func (h *headerLog) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func newRemoteFixture(t *testing.T, opts ...RemoteOption) (*RemoteStore, *MockStore, *headerLog) {
	t.Helper()

	backing := NewMockStore()
	auth := &headerLog{}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			auth.mu.Lock()
			auth.seen = append(auth.seen, req.Header.Get("Authorization"))
			auth.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(backing, nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	remote := NewRemoteStore(srv.URL+"/", opts...)
	t.Cleanup(func() { remote.Close() })
	return remote, backing, auth
}

func TestRemoteStore_RoundTrip(t *testing.T) {
	remote, backing, auth := newRemoteFixture(t, WithRemoteTokenSource(staticToken("secret")))
	ctx := context.Background()

	id, err := remote.CreateConversation(ctx, "ims", "find issue X")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, remote.AddMessage(ctx, id, &Message{ID: "u1", Role: RoleUser, Content: "find issue X"}))
	require.NoError(t, remote.AddMessage(ctx, id, &Message{ID: "a1", Role: RoleAssistant, Content: "Found 3 matching issues."}))

	conv, err := remote.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ims", conv.Agent)
	assert.Equal(t, "find issue X", conv.Title)
	assert.Equal(t, 2, conv.MessageCount)

	msgs, err := remote.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Found 3 matching issues.", msgs[1].Content)

	last, err := remote.GetMessages(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "a1", last[0].ID)

	stored, err := backing.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	require.NotEmpty(t, auth.all())
	for _, h := range auth.all() {
		assert.Equal(t, "Bearer secret", h)
	}
}

func TestRemoteStore_List(t *testing.T) {
	remote, backing, _ := newRemoteFixture(t)
	ctx := context.Background()

	_, err := backing.CreateConversation(ctx, "kb", "one")
	require.NoError(t, err)
	_, err = backing.CreateConversation(ctx, "code", "two")
	require.NoError(t, err)

	all, err := remote.ListConversations(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	kb, err := remote.ListConversations(ctx, "kb", 10)
	require.NoError(t, err)
	require.Len(t, kb, 1)
	assert.Equal(t, "one", kb[0].Title)

	none, err := remote.ListConversations(ctx, "vision", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRemoteStore_ErrorMapping(t *testing.T) {
	remote, _, auth := newRemoteFixture(t)
	ctx := context.Background()

	_, err := remote.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = remote.AddMessage(ctx, "missing", &Message{ID: "x", Role: RoleUser})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = remote.GetMessages(ctx, "missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := remote.CreateConversation(ctx, "kb", "t")
	require.NoError(t, err)
	require.NoError(t, remote.AddMessage(ctx, id, &Message{ID: "x", Role: RoleUser}))
	assert.ErrorIs(t, remote.AddMessage(ctx, id, &Message{ID: "x", Role: RoleUser}), ErrDuplicateMessage)

	err = remote.AddMessage(ctx, id, &Message{ID: "y", Role: "system"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	_, err = remote.CreateConversation(ctx, "", "no agent")
	assert.Error(t, err)

	// No token source configured
	for _, h := range auth.all() {
		assert.Empty(t, h)
	}
}

func TestRemoteStore_ServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	remote := NewRemoteStore(srv.URL)
	_, err := remote.CreateConversation(context.Background(), "kb", "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
}
