// ABOUTME: Tests for the credential API client against an httptest backend
// ABOUTME: Covers status decoding, submission, rejection and bearer tokens

package credentials

import (
	"context"
	"encoding/json"
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

type fakeBackend struct {
	mu     sync.Mutex
	stored map[string]map[string]string
	auth   []string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{stored: make(map[string]map[string]string)}

	r := chi.NewRouter()
	r.Get("/api/credentials/{agent}", func(w http.ResponseWriter, r *http.Request) {
		agent := chi.URLParam(r, "agent")
		fb.mu.Lock()
		fb.auth = append(fb.auth, r.Header.Get("Authorization"))
		_, ok := fb.stored[agent]
		fb.mu.Unlock()

		if agent == "broken" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"vault offline"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(Status{
			Agent:      agent,
			Configured: ok,
			Fields:     []Field{{Name: "api_key", Label: "API key", Secret: true}},
		})
	})
	r.Post("/api/credentials/{agent}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Values map[string]string `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Values["api_key"] == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"api_key required"}`))
			return
		}
		fb.mu.Lock()
		fb.stored[chi.URLParam(r, "agent")] = req.Values
		fb.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fb, srv
}

func TestClient_CheckThenSubmit(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := NewClient(srv.URL, nil, nil, nil)
	ctx := context.Background()

	st, err := c.Check(ctx, "ims")
	require.NoError(t, err)
	assert.Equal(t, "ims", st.Agent)
	assert.False(t, st.Configured)
	require.Len(t, st.Fields, 1)
	assert.True(t, st.Fields[0].Secret)

	require.NoError(t, c.Submit(ctx, "ims", map[string]string{"api_key": "k"}))

	st, err = c.Check(ctx, "ims")
	require.NoError(t, err)
	assert.True(t, st.Configured)
}

func TestClient_SubmitRejected(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := NewClient(srv.URL, nil, nil, nil)

	err := c.Submit(context.Background(), "ims", map[string]string{})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "api_key required")
}

func TestClient_ServerError(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := NewClient(srv.URL, nil, nil, nil)

	_, err := c.Check(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "vault offline")
}

func TestClient_BearerToken(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := NewClient(srv.URL+"/", nil, staticToken("tok"), nil)

	_, err := c.Check(context.Background(), "kb")
	require.NoError(t, err)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, []string{"Bearer tok"}, fb.auth)
}
