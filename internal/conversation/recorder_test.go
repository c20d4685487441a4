// ABOUTME: Tests for the conversation Recorder
// ABOUTME: Verifies record ordering, idempotency, failure swallowing and queue limits

package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func flush(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))
}

// blockingStore holds every AddMessage until release is closed.
type blockingStore struct {
	*store.MockStore
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingStore) AddMessage(ctx context.Context, id string, msg *store.Message) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.MockStore.AddMessage(ctx, id, msg)
}

// failingStore fails the first n AddMessage calls.
type failingStore struct {
	*store.MockStore
	mu    sync.Mutex
	fails int
}

func (f *failingStore) AddMessage(ctx context.Context, id string, msg *store.Message) error {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return errors.New("database is locked")
	}
	f.mu.Unlock()
	return f.MockStore.AddMessage(ctx, id, msg)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "find issue X", Title("  find issue X \n"))
	assert.Equal(t, "multi line task", Title("multi\nline\ttask"))

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, Title(exact))

	long := strings.Repeat("ü", 60)
	got := Title(long)
	assert.Equal(t, strings.Repeat("ü", 50)+"...", got)
}

func TestRecorder_EnsureConversation(t *testing.T) {
	st := createTestStore(t)
	rec := New(st, Options{}, nil)
	defer rec.Close()
	ctx := context.Background()

	id := rec.EnsureConversation(ctx, "ims", "", "find issue X")
	require.NotEmpty(t, id)

	conv, err := st.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ims", conv.Agent)
	assert.Equal(t, "find issue X", conv.Title)

	// Already bound: no new conversation
	assert.Equal(t, id, rec.EnsureConversation(ctx, "ims", id, "another task"))
	all, err := st.ListConversations(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecorder_EnsureConversation_FailureReturnsEmpty(t *testing.T) {
	st := store.NewMockStore()
	st.SetFailure(errors.New("connection refused"))
	rec := New(st, Options{}, nil)
	defer rec.Close()

	assert.Empty(t, rec.EnsureConversation(context.Background(), "kb", "", "q"))
}

func TestRecorder_RecordsInOrder(t *testing.T) {
	st := createTestStore(t)
	rec := New(st, Options{}, nil)
	defer rec.Close()
	ctx := context.Background()

	id := rec.EnsureConversation(ctx, "ims", "", "find issue X")
	rec.RecordTurn(id, "turn-u", store.RoleUser, "find issue X")
	rec.RecordTurn(id, "turn-a", store.RoleAssistant, "Found 3 matching issues.")
	flush(t, rec)

	msgs, err := st.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "turn-u", msgs[0].ID)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "find issue X", msgs[0].Content)
	assert.Equal(t, "turn-a", msgs[1].ID)
	assert.Equal(t, "Found 3 matching issues.", msgs[1].Content)
}

func TestRecorder_DuplicateTurnWrittenOnce(t *testing.T) {
	st := store.NewMockStore()
	rec := New(st, Options{}, nil)
	defer rec.Close()

	id := rec.EnsureConversation(context.Background(), "code", "", "t")
	rec.RecordTurn(id, "turn-1", store.RoleUser, "hello")
	rec.RecordTurn(id, "turn-1", store.RoleUser, "hello")
	flush(t, rec)
	rec.RecordTurn(id, "turn-1", store.RoleUser, "hello")
	flush(t, rec)

	msgs, err := st.GetMessages(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRecorder_FailedWriteIsSwallowedAndRetryable(t *testing.T) {
	st := &failingStore{MockStore: store.NewMockStore(), fails: 1}
	rec := New(st, Options{}, nil)
	defer rec.Close()
	ctx := context.Background()

	id := rec.EnsureConversation(ctx, "kb", "", "q")
	require.NotEmpty(t, id)

	rec.RecordTurn(id, "turn-1", store.RoleUser, "q")
	flush(t, rec)
	msgs, _ := st.GetMessages(ctx, id, 0)
	assert.Empty(t, msgs)

	// The failed turn was released, so recording it again succeeds
	rec.RecordTurn(id, "turn-1", store.RoleUser, "q")
	flush(t, rec)
	msgs, _ = st.GetMessages(ctx, id, 0)
	assert.Len(t, msgs, 1)
}

func TestRecorder_UnknownConversationIsLoggedOnly(t *testing.T) {
	st := store.NewMockStore()
	rec := New(st, Options{}, nil)
	defer rec.Close()

	rec.RecordTurn("missing", "turn-1", store.RoleUser, "q")
	rec.RecordTurn("", "turn-2", store.RoleUser, "q")
	flush(t, rec)
}

func TestRecorder_QueueFullDropsWithoutBlocking(t *testing.T) {
	st := &blockingStore{
		MockStore: store.NewMockStore(),
		release:   make(chan struct{}),
		started:   make(chan struct{}),
	}
	rec := New(st, Options{QueueSize: 2}, nil)
	defer rec.Close()
	ctx := context.Background()

	id := rec.EnsureConversation(ctx, "code", "", "t")

	// First write occupies the worker
	rec.RecordTurn(id, "t0", store.RoleUser, "0")
	<-st.started

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 10; i++ {
			rec.RecordTurn(id, fmt.Sprintf("t%d", i), store.RoleUser, "x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordTurn blocked on a full queue")
	}

	close(st.release)
	flush(t, rec)

	msgs, err := st.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3, "one in flight plus a full queue of two")
	assert.Equal(t, "t0", msgs[0].ID)
	assert.Equal(t, "t1", msgs[1].ID)
	assert.Equal(t, "t2", msgs[2].ID)
}

func TestRecorder_CloseDrainsQueue(t *testing.T) {
	st := store.NewMockStore()
	rec := New(st, Options{}, nil)
	ctx := context.Background()

	id := rec.EnsureConversation(ctx, "general", "", "t")
	for i := 0; i < 20; i++ {
		rec.RecordTurn(id, fmt.Sprintf("t%d", i), store.RoleUser, "x")
	}
	rec.Close()
	rec.Close()

	msgs, err := st.GetMessages(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 20)

	// Writes after close are dropped, flush is a no-op
	rec.RecordTurn(id, "late", store.RoleUser, "x")
	assert.NoError(t, rec.Flush(ctx))
	msgs, _ = st.GetMessages(ctx, id, 0)
	assert.Len(t, msgs, 20)
}

func TestRecorder_FlushHonorsContext(t *testing.T) {
	st := &blockingStore{
		MockStore: store.NewMockStore(),
		release:   make(chan struct{}),
		started:   make(chan struct{}),
	}
	rec := New(st, Options{}, nil)
	defer rec.Close()
	defer close(st.release)

	id := rec.EnsureConversation(context.Background(), "kb", "", "t")
	rec.RecordTurn(id, "t0", store.RoleUser, "x")
	<-st.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rec.Flush(ctx), context.DeadlineExceeded)
}
