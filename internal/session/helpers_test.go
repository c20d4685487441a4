// ABOUTME: Test doubles for the session engine: scripted streams and recorders
// ABOUTME: Streams are fed through channels so tests control event timing

package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/stream"
)

type item struct {
	ev  stream.Event
	err error
}

// chanStream yields items from a channel until it is closed.
type chanStream struct {
	ctx    context.Context
	ch     <-chan item
	closed bool
}

func (s *chanStream) Next() (stream.Event, error) {
	select {
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case it, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return it.ev, it.err
	}
}

func (s *chanStream) Close() error {
	s.closed = true
	return nil
}

// fakeOpener hands out prepared streams per agent in FIFO order. An agent
// without a prepared stream gets an empty one.
type fakeOpener struct {
	mu      sync.Mutex
	queues  map[string][]chan item
	opened  []stream.Request
	openErr error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{queues: make(map[string][]chan item)}
}

// prepare queues a live stream for agent and returns its feed.
func (o *fakeOpener) prepare(agent Agent) chan item {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan item, 64)
	o.queues[string(agent)] = append(o.queues[string(agent)], ch)
	return ch
}

// script queues a stream that yields events and then ends.
func (o *fakeOpener) script(agent Agent, events ...stream.Event) {
	ch := o.prepare(agent)
	for _, ev := range events {
		ch <- item{ev: ev}
	}
	close(ch)
}

func (o *fakeOpener) Open(ctx context.Context, req *stream.Request) (stream.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opened = append(o.opened, *req)
	if o.openErr != nil {
		return nil, o.openErr
	}

	q := o.queues[req.Agent]
	if len(q) == 0 {
		empty := make(chan item)
		close(empty)
		return &chanStream{ctx: ctx, ch: empty}, nil
	}
	o.queues[req.Agent] = q[1:]
	return &chanStream{ctx: ctx, ch: q[0]}, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

type recordedTurn struct {
	ConversationID string
	TurnID         string
	Role           string
	Content        string
}

// fakeRecorder captures persistence calls.
type fakeRecorder struct {
	mu      sync.Mutex
	convID  string
	created []string // titles/tasks passed to EnsureConversation
	turns   []recordedTurn
}

func (f *fakeRecorder) EnsureConversation(ctx context.Context, agent, boundID, task string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if boundID != "" {
		return boundID
	}
	f.created = append(f.created, task)
	return f.convID
}

func (f *fakeRecorder) RecordTurn(conversationID, turnID, role, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, recordedTurn{conversationID, turnID, role, content})
}

func (f *fakeRecorder) recorded() []recordedTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedTurn(nil), f.turns...)
}

type fakeArtifacts struct {
	mu  sync.Mutex
	got map[string][]stream.Artifact
}

func (f *fakeArtifacts) PutArtifact(turnID string, a stream.Artifact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.got == nil {
		f.got = make(map[string][]stream.Artifact)
	}
	f.got[turnID] = append(f.got[turnID], a)
}

func newTestRegistry(t *testing.T, opener *fakeOpener, rec *fakeRecorder) *Registry {
	t.Helper()
	opts := Options{Opener: opener, Language: "en"}
	if rec != nil {
		opts.Recorder = rec
	}
	reg := NewRegistry(opts)
	t.Cleanup(func() {
		reg.CancelAll()
		reg.Wait()
	})
	return reg
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out, ok := <-ch:
		require.True(t, ok, "outcome channel closed without a value")
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

var errConnReset = errors.New("connection reset by peer")
