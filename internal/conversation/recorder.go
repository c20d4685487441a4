// ABOUTME: Recorder persists conversations and turns for the session engine
// ABOUTME: Record-first conversation binding plus an ordered, best-effort write queue

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/2389/agentdesk/internal/dedupe"
	"github.com/2389/agentdesk/internal/store"
)

// Defaults for Options fields left zero
const (
	DefaultWriteTimeout = 5 * time.Second
	DefaultQueueSize    = 256
	DefaultDedupeTTL    = 10 * time.Minute

	// titleRunes is the maximum title length before truncation
	titleRunes = 50
)

// ConversationStore defines what the recorder needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, agent, title string) (string, error)
	AddMessage(ctx context.Context, conversationID string, msg *store.Message) error
}

// Options tunes a Recorder
type Options struct {
	WriteTimeout time.Duration
	QueueSize    int
	DedupeTTL    time.Duration
}

type write struct {
	conversationID string
	msg            store.Message

	// flushed is closed when a flush marker reaches the worker
	flushed chan struct{}
}

// Recorder implements the session engine's persistence port
type Recorder struct {
	store        ConversationStore
	guard        *dedupe.Guard
	writeTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan write
	wg     sync.WaitGroup
}

// New creates a recorder and starts its write worker. Call Close to drain it.
func New(s ConversationStore, opts Options, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = DefaultDedupeTTL
	}

	r := &Recorder{
		store:        s,
		guard:        dedupe.New(opts.DedupeTTL, opts.QueueSize*4),
		writeTimeout: opts.WriteTimeout,
		logger:       logger.With("component", "conversation"),
		now:          time.Now,
		queue:        make(chan write, opts.QueueSize),
	}

	r.wg.Add(1)
	go r.worker()
	return r
}

// Title derives a conversation title from the first task of a session
func Title(task string) string {
	t := strings.Join(strings.Fields(task), " ")
	if utf8.RuneCountInString(t) <= titleRunes {
		return t
	}
	return string([]rune(t)[:titleRunes]) + "..."
}

// EnsureConversation returns boundID when set. Otherwise it creates a
// conversation for agent titled after task and returns its id, or "" when
// creation fails. Failures are logged, never returned.
func (r *Recorder) EnsureConversation(ctx context.Context, agent, boundID, task string) string {
	if boundID != "" {
		return boundID
	}

	createCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	id, err := r.store.CreateConversation(createCtx, agent, Title(task))
	if err != nil {
		r.logger.Error("failed to create conversation",
			"error", err,
			"agent", agent)
		return ""
	}

	r.logger.Debug("conversation created", "conversation_id", id, "agent", agent)
	return id
}

// RecordTurn queues a turn for persistence and returns immediately. A turn id
// already recorded recently is ignored.
func (r *Recorder) RecordTurn(conversationID, turnID, role, content string) {
	if conversationID == "" {
		return
	}
	if !r.guard.Claim(turnID) {
		r.logger.Debug("duplicate turn ignored", "turn_id", turnID)
		return
	}

	w := write{
		conversationID: conversationID,
		msg: store.Message{
			ID:        turnID,
			Role:      role,
			Content:   content,
			CreatedAt: r.now(),
		},
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.guard.Release(turnID)
		r.logger.Warn("recorder closed, dropping turn", "turn_id", turnID)
		return
	}

	select {
	case r.queue <- w:
	default:
		r.guard.Release(turnID)
		r.logger.Warn("write queue full, dropping turn",
			"conversation_id", conversationID,
			"turn_id", turnID,
			"role", role)
	}
}

// Flush waits until every turn queued before the call has been written or
// dropped, or ctx is done.
func (r *Recorder) Flush(ctx context.Context) error {
	marker := write{flushed: make(chan struct{})}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil
	}
	select {
	case r.queue <- marker:
		r.mu.RUnlock()
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting turns and waits for queued ones to be written.
// It is safe to call multiple times.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for w := range r.queue {
		if w.flushed != nil {
			close(w.flushed)
			continue
		}
		r.save(w)
	}
}

// save writes one turn with its own timeout
func (r *Recorder) save(w write) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	msg := w.msg
	err := r.store.AddMessage(ctx, w.conversationID, &msg)
	switch {
	case err == nil:
		r.logger.Debug("turn recorded",
			"conversation_id", w.conversationID,
			"turn_id", msg.ID,
			"role", msg.Role)
	case errors.Is(err, store.ErrDuplicateMessage):
		r.logger.Debug("turn already stored", "turn_id", msg.ID)
	default:
		r.guard.Release(msg.ID)
		r.logger.Error("failed to record turn",
			"error", err,
			"conversation_id", w.conversationID,
			"turn_id", msg.ID,
			"role", msg.Role)
	}
}
