// ABOUTME: In-memory fan-out of session snapshots to UI subscribers
// ABOUTME: Latest-wins per subscriber so a slow renderer always catches up to current state

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Projector delivers snapshots of the selected session to every subscriber.
// Each subscriber has a one-slot mailbox; a newer snapshot replaces an unread
// older one, since a snapshot carries the full session state.
type Projector struct {
	mu          sync.RWMutex
	subscribers map[string]chan Snapshot
	published   int
	logger      *slog.Logger
}

// NewProjector creates a projector. Pass nil logger for default.
func NewProjector(logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{
		subscribers: make(map[string]chan Snapshot),
		logger:      logger.With("component", "projector"),
	}
}

// Subscribe registers a subscriber and returns its channel and id. The
// subscription is removed when ctx is cancelled.
func (p *Projector) Subscribe(ctx context.Context) (<-chan Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan Snapshot, 1)

	p.mu.Lock()
	p.subscribers[subID] = ch
	p.mu.Unlock()

	p.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		p.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish hands snap to every subscriber without blocking.
func (p *Projector) Publish(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.published++
	for _, ch := range p.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Mailbox full: drop the stale snapshot and retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
			p.logger.Debug("dropped snapshot for busy subscriber", "agent", snap.Agent)
		}
	}
}

// Published returns how many snapshots have been published in total.
func (p *Projector) Published() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

// Unsubscribe removes a subscription and closes its channel.
func (p *Projector) Unsubscribe(subID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.subscribers[subID]
	if !ok {
		return
	}
	delete(p.subscribers, subID)
	close(ch)

	p.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close removes all subscribers.
func (p *Projector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, ch := range p.subscribers {
		close(ch)
		delete(p.subscribers, id)
	}
}
