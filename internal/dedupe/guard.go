// ABOUTME: Bounded TTL set of claimed keys used to make writes idempotent
// ABOUTME: Claim/Release pair lets a failed write be retried under the same key

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type claim struct {
	at   time.Time
	elem *list.Element
}

// Guard remembers claimed keys for ttl, holding at most maxSize of them.
// When full, the oldest claim is forgotten first.
type Guard struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a guard. Expired claims are dropped lazily on access.
func New(ttl time.Duration, maxSize int) *Guard {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Guard{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Claim marks key as taken. It returns false when key is already claimed and
// not yet expired, meaning the caller should skip its write.
func (g *Guard) Claim(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.expireLocked(now)

	if c, ok := g.claims[key]; ok {
		if now.Sub(c.at) < g.ttl {
			return false
		}
		g.removeLocked(key, c)
	}

	for len(g.claims) >= g.maxSize {
		front := g.order.Front()
		key, _ := front.Value.(string)
		g.removeLocked(key, g.claims[key])
	}

	g.claims[key] = &claim{at: now, elem: g.order.PushBack(key)}
	return true
}

// Release forgets key so a later Claim succeeds again.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.claims[key]; ok {
		g.removeLocked(key, c)
	}
}

// Claimed reports whether key is currently claimed.
func (g *Guard) Claimed(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.claims[key]
	return ok && g.now().Sub(c.at) < g.ttl
}

// Len returns the number of live claims.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked(g.now())
	return len(g.claims)
}

// expireLocked drops claims older than ttl from the front of the list.
func (g *Guard) expireLocked(now time.Time) {
	for e := g.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		c := g.claims[key]
		if now.Sub(c.at) < g.ttl {
			return
		}
		next := e.Next()
		g.removeLocked(key, c)
		e = next
	}
}

func (g *Guard) removeLocked(key string, c *claim) {
	g.order.Remove(c.elem)
	delete(g.claims, key)
}
