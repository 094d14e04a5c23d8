// Package dedupe keeps two regenerations of the same group week from running
// at once inside one process.
package dedupe

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Guard records in-flight keys.
type Guard interface {
	// Acquire atomically claims key. It returns false if key is already held
	// or the guard is at capacity.
	Acquire(ctx context.Context, key string) bool

	// Release frees key. Releasing an unheld key is a no-op.
	Release(ctx context.Context, key string)

	// Held lists the claimed keys, oldest first.
	Held() []Claim

	Size() int64
}

// Claim is one held key and when it was acquired.
type Claim struct {
	Key   string
	Since time.Time
}

// Key builds the guard key of a group week.
func Key(groupID string, week time.Time) string {
	return groupID + "@" + week.UTC().Format("2006-01-02")
}

type inMemoryGuard struct {
	mu      sync.Mutex
	held    map[string]time.Time
	maxSize int // 0 or negative = unbounded
	size    atomic.Int64
	now     func() time.Time
}

// NewInMemoryGuard creates a guard with configuration options.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *inMemoryGuard) Acquire(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.held[key]; exists {
		return false
	}
	if g.maxSize > 0 && len(g.held) >= g.maxSize {
		return false
	}
	g.held[key] = g.now()
	g.size.Add(1)
	return true
}

func (g *inMemoryGuard) Release(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.held[key]; exists {
		delete(g.held, key)
		g.size.Add(-1)
	}
}

func (g *inMemoryGuard) Held() []Claim {
	g.mu.Lock()
	out := make([]Claim, 0, len(g.held))
	for k, t := range g.held {
		out = append(out, Claim{Key: k, Since: t})
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Since.Equal(out[j].Since) {
			return out[i].Since.Before(out[j].Since)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Size returns the number of held keys.
func (g *inMemoryGuard) Size() int64 {
	return g.size.Load()
}
