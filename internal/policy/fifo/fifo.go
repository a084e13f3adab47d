// Package fifo implements the FIFO eviction policy: victim() is always the
// oldest still-resident key, regardless of access pattern (§4.2).
package fifo

import (
	"github.com/chirdeeptomar/carbon-cache/internal/policy"
	"github.com/gammazero/deque"
)

// fifo tracks insertion order in a ring-buffer-backed queue. Removed keys
// are tombstoned via the present set rather than spliced out of the queue
// (the deque has no O(1) middle removal); stale heads are dropped lazily
// the next time Victim walks the queue.
type fifo struct {
	queue   *deque.Deque[string]
	present map[string]struct{}
}

// New returns a policy.Factory that builds a fresh FIFO instance per cache.
func New() policy.Factory {
	return func() policy.Policy {
		return &fifo{
			queue:   deque.New[string](),
			present: make(map[string]struct{}),
		}
	}
}

func (*fifo) Name() string { return "fifo" }

// OnInsert records admission order for first-time keys. A PUT that replaces
// an existing key keeps its original position: insertion order, not last
// write, drives FIFO eviction.
func (p *fifo) OnInsert(key string, _ policy.Meta) {
	if _, ok := p.present[key]; ok {
		return
	}
	p.present[key] = struct{}{}
	p.queue.PushBack(key)
}

// OnAccess is a no-op: GET never changes FIFO order.
func (p *fifo) OnAccess(string, policy.Meta) {}

func (p *fifo) OnRemove(key string) {
	delete(p.present, key)
}

// Victim returns the oldest live key, discarding tombstoned heads first.
func (p *fifo) Victim(int64) (string, bool) {
	for p.queue.Len() > 0 {
		k := p.queue.Front()
		if _, ok := p.present[k]; ok {
			return k, true
		}
		p.queue.PopFront()
	}
	return "", false
}
