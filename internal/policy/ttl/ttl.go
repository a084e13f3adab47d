// Package ttl implements the TTL eviction policy: victim() is the live key
// with the soonest expiry. Keys with no TTL are never tracked and can never
// be chosen, so Victim reports ok=false once only TTL-less keys remain,
// matching the NoVictim failure mode described in §4.2.
package ttl

import (
	"container/heap"

	"github.com/chirdeeptomar/carbon-cache/internal/policy"
)

type item struct {
	key      string
	deadline int64 // absolute UnixNano expiry
	index    int
}

type minHeap []*item

func (h minHeap) Len() int                { return len(h) }
func (h minHeap) Less(i, j int) bool      { return h[i].deadline < h[j].deadline }
func (h minHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *minHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

type ttlPolicy struct {
	h   minHeap
	idx map[string]*item
}

// New returns a policy.Factory that builds a fresh TTL instance per cache.
func New() policy.Factory {
	return func() policy.Policy {
		return &ttlPolicy{idx: make(map[string]*item)}
	}
}

func (*ttlPolicy) Name() string { return "ttl" }

func (p *ttlPolicy) OnInsert(key string, m policy.Meta) {
	// Re-insertion (PUT replace) may add, change, or clear the TTL.
	if it, ok := p.idx[key]; ok {
		heap.Remove(&p.h, it.index)
		delete(p.idx, key)
	}
	if m.TTLMillis <= 0 {
		return
	}
	it := &item{key: key, deadline: m.CreatedAt + m.TTLMillis*int64(1e6)}
	p.idx[key] = it
	heap.Push(&p.h, it)
}

// OnAccess is a no-op: a GET does not change when a key expires.
func (p *ttlPolicy) OnAccess(string, policy.Meta) {}

func (p *ttlPolicy) OnRemove(key string) {
	it, ok := p.idx[key]
	if !ok {
		return
	}
	heap.Remove(&p.h, it.index)
	delete(p.idx, key)
}

func (p *ttlPolicy) Victim(int64) (string, bool) {
	if len(p.h) == 0 {
		return "", false
	}
	return p.h[0].key, true
}
