// Package lfu implements the LFU eviction policy: victim() is the key with
// the fewest accesses, tie-broken by the oldest last access (§4.2).
package lfu

import (
	"container/heap"

	"github.com/chirdeeptomar/carbon-cache/internal/policy"
)

type item struct {
	key            string
	hits           uint64
	lastAccessedAt int64
	index          int
}

// minHeap orders by hits ascending, then by lastAccessedAt ascending
// (older first) so Victim always returns the least-frequently-used,
// least-recently-used-on-tie key in O(log n).
type minHeap []*item

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].hits != h[j].hits {
		return h[i].hits < h[j].hits
	}
	return h[i].lastAccessedAt < h[j].lastAccessedAt
}
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

type lfu struct {
	h   minHeap
	idx map[string]*item
}

// New returns a policy.Factory that builds a fresh LFU instance per cache.
func New() policy.Factory {
	return func() policy.Policy {
		return &lfu{idx: make(map[string]*item)}
	}
}

func (*lfu) Name() string { return "lfu" }

func (p *lfu) OnInsert(key string, m policy.Meta) {
	if it, ok := p.idx[key]; ok {
		it.hits = m.Hits
		it.lastAccessedAt = m.LastAccessedAt
		heap.Fix(&p.h, it.index)
		return
	}
	it := &item{key: key, hits: m.Hits, lastAccessedAt: m.LastAccessedAt}
	p.idx[key] = it
	heap.Push(&p.h, it)
}

func (p *lfu) OnAccess(key string, m policy.Meta) {
	it, ok := p.idx[key]
	if !ok {
		return
	}
	it.hits = m.Hits
	it.lastAccessedAt = m.LastAccessedAt
	heap.Fix(&p.h, it.index)
}

func (p *lfu) OnRemove(key string) {
	it, ok := p.idx[key]
	if !ok {
		return
	}
	heap.Remove(&p.h, it.index)
	delete(p.idx, key)
}

func (p *lfu) Victim(int64) (string, bool) {
	if len(p.h) == 0 {
		return "", false
	}
	return p.h[0].key, true
}
