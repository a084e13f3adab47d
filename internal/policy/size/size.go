// Package size implements the Size eviction policy: victim() is the
// largest live entry, tie-broken by the oldest last access (§4.2).
package size

import (
	"container/heap"

	"github.com/chirdeeptomar/carbon-cache/internal/policy"
)

type item struct {
	key            string
	sizeBytes      int64
	lastAccessedAt int64
	index          int
}

// maxHeap orders by sizeBytes descending, then by lastAccessedAt ascending
// (older first) so the heap root is always the current eviction victim.
type maxHeap []*item

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	if h[i].sizeBytes != h[j].sizeBytes {
		return h[i].sizeBytes > h[j].sizeBytes
	}
	return h[i].lastAccessedAt < h[j].lastAccessedAt
}
func (h maxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *maxHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

type sizePolicy struct {
	h   maxHeap
	idx map[string]*item
}

// New returns a policy.Factory that builds a fresh Size instance per cache.
func New() policy.Factory {
	return func() policy.Policy {
		return &sizePolicy{idx: make(map[string]*item)}
	}
}

func (*sizePolicy) Name() string { return "size" }

func (p *sizePolicy) OnInsert(key string, m policy.Meta) {
	if it, ok := p.idx[key]; ok {
		it.sizeBytes = m.SizeBytes
		it.lastAccessedAt = m.LastAccessedAt
		heap.Fix(&p.h, it.index)
		return
	}
	it := &item{key: key, sizeBytes: m.SizeBytes, lastAccessedAt: m.LastAccessedAt}
	p.idx[key] = it
	heap.Push(&p.h, it)
}

func (p *sizePolicy) OnAccess(key string, m policy.Meta) {
	it, ok := p.idx[key]
	if !ok {
		return
	}
	it.lastAccessedAt = m.LastAccessedAt
	heap.Fix(&p.h, it.index)
}

func (p *sizePolicy) OnRemove(key string) {
	it, ok := p.idx[key]
	if !ok {
		return
	}
	heap.Remove(&p.h, it.index)
	delete(p.idx, key)
}

func (p *sizePolicy) Victim(int64) (string, bool) {
	if len(p.h) == 0 {
		return "", false
	}
	return p.h[0].key, true
}
