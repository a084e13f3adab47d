// Package lru implements the LRU eviction policy: victim() is always the
// least-recently-used live key (§4.2).
package lru

import "github.com/chirdeeptomar/carbon-cache/internal/policy"

// node is an intrusive doubly linked list element; head is MRU, tail is LRU.
type node struct {
	key        string
	prev, next *node
}

type lru struct {
	idx        map[string]*node
	head, tail *node
}

// New returns a policy.Factory that builds a fresh LRU instance per cache.
func New() policy.Factory {
	return func() policy.Policy {
		return &lru{idx: make(map[string]*node)}
	}
}

func (*lru) Name() string { return "lru" }

func (p *lru) OnInsert(key string, _ policy.Meta) {
	if n, ok := p.idx[key]; ok {
		p.moveToFront(n)
		return
	}
	n := &node{key: key}
	p.idx[key] = n
	p.pushFront(n)
}

func (p *lru) OnAccess(key string, _ policy.Meta) {
	if n, ok := p.idx[key]; ok {
		p.moveToFront(n)
	}
}

func (p *lru) OnRemove(key string) {
	n, ok := p.idx[key]
	if !ok {
		return
	}
	p.detach(n)
	delete(p.idx, key)
}

func (p *lru) Victim(int64) (string, bool) {
	if p.tail == nil {
		return "", false
	}
	return p.tail.key, true
}

func (p *lru) pushFront(n *node) {
	n.prev = nil
	n.next = p.head
	if p.head != nil {
		p.head.prev = n
	}
	p.head = n
	if p.tail == nil {
		p.tail = n
	}
}

func (p *lru) moveToFront(n *node) {
	if n == p.head {
		return
	}
	p.detach(n)
	p.pushFront(n)
}

func (p *lru) detach(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if p.head == n {
		p.head = n.next
	}
	if p.tail == n {
		p.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
