// Package entry defines the unit stored in a Cache namespace and the byte
// accounting rules that apply to it (§3, §4.1 of the design spec).
package entry

import "sync/atomic"

// OverheadPerEntry is the fixed per-entry bookkeeping cost folded into
// size_bytes so accounting reflects map/pointer/metadata overhead rather
// than just the raw payload length.
const OverheadPerEntry = 64

// Tier identifies where an entry's bytes currently live.
type Tier uint8

const (
	TierMemory Tier = iota
	TierDisk
)

func (t Tier) String() string {
	if t == TierDisk {
		return "disk"
	}
	return "memory"
}

// Buffer is a reference-counted immutable byte buffer. Cloning a Buffer
// bumps the refcount instead of copying bytes, so reads and front-end
// encoding never allocate a duplicate of the payload; Release must be
// called exactly once per Clone (including the original from New).
type Buffer struct {
	b    []byte
	refs *int32
}

// NewBuffer wraps b (not copied) with an initial refcount of 1.
func NewBuffer(b []byte) *Buffer {
	refs := int32(1)
	return &Buffer{b: b, refs: &refs}
}

// Bytes returns the underlying slice. Callers must not mutate it.
func (b *Buffer) Bytes() []byte { return b.b }

// Len returns the payload length in bytes.
func (b *Buffer) Len() int { return len(b.b) }

// Clone increments the refcount and returns the same logical buffer.
func (b *Buffer) Clone() *Buffer {
	atomic.AddInt32(b.refs, 1)
	return &Buffer{b: b.b, refs: b.refs}
}

// Release decrements the refcount. The backing array is left for the
// garbage collector once the last reference drops; Carbon does not pool
// buffers, it only avoids copying them across ownership handoffs.
func (b *Buffer) Release() {
	atomic.AddInt32(b.refs, -1)
}

// Entry is one live key's metadata plus its value buffer.
type Entry struct {
	Key            string
	Value          *Buffer
	SizeBytes      int64
	CreatedAt      int64 // UnixNano, monotonic source
	LastAccessedAt int64 // UnixNano
	TTLMillis      int64 // 0 = no TTL
	Hits           uint64
	Tier           Tier
}

// SizeOf computes size_bytes for a candidate key/value pair per §4.1:
// len(key) + len(value) + fixed per-entry overhead.
func SizeOf(key string, value *Buffer) int64 {
	return int64(len(key)) + int64(value.Len()) + OverheadPerEntry
}

// Expired reports whether the entry's TTL has elapsed as of now (UnixNano).
// An entry with TTLMillis == 0 never expires by TTL.
func (e *Entry) Expired(nowNano int64) bool {
	if e.TTLMillis == 0 {
		return false
	}
	deadline := e.CreatedAt + e.TTLMillis*int64(1e6)
	return nowNano >= deadline
}

// New constructs a live Entry for key/value with the given absolute
// creation time and TTL (0 = none).
func New(key string, value *Buffer, nowNano int64, ttlMillis int64) *Entry {
	return &Entry{
		Key:            key,
		Value:          value,
		SizeBytes:      SizeOf(key, value),
		CreatedAt:      nowNano,
		LastAccessedAt: nowNano,
		TTLMillis:      ttlMillis,
		Tier:           TierMemory,
	}
}
