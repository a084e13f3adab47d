// Package policy defines the pluggable eviction strategy contract used by a
// Cache namespace (§4.2 of the design spec). A Policy owns only auxiliary
// index state; the entries map itself belongs to the cache.
package policy

// Meta is the subset of entry metadata a policy needs to place, reposition,
// or select a key for eviction, without importing the entry package (which
// would create an import cycle back into cachecore).
type Meta struct {
	CreatedAt      int64
	LastAccessedAt int64
	TTLMillis      int64
	Hits           uint64
	SizeBytes      int64
}

// Policy is a per-namespace eviction strategy instance. All methods are
// called while the cache's single writer-exclusive lock is held, so
// implementations need no internal locking of their own.
//
// Contract:
//   - OnInsert is called exactly once when a key is newly admitted, or as a
//     refresh when a PUT replaces an existing key in place.
//   - OnAccess is called on every successful GET.
//   - OnRemove is called whenever a key leaves the cache, for any reason
//     (explicit delete, TTL expiry, eviction, tier move).
//   - Victim proposes a key to evict when the cache is over budget. It must
//     not mutate state itself; the cache calls OnRemove once it actually
//     removes the returned key. Victim returns ok=false when it has no
//     candidate (callers treat this as InsufficientCapacity).
type Policy interface {
	OnInsert(key string, m Meta)
	OnAccess(key string, m Meta)
	OnRemove(key string)
	Victim(nowNano int64) (key string, ok bool)
	Name() string
}

// Factory constructs a fresh Policy instance for one cache namespace. Each
// namespace gets its own Policy so state is never shared across caches.
type Factory func() Policy
