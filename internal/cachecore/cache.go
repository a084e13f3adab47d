// Package cachecore implements Carbon's per-namespace cache (§4.4): a keyed
// mapping plus a pluggable eviction policy plus optional disk overflow,
// operating under a single writer-exclusive lock per the concurrency model
// in §5. Byte accounting is incremental; nothing is ever recomputed by
// scanning the live set.
package cachecore

import (
	"context"
	"sync"
	"time"

	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
	"github.com/chirdeeptomar/carbon-cache/internal/entry"
	"github.com/chirdeeptomar/carbon-cache/internal/overflow"
	"github.com/chirdeeptomar/carbon-cache/internal/policy"
	"github.com/chirdeeptomar/carbon-cache/internal/util"
	"github.com/rs/zerolog"
)

// Stats is a point-in-time counters snapshot (§4.4 stats()).
type Stats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	Expirations  uint64
	OverflowsIn  uint64
	OverflowsOut uint64
	MemBytes     int64
	DiskBytes    int64
	Entries      int
}

type counters struct {
	_            util.CacheLinePad
	hits         util.PaddedAtomicInt64
	misses       util.PaddedAtomicInt64
	evictions    util.PaddedAtomicInt64
	expirations  util.PaddedAtomicInt64
	overflowsIn  util.PaddedAtomicInt64
	overflowsOut util.PaddedAtomicInt64
}

// Cache is one namespace: a keyed mapping, an eviction policy, and an
// optional disk overflow tier, all guarded by a single mutex (§5). All
// methods are safe for concurrent use.
type Cache struct {
	name string

	mu        sync.Mutex
	entries   map[string]*entry.Entry
	memBytes  int64
	memBudget int64

	policyName PolicyName
	policyNew  policy.Factory
	pol        policy.Policy

	defaultTTLMillis int64
	maxValueBytes    int64

	overflow     *overflow.Overflow
	diskBudget   int64
	overflowOnce sync.Once

	clock   Clock
	metrics Metrics
	log     zerolog.Logger

	createdAt int64
	counters  counters

	sweepInterval time.Duration
	cancelSweep   context.CancelFunc
	sweepDone     chan struct{}
}

// New constructs a namespace cache per opt. If opt.DiskBudgetBytes > 0 and
// opt.OverflowDir is set, the disk tier is opened immediately (startup
// rebuild, if requested, is best-effort per §4.3 and never blocks this
// call beyond the directory scan itself).
func New(opt Options) (*Cache, error) {
	if !opt.Policy.Valid() {
		opt.Policy = PolicyLRU
	}
	if opt.MaxValueBytes <= 0 {
		opt.MaxValueBytes = DefaultMaxValueBytes
	}
	if opt.SweepInterval <= 0 {
		opt.SweepInterval = DefaultSweepInterval
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	factory := opt.Policy.Factory()
	c := &Cache{
		name:             opt.Name,
		entries:          make(map[string]*entry.Entry),
		memBudget:        opt.MemBudgetBytes,
		policyName:       opt.Policy,
		policyNew:        factory,
		pol:              factory(),
		defaultTTLMillis: opt.DefaultTTLMillis,
		maxValueBytes:    opt.MaxValueBytes,
		diskBudget:       opt.DiskBudgetBytes,
		clock:            opt.Clock,
		metrics:          opt.Metrics,
		log:              opt.Logger,
		createdAt:        nowNano(opt.Clock),
		sweepInterval:    opt.SweepInterval,
	}

	if opt.DiskBudgetBytes > 0 && opt.OverflowDir != "" {
		ov, err := overflow.Open(opt.OverflowDir, opt.DiskBudgetBytes, opt.RebuildOverflow, opt.Logger)
		if err != nil {
			return nil, err
		}
		c.overflow = ov
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelSweep = cancel
	c.sweepDone = make(chan struct{})
	go c.sweepLoop(ctx)

	return c, nil
}

func nowNano(clk Clock) int64 {
	if clk != nil {
		return clk.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (c *Cache) now() int64 { return nowNano(c.clock) }

// Name returns the namespace name.
func (c *Cache) Name() string { return c.name }

// PolicyName returns the configured eviction strategy.
func (c *Cache) PolicyName() PolicyName { return c.policyName }

func metaOf(e *entry.Entry) policy.Meta {
	return policy.Meta{
		CreatedAt:      e.CreatedAt,
		LastAccessedAt: e.LastAccessedAt,
		TTLMillis:      e.TTLMillis,
		Hits:           e.Hits,
		SizeBytes:      e.SizeBytes,
	}
}

// Put inserts or replaces key/value (§4.4). ttlMillis of 0 applies the
// cache's DefaultTTLMillis; pass a negative value explicitly to mean "no
// TTL" for this entry even if the cache has a default.
func (c *Cache) Put(ctx context.Context, key string, value []byte, ttlMillis int64) error {
	if err := ctx.Err(); err != nil {
		return carbonerr.Wrap(carbonerr.KindTimeout, "put deadline exceeded before start", err)
	}
	if len(key) == 0 || len(key) > MaxKeyBytes {
		return carbonerr.New(carbonerr.KindInvalidArgument, "key length out of bounds")
	}
	if int64(len(value)) > c.maxValueBytes {
		return carbonerr.New(carbonerr.KindInvalidArgument, "value exceeds max_value_bytes")
	}

	effectiveTTL := ttlMillis
	if effectiveTTL == 0 {
		effectiveTTL = c.defaultTTLMillis
	} else if effectiveTTL < 0 {
		effectiveTTL = 0
	}

	now := c.now()
	buf := entry.NewBuffer(value)
	newEntry := entry.New(key, buf, now, effectiveTTL)

	c.mu.Lock()

	old, existed := c.entries[key]
	var oldSize int64
	var oldMeta policy.Meta
	if existed {
		oldSize = old.SizeBytes
		oldMeta = metaOf(old)
	}

	c.entries[key] = newEntry
	c.memBytes += newEntry.SizeBytes - oldSize
	c.pol.OnInsert(key, metaOf(newEntry))

	var evicted []*entry.Entry
	for c.memBytes > c.memBudget {
		victimKey, ok := c.pol.Victim(now)
		if !ok || victimKey == key {
			// Cannot make room without evicting the entry we just inserted:
			// roll back everything this PUT touched, byte for byte, and
			// fail with InsufficientCapacity (§8 testable property).
			for _, ve := range evicted {
				c.entries[ve.Key] = ve
				c.memBytes += ve.SizeBytes
				c.pol.OnInsert(ve.Key, metaOf(ve))
			}
			delete(c.entries, key)
			c.pol.OnRemove(key)
			c.memBytes -= newEntry.SizeBytes
			if existed {
				c.entries[key] = old
				c.memBytes += oldSize
				c.pol.OnInsert(key, oldMeta)
			}
			c.mu.Unlock()
			return carbonerr.ErrInsufficientCapacity
		}
		ve := c.entries[victimKey]
		delete(c.entries, victimKey)
		c.pol.OnRemove(victimKey)
		c.memBytes -= ve.SizeBytes
		evicted = append(evicted, ve)
	}

	c.mu.Unlock()

	c.counters.evictions.Add(int64(len(evicted)))
	for _, ve := range evicted {
		c.metrics.Evict(c.name, reasonFor(c.policyName))
		c.spillOrDrop(ve, now)
	}
	c.publishSize()

	return nil
}

// reasonFor maps the active policy to the metrics label used when it
// produces an eviction victim (TTL-policy evictions are logically TTL
// driven even though they go through the same code path as other policies).
func reasonFor(p PolicyName) EvictReason {
	if p == PolicyTTL {
		return EvictTTL
	}
	return EvictCapacity
}

// spillOrDrop runs outside the cache lock: it decides whether an evicted
// entry should move to the disk tier (§4.2 eviction loop) or be discarded,
// and performs the (potentially slow) disk write without holding c.mu.
func (c *Cache) spillOrDrop(ve *entry.Entry, now int64) {
	defer ve.Value.Release()

	if c.overflow == nil || ve.Expired(now) || !c.overflow.HasRoom(ve.SizeBytes) {
		return
	}
	if _, err := c.overflow.Put(ve.Key, ve.Value.Bytes(), ve.CreatedAt, ve.TTLMillis); err != nil {
		c.log.Warn().Err(err).Str("cache", c.name).Str("key", ve.Key).Msg("overflow write failed, entry dropped")
		return
	}
	c.counters.overflowsIn.Add(1)
	c.metrics.OverflowIn(c.name)
}

// Get returns key's value, checking the memory tier then the disk tier
// (§4.4). Expired entries are removed lazily and count as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*entry.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, carbonerr.Wrap(carbonerr.KindTimeout, "get deadline exceeded", err)
	}
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if !e.Expired(now) {
			e.LastAccessedAt = now
			e.Hits++
			c.pol.OnAccess(key, metaOf(e))
			c.mu.Unlock()
			c.counters.hits.Add(1)
			c.metrics.Hit(c.name)
			return e.Value.Clone(), nil
		}
		delete(c.entries, key)
		c.pol.OnRemove(key)
		c.memBytes -= e.SizeBytes
		c.counters.expirations.Add(1)
		e.Value.Release()
	}
	c.mu.Unlock()

	if c.overflow == nil {
		c.counters.misses.Add(1)
		c.metrics.Miss(c.name)
		return nil, carbonerr.ErrNotFound
	}

	value, meta, found, err := c.overflow.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		c.counters.misses.Add(1)
		c.metrics.Miss(c.name)
		return nil, carbonerr.ErrNotFound
	}
	if meta.TTLMillis > 0 && now >= meta.CreatedAt+meta.TTLMillis*int64(1e6) {
		c.overflow.Delete(key)
		c.counters.expirations.Add(1)
		c.counters.misses.Add(1)
		c.metrics.Miss(c.name)
		return nil, carbonerr.ErrNotFound
	}

	buf := entry.NewBuffer(value)
	c.counters.hits.Add(1)
	c.counters.overflowsOut.Add(1)
	c.metrics.Hit(c.name)
	c.metrics.OverflowOut(c.name)

	c.promote(key, buf, meta, now)
	c.publishSize()

	return buf, nil
}

// promote moves a disk hit back to the memory tier if there is room,
// leaving it on disk (without promotion) otherwise (§4.3).
func (c *Cache) promote(key string, buf *entry.Buffer, meta overflow.Meta, now int64) {
	candSize := entry.SizeOf(key, buf)

	c.mu.Lock()
	if c.memBytes+candSize > c.memBudget {
		c.mu.Unlock()
		return
	}
	ne := &entry.Entry{
		Key:            key,
		Value:          buf.Clone(),
		SizeBytes:      candSize,
		CreatedAt:      meta.CreatedAt,
		LastAccessedAt: now,
		TTLMillis:      meta.TTLMillis,
		Hits:           1,
		Tier:           entry.TierMemory,
	}
	c.entries[key] = ne
	c.memBytes += candSize
	c.pol.OnInsert(key, metaOf(ne))
	c.mu.Unlock()

	c.overflow.Delete(key)
}

// Delete removes key from whichever tier holds it.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return carbonerr.Wrap(carbonerr.KindTimeout, "delete deadline exceeded", err)
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.pol.OnRemove(key)
		c.memBytes -= e.SizeBytes
	}
	c.mu.Unlock()

	if ok {
		e.Value.Release()
		c.publishSize()
		return nil
	}

	if c.overflow != nil {
		existed, err := c.overflow.Delete(key)
		if err != nil {
			return err
		}
		if existed {
			c.publishSize()
			return nil
		}
	}
	return carbonerr.ErrNotFound
}

// Clear removes every entry from both tiers.
func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return carbonerr.Wrap(carbonerr.KindTimeout, "clear deadline exceeded", err)
	}

	c.mu.Lock()
	for _, e := range c.entries {
		e.Value.Release()
	}
	c.entries = make(map[string]*entry.Entry)
	c.memBytes = 0
	c.pol = c.policyNew()
	c.mu.Unlock()

	var err error
	if c.overflow != nil {
		err = c.overflow.Clear()
	}
	c.publishSize()
	return err
}

// Stats returns a counters snapshot (§4.4).
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	mem := c.memBytes
	n := len(c.entries)
	c.mu.Unlock()

	var disk int64
	if c.overflow != nil {
		disk = c.overflow.UsedBytes()
	}

	return Stats{
		Hits:         uint64(c.counters.hits.Load()),
		Misses:       uint64(c.counters.misses.Load()),
		Evictions:    uint64(c.counters.evictions.Load()),
		Expirations:  uint64(c.counters.expirations.Load()),
		OverflowsIn:  uint64(c.counters.overflowsIn.Load()),
		OverflowsOut: uint64(c.counters.overflowsOut.Load()),
		MemBytes:     mem,
		DiskBytes:    disk,
		Entries:      n,
	}
}

func (c *Cache) publishSize() {
	s := c.Stats()
	c.metrics.Size(c.name, s.MemBytes, s.DiskBytes, s.Entries)
}

// Close stops the background sweep goroutine. It does not discard entries;
// a Cache is only ever destroyed by the Registry (§4.5).
func (c *Cache) Close() {
	c.cancelSweep()
	<-c.sweepDone
}

// sweepLoop is the cooperative background task that removes TTL-expired
// entries (§4.4). Work is bounded per tick so it never monopolizes c.mu.
func (c *Cache) sweepLoop(ctx context.Context) {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepTick()
		}
	}
}

const (
	sweepMaxEntriesPerTick = 1024
	sweepMaxDuration       = 5 * time.Millisecond
)

func (c *Cache) sweepTick() {
	now := c.now()
	deadline := time.Now().Add(sweepMaxDuration)

	c.mu.Lock()
	var expired []*entry.Entry
	n := 0
	for k, e := range c.entries {
		if n >= sweepMaxEntriesPerTick || time.Now().After(deadline) {
			break
		}
		n++
		if e.Expired(now) {
			delete(c.entries, k)
			c.pol.OnRemove(k)
			c.memBytes -= e.SizeBytes
			expired = append(expired, e)
		}
	}
	c.mu.Unlock()

	if len(expired) > 0 {
		c.counters.expirations.Add(int64(len(expired)))
		for _, e := range expired {
			e.Value.Release()
		}
		c.publishSize()
	}

	if c.overflow != nil {
		if removed := c.overflow.SweepExpired(now, sweepMaxEntriesPerTick); removed > 0 {
			c.counters.expirations.Add(int64(removed))
		}
	}
}
