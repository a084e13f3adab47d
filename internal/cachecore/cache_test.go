package cachecore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  int64
}

func (f *fakeClock) NowUnixNano() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) add(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t += int64(d)
}

func newTestCache(t *testing.T, opt Options) *Cache {
	t.Helper()
	if opt.Name == "" {
		opt.Name = "test"
	}
	c, err := New(opt)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCache_PutGetDelete(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{Policy: PolicyLRU, MemBudgetBytes: 1 << 20})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", []byte("1"), 0))

	buf, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", string(buf.Bytes()))
	buf.Release()

	require.NoError(t, c.Delete(ctx, "a"))

	_, err = c.Get(ctx, "a")
	require.Error(t, err)

	require.Error(t, c.Delete(ctx, "a"))
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newTestCache(t, Options{Policy: PolicyTTL, MemBudgetBytes: 1 << 20, Clock: clk})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "x", []byte("v"), 100))

	buf, err := c.Get(ctx, "x")
	require.NoError(t, err)
	buf.Release()

	clk.add(200 * time.Millisecond)

	_, err = c.Get(ctx, "x")
	require.Error(t, err)
}

// Budget sized for exactly two entries: forces a deterministic
// eviction order under LRU.
func TestCache_LRUEvictionOrder(t *testing.T) {
	t.Parallel()

	entrySize := entrySizeFor("a", "1")
	c := newTestCache(t, Options{Policy: PolicyLRU, MemBudgetBytes: entrySize * 2})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", []byte("1"), 0)) // LRU
	require.NoError(t, c.Put(ctx, "b", []byte("1"), 0)) // MRU

	buf, err := c.Get(ctx, "a") // promotes a
	require.NoError(t, err)
	buf.Release()

	require.NoError(t, c.Put(ctx, "c", []byte("1"), 0)) // must evict b

	_, err = c.Get(ctx, "b")
	require.Error(t, err, "b must be evicted")

	buf, err = c.Get(ctx, "a")
	require.NoError(t, err, "a must survive (promoted)")
	buf.Release()

	buf, err = c.Get(ctx, "c")
	require.NoError(t, err)
	buf.Release()
}

// Putting a single oversized value into an already-full cache must not
// evict anything: the whole operation rolls back byte for byte.
func TestCache_InsufficientCapacityRollback(t *testing.T) {
	t.Parallel()

	entrySize := entrySizeFor("a", "1")
	c := newTestCache(t, Options{Policy: PolicyLRU, MemBudgetBytes: entrySize})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", []byte("1"), 0))
	statsBefore := c.Stats()

	err := c.Put(ctx, "huge", make([]byte, entrySize*4), 0)
	require.Error(t, err)

	statsAfter := c.Stats()
	require.Equal(t, statsBefore.Entries, statsAfter.Entries)
	require.Equal(t, statsBefore.MemBytes, statsAfter.MemBytes)

	buf, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", string(buf.Bytes()))
	buf.Release()

	_, err = c.Get(ctx, "huge")
	require.Error(t, err)
}

func TestCache_DiskOverflowRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	entrySize := entrySizeFor("a", "1")
	c := newTestCache(t, Options{
		Policy:          PolicyLRU,
		MemBudgetBytes:  entrySize, // room for exactly one in-memory entry
		DiskBudgetBytes: 1 << 20,
		OverflowDir:     dir,
	})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Put(ctx, "b", []byte("1"), 0)) // evicts a to disk

	stats := c.Stats()
	require.EqualValues(t, 1, stats.OverflowsIn)

	buf, err := c.Get(ctx, "a") // disk hit; memory is full with b, so served without promotion
	require.NoError(t, err)
	require.Equal(t, "1", string(buf.Bytes()))
	buf.Release()

	stats = c.Stats()
	require.EqualValues(t, 1, stats.OverflowsOut)
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{Policy: PolicyLRU, MemBudgetBytes: 1 << 20})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Put(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Clear(ctx))

	stats := c.Stats()
	require.Zero(t, stats.Entries)
	require.Zero(t, stats.MemBytes)

	_, err := c.Get(ctx, "a")
	require.Error(t, err)
}

func TestCache_ConcurrentPutGet(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{Policy: PolicyLRU, MemBudgetBytes: 1 << 20})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%8)
			require.NoError(t, c.Put(ctx, key, []byte("v"), 0))
			if buf, err := c.Get(ctx, key); err == nil {
				buf.Release()
			}
		}()
	}
	wg.Wait()
}

func entrySizeFor(key, value string) int64 {
	return int64(len(key)) + int64(len(value)) + 64 // entry.OverheadPerEntry
}
