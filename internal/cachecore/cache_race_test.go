package cachecore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Run with -race: every goroutine below mixes reads, writes, deletes, and
// stats snapshots against the same namespace and overlapping keys, so the test is
// only meaningful as a data-race detector, not as a correctness oracle.
func TestCache_RaceMixedOps(t *testing.T) {
	for _, pol := range []PolicyName{PolicyLRU, PolicyLFU, PolicyFIFO, PolicySize, PolicyTTL} {
		pol := pol
		t.Run(string(pol), func(t *testing.T) {
			t.Parallel()

			c := newTestCache(t, Options{Policy: pol, MemBudgetBytes: 4 << 10})
			ctx := context.Background()

			var wg sync.WaitGroup
			const goroutines = 64
			const opsEach = 200

			for g := 0; g < goroutines; g++ {
				g := g
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < opsEach; i++ {
						key := fmt.Sprintf("k%d", (g+i)%16)
						switch i % 4 {
						case 0:
							_ = c.Put(ctx, key, []byte("payload"), 0)
						case 1:
							if buf, err := c.Get(ctx, key); err == nil {
								_ = buf.Bytes()
								buf.Release()
							}
						case 2:
							_ = c.Delete(ctx, key)
						case 3:
							_ = c.Stats()
						}
					}
				}()
			}
			wg.Wait()
		})
	}
}

// Concurrent Clear alongside Put/Get must never panic or corrupt the
// byte-accounting invariants, even though Clear can race an in-flight Put.
func TestCache_RaceClearDuringTraffic(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{Policy: PolicyLRU, MemBudgetBytes: 4 << 10})
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			key := fmt.Sprintf("k%d", i%8)
			_ = c.Put(ctx, key, []byte("v"), 0)
			if buf, err := c.Get(ctx, key); err == nil {
				buf.Release()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		require.NoError(t, c.Clear(ctx))
	}
	close(stop)
	wg.Wait()

	stats := c.Stats()
	require.GreaterOrEqual(t, stats.Entries, 0)
	require.GreaterOrEqual(t, stats.MemBytes, int64(0))
}
