// Package workerpool provides a generic, bounded-concurrency worker pool
// with context support, generalized from the retrieval pack's workerpool
// idiom into a sharded, submit-and-wait shape so a caller can block on the
// result of one task (as Carbon's AuthCache does for Argon2 verification,
// §5 "executed on a blocking worker pool so it does not stall the async
// runtime").
package workerpool

import (
	"context"
	"sync"

	"github.com/chirdeeptomar/carbon-cache/internal/util"
)

type job struct {
	ctx  context.Context
	fn   func() error
	done chan error
}

// Pool is a fixed-size set of worker goroutines, sharded into independent
// queues so that submissions keyed by the same string are always served in
// submission order by the same worker, while unrelated keys spread across
// the pool. Safe for concurrent use.
type Pool struct {
	shards []chan job
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// Option configures a Pool at construction.
type Option func(*config)

type config struct {
	shards     int
	bufferSize int
}

// WithShards sets the number of independent worker queues, rounded up to a
// power of two by New. Default: util.ReasonableShardCount().
func WithShards(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithBufferSize sets the per-shard queue depth before Submit blocks.
// Default: 8.
func WithBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// New starts a Pool. Workers do not stop when ctx is cancelled; they run
// until Shutdown closes their queues. Each job's own context is checked
// before the job runs.
func New(ctx context.Context, opts ...Option) *Pool {
	cfg := &config{shards: util.ReasonableShardCount(), bufferSize: 8}
	for _, opt := range opts {
		opt(cfg)
	}
	n := util.NextPow2(uint64(cfg.shards))

	workerCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		shards: make([]chan job, n),
		cancel: cancel,
	}
	for i := range p.shards {
		p.shards[i] = make(chan job, cfg.bufferSize)
		p.wg.Add(1)
		go p.worker(workerCtx, p.shards[i])
	}
	return p
}

func (p *Pool) worker(ctx context.Context, jobs chan job) {
	defer p.wg.Done()
	for j := range jobs {
		select {
		case <-j.ctx.Done():
			j.done <- j.ctx.Err()
		default:
			j.done <- j.fn()
		}
	}
	_ = ctx
}

// Submit runs fn on the shard selected by hashing key, and blocks until fn
// returns or ctx is cancelled. Different keys are spread across shards by
// hash (two keys may share a shard); same-key callers serialize on one worker.
func (p *Pool) Submit(ctx context.Context, key string, fn func() error) error {
	idx := util.ShardIndex(util.Fnv64a(key), len(p.shards))
	done := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, done: done}

	select {
	case p.shards[idx] <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes every shard and waits for in-flight jobs to finish. Safe
// to call once; a second call is a no-op.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		for _, ch := range p.shards {
			close(ch)
		}
	})
	p.wg.Wait()
	p.cancel()
}
