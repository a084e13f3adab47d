package cachecore

import (
	"time"

	"github.com/chirdeeptomar/carbon-cache/internal/policy"
	"github.com/chirdeeptomar/carbon-cache/internal/policy/fifo"
	"github.com/chirdeeptomar/carbon-cache/internal/policy/lfu"
	"github.com/chirdeeptomar/carbon-cache/internal/policy/lru"
	"github.com/chirdeeptomar/carbon-cache/internal/policy/size"
	"github.com/chirdeeptomar/carbon-cache/internal/policy/ttl"
	"github.com/rs/zerolog"
)

// MaxKeyBytes is the hard cap on key length (§3).
const MaxKeyBytes = 64 * 1024

// DefaultMaxValueBytes is the engine-wide default value size cap (§3).
const DefaultMaxValueBytes = 1 * 1024 * 1024

// DefaultSweepInterval is how often the background TTL sweep runs (§4.4).
const DefaultSweepInterval = time.Second

// PolicyName identifies one of the five eviction strategies a cache may use.
type PolicyName string

const (
	PolicyTTL  PolicyName = "ttl"
	PolicyLRU  PolicyName = "lru"
	PolicyLFU  PolicyName = "lfu"
	PolicyFIFO PolicyName = "fifo"
	PolicySize PolicyName = "size"
)

// Factory resolves a PolicyName to a policy.Factory, defaulting to LRU for
// unknown names (callers should validate PolicyName before construction;
// Registry does this at create() time, per §4.5).
func (n PolicyName) Factory() policy.Factory {
	switch n {
	case PolicyTTL:
		return ttl.New()
	case PolicyLFU:
		return lfu.New()
	case PolicyFIFO:
		return fifo.New()
	case PolicySize:
		return size.New()
	default:
		return lru.New()
	}
}

// Valid reports whether n names one of the five supported strategies.
func (n PolicyName) Valid() bool {
	switch n {
	case PolicyTTL, PolicyLRU, PolicyLFU, PolicyFIFO, PolicySize:
		return true
	default:
		return false
	}
}

// Clock provides time in UnixNano; overridable for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures one namespace Cache (§3 "Cache (namespace)").
type Options struct {
	Name             string
	Policy           PolicyName
	MemBudgetBytes   int64
	DiskBudgetBytes  int64 // 0 disables disk overflow
	OverflowDir      string
	RebuildOverflow  bool
	DefaultTTLMillis int64
	MaxValueBytes    int64
	SweepInterval    time.Duration

	Metrics Metrics
	Clock   Clock
	Logger  zerolog.Logger
}
