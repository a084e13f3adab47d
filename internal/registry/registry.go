// Package registry implements Carbon's process-wide directory of named
// caches (§4.5): create/describe/list/delete of namespaces, shared by both
// front ends. The Registry is an explicit handle, not an ambient global
// (§9 "Global mutable state"), so tests can instantiate isolated engines.
package registry

import (
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/chirdeeptomar/carbon-cache/internal/cachecore"
	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
	"github.com/rs/zerolog"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)

// ValidName reports whether name satisfies the namespace naming rule (§3).
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Spec describes a namespace to create (§4.5).
type Spec struct {
	Name             string
	Policy           cachecore.PolicyName
	MemBudgetBytes   int64
	DiskBudgetBytes  int64
	DefaultTTLMillis int64
}

// Description is the read-only view returned by Describe/List.
type Description struct {
	Name             string
	Policy           cachecore.PolicyName
	MemBudgetBytes   int64
	DiskBudgetBytes  int64
	DefaultTTLMillis int64
	CreatedAt        int64
	Draining         bool
	Stats            cachecore.Stats
}

type handle struct {
	cache     *cachecore.Cache
	spec      Spec
	createdAt int64
	draining  bool
}

// Registry is the process-wide cache directory. Create/Delete are
// infrequent and fully serialized under one mutex; Get/List are the hot
// path and only need the read side of it (§4.5).
type Registry struct {
	mu            sync.RWMutex
	caches        map[string]*handle
	dir           string // base directory for per-cache overflow subdirectories
	clock         cachecore.Clock
	mx            cachecore.Metrics
	log           zerolog.Logger
	sweepInterval time.Duration
}

// Option configures the Registry at construction.
type Option func(*Registry)

// WithOverflowBaseDir sets the parent directory under which each cache's
// disk overflow subdirectory (named after the cache) is created.
func WithOverflowBaseDir(dir string) Option {
	return func(r *Registry) { r.dir = dir }
}

// WithClock overrides the time source used by every cache the registry creates.
func WithClock(c cachecore.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithMetrics sets the Metrics adapter every created cache reports to.
func WithMetrics(m cachecore.Metrics) Option {
	return func(r *Registry) { r.mx = m }
}

// WithLogger sets the logger every created cache uses.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithSweepInterval overrides the background TTL sweep cadence every
// created cache uses (§4.4; cachecore.DefaultSweepInterval otherwise).
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) { r.sweepInterval = d }
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{caches: make(map[string]*handle)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) now() int64 {
	if r.clock != nil {
		return r.clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// Create registers a new namespace. Returns AlreadyExists if name is taken,
// InvalidArgument if name or budgets are malformed (§4.5).
func (r *Registry) Create(spec Spec) error {
	if !ValidName(spec.Name) {
		return carbonerr.New(carbonerr.KindInvalidArgument, "invalid cache name")
	}
	if !spec.Policy.Valid() {
		return carbonerr.New(carbonerr.KindInvalidArgument, "invalid eviction policy")
	}
	if spec.MemBudgetBytes <= 0 {
		return carbonerr.New(carbonerr.KindInvalidArgument, "mem_bytes must be > 0")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caches[spec.Name]; exists {
		return carbonerr.ErrAlreadyExists
	}

	opt := cachecore.Options{
		Name:             spec.Name,
		Policy:           spec.Policy,
		MemBudgetBytes:   spec.MemBudgetBytes,
		DiskBudgetBytes:  spec.DiskBudgetBytes,
		DefaultTTLMillis: spec.DefaultTTLMillis,
		Clock:            r.clock,
		Metrics:          r.mx,
		Logger:           r.log,
		SweepInterval:    r.sweepInterval,
	}
	if spec.DiskBudgetBytes > 0 && r.dir != "" {
		opt.OverflowDir = filepath.Join(r.dir, spec.Name)
		opt.RebuildOverflow = true
	}

	c, err := cachecore.New(opt)
	if err != nil {
		return err
	}

	r.caches[spec.Name] = &handle{cache: c, spec: spec, createdAt: r.now()}
	return nil
}

// Get returns the live Cache handle for name, or NotFound if it does not
// exist or is draining (§4.5 "subsequent get(name) returns NotFound").
func (r *Registry) Get(name string) (*cachecore.Cache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.caches[name]
	if !ok || h.draining {
		return nil, carbonerr.ErrNotFound
	}
	return h.cache, nil
}

// Describe returns metadata and a stats snapshot for one namespace.
func (r *Registry) Describe(name string) (Description, error) {
	r.mu.RLock()
	h, ok := r.caches[name]
	r.mu.RUnlock()
	if !ok {
		return Description{}, carbonerr.ErrNotFound
	}
	return toDescription(h), nil
}

// List returns metadata for every non-draining namespace, sorted by name is
// left to the caller; order here is unspecified map iteration order.
func (r *Registry) List() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Description, 0, len(r.caches))
	for _, h := range r.caches {
		if h.draining {
			continue
		}
		out = append(out, toDescription(h))
	}
	return out
}

func toDescription(h *handle) Description {
	return Description{
		Name:             h.spec.Name,
		Policy:           h.spec.Policy,
		MemBudgetBytes:   h.spec.MemBudgetBytes,
		DiskBudgetBytes:  h.spec.DiskBudgetBytes,
		DefaultTTLMillis: h.spec.DefaultTTLMillis,
		CreatedAt:        h.createdAt,
		Draining:         h.draining,
		Stats:            h.cache.Stats(),
	}
}

// Delete marks name as draining and removes it from the directory.
// In-flight operations against an already-obtained *cachecore.Cache handle
// continue to run to completion. Delete calls Close on the cache before it
// returns, stopping its background sweep at once; it does not track or wait
// for callers still holding a handle. Returns NotFound if name is unknown or
// already draining (§4.5).
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	h, ok := r.caches[name]
	if !ok || h.draining {
		r.mu.Unlock()
		return carbonerr.ErrNotFound
	}
	h.draining = true
	delete(r.caches, name)
	r.mu.Unlock()

	h.cache.Close()
	return nil
}

// Names returns the set of active (non-draining) namespace names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.caches))
	for name, h := range r.caches {
		if !h.draining {
			out = append(out, name)
		}
	}
	return out
}
