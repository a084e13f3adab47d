// Package metrics adapts Carbon's cache, auth, and front-end observability
// hooks onto Prometheus, generalizing the teacher's single-cache
// metrics/prom.Adapter (one set of counters per process) into a
// namespace-labeled adapter suitable for a multi-tenant registry, and
// extending it with the AuthCache session counters and single-flight gauge
// (§4.6 AuthCache). The HTTP request metrics are not part of this package:
// internal/httpapi registers them through echo-contrib/echoprometheus.
package metrics

import (
	"github.com/chirdeeptomar/carbon-cache/internal/cachecore"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cachecore.Metrics, labeling every series by cache name
// so per-namespace behavior stays visible in a multi-tenant process.
type Adapter struct {
	hits         *prometheus.CounterVec
	misses       *prometheus.CounterVec
	evicts       *prometheus.CounterVec
	overflowIn   *prometheus.CounterVec
	overflowOut  *prometheus.CounterVec
	sizeEntries  *prometheus.GaugeVec
	sizeMemBytes *prometheus.GaugeVec
	sizeDiskBytes *prometheus.GaugeVec

	authSessionsIssued prometheus.Counter
	authSessionsReused prometheus.Counter
	authVerifyInflight prometheus.Gauge
}

// New constructs a Prometheus metrics adapter and registers its series with
// reg (prometheus.DefaultRegisterer when reg is nil).
func New(reg prometheus.Registerer) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const ns = "carbon"

	a := &Adapter{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "hits_total", Help: "Cache hits by namespace.",
		}, []string{"cache"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "misses_total", Help: "Cache misses by namespace.",
		}, []string{"cache"}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "evictions_total", Help: "Evictions by namespace and reason.",
		}, []string{"cache", "reason"}),
		overflowIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "overflow_in_total", Help: "Entries spilled to disk by namespace.",
		}, []string{"cache"}),
		overflowOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "overflow_out_total", Help: "Disk-tier hits by namespace.",
		}, []string{"cache"}),
		sizeEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "cache", Name: "size_entries", Help: "Resident entry count by namespace.",
		}, []string{"cache"}),
		sizeMemBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "cache", Name: "size_mem_bytes", Help: "Memory-tier bytes by namespace.",
		}, []string{"cache"}),
		sizeDiskBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "cache", Name: "size_disk_bytes", Help: "Disk-tier bytes by namespace.",
		}, []string{"cache"}),
		authSessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "auth", Name: "sessions_issued_total", Help: "Sessions minted by a fresh credential verification.",
		}),
		authSessionsReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "auth", Name: "sessions_reused_total", Help: "Requests satisfied by an existing session without re-verifying.",
		}),
		authVerifyInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "auth", Name: "verify_inflight", Help: "Argon2 verifications currently running on the blocking pool.",
		}),
	}

	reg.MustRegister(
		a.hits, a.misses, a.evicts, a.overflowIn, a.overflowOut,
		a.sizeEntries, a.sizeMemBytes, a.sizeDiskBytes,
		a.authSessionsIssued, a.authSessionsReused, a.authVerifyInflight,
	)
	return a
}

func (a *Adapter) Hit(cache string)  { a.hits.WithLabelValues(cache).Inc() }
func (a *Adapter) Miss(cache string) { a.misses.WithLabelValues(cache).Inc() }

func (a *Adapter) Evict(cache string, reason cachecore.EvictReason) {
	a.evicts.WithLabelValues(cache, reason.String()).Inc()
}

func (a *Adapter) OverflowIn(cache string)  { a.overflowIn.WithLabelValues(cache).Inc() }
func (a *Adapter) OverflowOut(cache string) { a.overflowOut.WithLabelValues(cache).Inc() }

func (a *Adapter) Size(cache string, memBytes, diskBytes int64, entries int) {
	a.sizeEntries.WithLabelValues(cache).Set(float64(entries))
	a.sizeMemBytes.WithLabelValues(cache).Set(float64(memBytes))
	a.sizeDiskBytes.WithLabelValues(cache).Set(float64(diskBytes))
}

// SessionIssued records a fresh credential verification minting a session
// (§4.6 "x-session-reused: false"). Implements auth.Metrics.
func (a *Adapter) SessionIssued() { a.authSessionsIssued.Inc() }

// SessionReused records a request satisfied without re-verifying.
func (a *Adapter) SessionReused() { a.authSessionsReused.Inc() }

// VerifyStarted/VerifyFinished bracket one Argon2 verification so the
// in-flight gauge tracks single-flight collapsing in real time.
func (a *Adapter) VerifyStarted()  { a.authVerifyInflight.Inc() }
func (a *Adapter) VerifyFinished() { a.authVerifyInflight.Dec() }

var _ cachecore.Metrics = (*Adapter)(nil)
