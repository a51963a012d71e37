// Package observability exports Prometheus metrics and a JSON audit trail
// for the reconciliation engine and its caches.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers counters for cache traffic, sync outcomes, and remote
// round trips. It satisfies the cache Recorder contract so the cache manager
// can feed it directly.
type Collector struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	syncOutcomes   *prometheus.CounterVec
	conflicts      prometheus.Counter
	recordsMerged  prometheus.Counter
	remoteLatency  prometheus.Histogram
}

// NewCollector builds a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flockcore_cache_hits_total",
			Help: "Cache hits by data type.",
		}, []string{"type"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flockcore_cache_misses_total",
			Help: "Cache misses by data type.",
		}, []string{"type"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flockcore_cache_evictions_total",
			Help: "Cache evictions by data type and reason (ttl, entity, type).",
		}, []string{"type", "reason"}),
		syncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flockcore_sync_total",
			Help: "Reconciliation passes by outcome (success, degraded, error).",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flockcore_merge_conflicts_total",
			Help: "Field-level conflicts surfaced during three-way merges.",
		}),
		recordsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flockcore_records_merged_total",
			Help: "Attendance records merged in from the remote tree.",
		}),
		remoteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flockcore_remote_latency_seconds",
			Help:    "Latency of remote tree round trips.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.cacheEvictions,
		c.syncOutcomes,
		c.conflicts,
		c.recordsMerged,
		c.remoteLatency,
	)

	return c
}

func (c *Collector) CacheHit(typ string) {
	c.cacheHits.WithLabelValues(typ).Inc()
}

func (c *Collector) CacheMiss(typ string) {
	c.cacheMisses.WithLabelValues(typ).Inc()
}

func (c *Collector) CacheEviction(typ, reason string) {
	c.cacheEvictions.WithLabelValues(typ, reason).Inc()
}

// RecordSync counts a reconciliation pass by outcome.
func (c *Collector) RecordSync(outcome string) {
	c.syncOutcomes.WithLabelValues(outcome).Inc()
}

// RecordConflicts counts field-level merge conflicts.
func (c *Collector) RecordConflicts(count int) {
	c.conflicts.Add(float64(count))
}

// RecordRecordsMerged counts attendance records adopted from the remote.
func (c *Collector) RecordRecordsMerged(count int) {
	c.recordsMerged.Add(float64(count))
}

// RecordRemoteLatency observes one remote round trip.
func (c *Collector) RecordRemoteLatency(duration time.Duration) {
	c.remoteLatency.Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
