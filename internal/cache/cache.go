// Package cache provides the unified TTL memoization layer for derived
// computations (absence streaks, report aggregates). Correctness relies on
// check-on-read expiry plus explicit invalidation on mutation; there is no
// background sweeper, since timers cannot be trusted once the hosting
// process is backgrounded.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// DataType partitions cached payloads and selects their TTL.
type DataType string

// Cached computation families. List-level aggregates change less often than
// per-member calculations, so they live longer.
const (
	TypeAbsenceStreak  DataType = "absence_streak"
	TypeMemberSummary  DataType = "member_summary"
	TypeGroupAggregate DataType = "group_aggregate"
	TypeReport         DataType = "report"
)

// Per-type TTLs. Unknown types fall back to DefaultTTL.
var ttlByType = map[DataType]time.Duration{
	TypeAbsenceStreak:  5 * time.Minute,
	TypeMemberSummary:  5 * time.Minute,
	TypeGroupAggregate: 30 * time.Minute,
	TypeReport:         30 * time.Minute,
}

// DefaultTTL applies to data types without an explicit entry.
const DefaultTTL = 10 * time.Minute

// TTLFor returns the configured TTL for a data type.
func TTLFor(typ DataType) time.Duration {
	if ttl, ok := ttlByType[typ]; ok {
		return ttl
	}
	return DefaultTTL
}

// Recorder receives cache events for metrics export. A nil recorder is
// valid and drops everything.
type Recorder interface {
	CacheHit(typ string)
	CacheMiss(typ string)
	CacheEviction(typ, reason string)
}

type entryKey struct {
	Type     DataType
	EntityID string
	Params   string
}

type entry struct {
	value     any
	createdAt time.Time
}

// Manager is the process-wide cache instance. Construct one explicitly and
// pass it to consumers; there is no package-level singleton.
type Manager struct {
	mu       sync.Mutex
	entries  map[entryKey]entry
	counters counters
	nowFn    func() time.Time
	metrics  Recorder
}

// Stats is a point-in-time view of cache occupancy and traffic.
type Stats struct {
	Entries       int
	Hits          int64
	Misses        int64
	Expirations   int64
	Invalidations int64
}

type counters struct {
	hits, misses, expirations, invalidations int64
}

// New constructs a cache manager. The recorder may be nil.
func New(metrics Recorder) *Manager {
	return &Manager{
		entries: make(map[entryKey]entry),
		nowFn:   func() time.Time { return time.Now().UTC() },
		metrics: metrics,
	}
}

// Get returns the cached payload for (type, entity, params), or nil/false if
// absent or past its TTL. Expired entries are evicted on access.
func (m *Manager) Get(typ DataType, entityID string, params map[string]any) (any, bool) {
	key := makeKey(typ, entityID, params)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		m.counters.misses++
		m.record(func(r Recorder) { r.CacheMiss(string(typ)) })
		return nil, false
	}
	if m.nowFn().Sub(e.createdAt) >= TTLFor(typ) {
		delete(m.entries, key)
		m.counters.misses++
		m.counters.expirations++
		m.record(func(r Recorder) {
			r.CacheMiss(string(typ))
			r.CacheEviction(string(typ), "ttl")
		})
		return nil, false
	}
	m.counters.hits++
	m.record(func(r Recorder) { r.CacheHit(string(typ)) })
	return e.value, true
}

// Set stores a payload under (type, entity, params), replacing any previous
// entry and restarting its TTL.
func (m *Manager) Set(typ DataType, entityID string, value any, params map[string]any) {
	key := makeKey(typ, entityID, params)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, createdAt: m.nowFn()}
}

// ClearEntity removes every entry whose key references the entity, across
// all data types and parameter variants.
func (m *Manager) ClearEntity(entityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.entries {
		if key.EntityID == entityID {
			delete(m.entries, key)
			removed++
			m.counters.invalidations++
			m.record(func(r Recorder) { r.CacheEviction(string(key.Type), "entity") })
		}
	}
	return removed
}

// ClearType removes every entry of one data type.
func (m *Manager) ClearType(typ DataType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.entries {
		if key.Type == typ {
			delete(m.entries, key)
			removed++
			m.counters.invalidations++
			m.record(func(r Recorder) { r.CacheEviction(string(typ), "type") })
		}
	}
	return removed
}

// ClearAll resets the cache.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	m.entries = make(map[entryKey]entry)
	m.counters.invalidations += int64(n)
}

// Stats returns current occupancy and counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Entries:       len(m.entries),
		Hits:          m.counters.hits,
		Misses:        m.counters.misses,
		Expirations:   m.counters.expirations,
		Invalidations: m.counters.invalidations,
	}
}

func (m *Manager) record(fn func(Recorder)) {
	if m.metrics != nil {
		fn(m.metrics)
	}
}

// makeKey digests params deterministically; encoding/json sorts map keys so
// equal parameter maps always produce equal digests.
func makeKey(typ DataType, entityID string, params map[string]any) entryKey {
	digest := ""
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			digest = string(data)
		}
	}
	return entryKey{Type: typ, EntityID: entityID, Params: digest}
}
