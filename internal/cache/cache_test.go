package cache

import (
	"testing"
	"time"
)

func newTestManager() (*Manager, *time.Time) {
	m := New(nil)
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return now }
	return m, &now
}

func TestSetThenGetReturnsValue(t *testing.T) {
	m, _ := newTestManager()
	m.Set(TypeAbsenceStreak, "u1", 4, nil)
	got, ok := m.Get(TypeAbsenceStreak, "u1", nil)
	if !ok || got.(int) != 4 {
		t.Fatalf("expected cached 4, got %v ok=%v", got, ok)
	}
}

func TestGetEvictsExpiredEntry(t *testing.T) {
	m, now := newTestManager()
	m.Set(TypeAbsenceStreak, "u1", 4, nil)
	*now = now.Add(TTLFor(TypeAbsenceStreak))
	if _, ok := m.Get(TypeAbsenceStreak, "u1", nil); ok {
		t.Fatalf("expected TTL expiry")
	}
	if stats := m.Stats(); stats.Entries != 0 || stats.Expirations != 1 {
		t.Fatalf("expired entry not evicted: %+v", stats)
	}
}

func TestPerTypeTTLsDiffer(t *testing.T) {
	m, now := newTestManager()
	m.Set(TypeAbsenceStreak, "u1", 4, nil)
	m.Set(TypeGroupAggregate, "g1", 12, nil)
	*now = now.Add(TTLFor(TypeAbsenceStreak))
	if _, ok := m.Get(TypeAbsenceStreak, "u1", nil); ok {
		t.Fatalf("fine-grained entry should have expired")
	}
	if _, ok := m.Get(TypeGroupAggregate, "g1", nil); !ok {
		t.Fatalf("aggregate entry should still be live")
	}
}

func TestParamsDistinguishEntries(t *testing.T) {
	m, _ := newTestManager()
	m.Set(TypeReport, "g1", "q1", map[string]any{"quarter": 1})
	m.Set(TypeReport, "g1", "q2", map[string]any{"quarter": 2})
	got, ok := m.Get(TypeReport, "g1", map[string]any{"quarter": 2})
	if !ok || got.(string) != "q2" {
		t.Fatalf("param variant collision: %v ok=%v", got, ok)
	}
}

func TestClearEntityRemovesAllTypesForEntityOnly(t *testing.T) {
	m, _ := newTestManager()
	m.Set(TypeAbsenceStreak, "u1", 4, nil)
	m.Set(TypeMemberSummary, "u1", "s", map[string]any{"year": 2025})
	m.Set(TypeAbsenceStreak, "u2", 7, nil)

	if removed := m.ClearEntity("u1"); removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	if _, ok := m.Get(TypeAbsenceStreak, "u1", nil); ok {
		t.Fatalf("u1 streak survived ClearEntity")
	}
	if _, ok := m.Get(TypeMemberSummary, "u1", map[string]any{"year": 2025}); ok {
		t.Fatalf("u1 summary survived ClearEntity")
	}
	if _, ok := m.Get(TypeAbsenceStreak, "u2", nil); !ok {
		t.Fatalf("u2 entry should be unaffected")
	}
}

func TestClearAllAndStats(t *testing.T) {
	m, _ := newTestManager()
	m.Set(TypeReport, "g1", 1, nil)
	m.Set(TypeReport, "g2", 2, nil)
	if stats := m.Stats(); stats.Entries != 2 {
		t.Fatalf("expected 2 entries, got %+v", stats)
	}
	m.ClearAll()
	if stats := m.Stats(); stats.Entries != 0 {
		t.Fatalf("ClearAll left entries: %+v", stats)
	}
}

type recordingMetrics struct {
	hits, misses int
	evictions    map[string]int
}

func (r *recordingMetrics) CacheHit(string)  { r.hits++ }
func (r *recordingMetrics) CacheMiss(string) { r.misses++ }
func (r *recordingMetrics) CacheEviction(_, reason string) {
	if r.evictions == nil {
		r.evictions = map[string]int{}
	}
	r.evictions[reason]++
}

func TestRecorderReceivesEvents(t *testing.T) {
	rec := &recordingMetrics{}
	m := New(rec)
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return now }

	m.Get(TypeReport, "g1", nil)
	m.Set(TypeReport, "g1", 1, nil)
	m.Get(TypeReport, "g1", nil)
	now = now.Add(TTLFor(TypeReport))
	m.Get(TypeReport, "g1", nil)

	if rec.hits != 1 || rec.misses != 2 || rec.evictions["ttl"] != 1 {
		t.Fatalf("unexpected recorder state: %+v", rec)
	}
}
