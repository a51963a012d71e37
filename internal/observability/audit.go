package observability

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"flockcore/pkg/domain"
)

// AuditEntry is one serialized line of the audit trail.
type AuditEntry struct {
	At       time.Time         `json:"at"`
	Entity   domain.EntityType `json:"entity,omitempty"`
	Action   domain.Action     `json:"action,omitempty"`
	EntityID string            `json:"entity_id,omitempty"`
	Note     string            `json:"note,omitempty"`
}

// AuditTrail serializes data mutations as JSON lines to a writer and retains
// them for inspection. A nil writer keeps entries in memory only.
type AuditTrail struct {
	mu      sync.Mutex
	entries []AuditEntry
	enc     *json.Encoder
	nowFn   func() time.Time
}

// NewAuditTrail constructs a trail writing JSON lines to w.
func NewAuditTrail(w io.Writer) *AuditTrail {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &AuditTrail{
		enc:   enc,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// Record appends an entry for a committed change.
func (t *AuditTrail) Record(change domain.Change) {
	t.append(AuditEntry{
		At:       t.nowFn(),
		Entity:   change.Entity,
		Action:   change.Action,
		EntityID: change.EntityID,
	})
}

// Note appends a free-form entry, used for sync milestones that are not
// tied to a single entity.
func (t *AuditTrail) Note(note string) {
	t.append(AuditEntry{At: t.nowFn(), Note: note})
}

// Entries returns a copy of all recorded entries.
func (t *AuditTrail) Entries() []AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AuditEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *AuditTrail) append(entry AuditEntry) {
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
	t.mu.Unlock()
}
