package localstore

import (
	"encoding/json"
	"sync"
)

// Memory is the in-memory Store used by tests and ephemeral sessions.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]json.RawMessage
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]json.RawMessage)}
}

// Load returns the stored blob, or absent for missing or invalid payloads.
func (m *Memory) Load(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.blobs[key]
	if !ok || !json.Valid(raw) {
		return nil, false
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, true
}

// Save replaces the blob under key with the JSON encoding of value.
func (m *Memory) Save(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

// Delete removes the blob under key. Missing keys are ignored.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error { return nil }

// Corrupt overwrites a blob with non-JSON bytes. Test hook for exercising
// the treat-corruption-as-absent contract.
func (m *Memory) Corrupt(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = json.RawMessage(`{not json`)
}
