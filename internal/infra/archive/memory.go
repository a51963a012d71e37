package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is the in-memory store used in tests.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memoryEntry
}

type memoryEntry struct {
	payload []byte
	info    Info
}

func NewMemory() *Memory {
	return &Memory{blobs: map[string]memoryEntry{}}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(ctx context.Context, key string, payload []byte) (Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[k]; ok {
		return Info{}, ErrExists
	}
	sum := sha256.Sum256(payload)
	info := Info{Key: k, Size: int64(len(payload)), ETag: hex.EncodeToString(sum[:]), CreatedAt: time.Now().UTC()}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.blobs[k] = memoryEntry{payload: stored, info: info}
	return info, nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return nil, Info{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.blobs[k]
	if !ok {
		return nil, Info{}, ErrNotFound
	}
	out := make([]byte, len(entry.payload))
	copy(out, entry.payload)
	return out, entry.info, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var infos []Info
	for key, entry := range m.blobs {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			infos = append(infos, entry.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[k]; !ok {
		return false, nil
	}
	delete(m.blobs, k)
	return true, nil
}
