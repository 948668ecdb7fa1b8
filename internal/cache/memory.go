package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// MemoryBackend keeps encoded entries in process memory. Entries are stored encoded
// so callers never share slices or pointers with the cache.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ ports.CacheBackend = (*MemoryBackend)(nil)

// NewMemoryBackend builds an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: map[string][]byte{}}
}

// Load decodes the entry stored under key.
func (m *MemoryBackend) Load(_ context.Context, key string) (domain.CacheEntry, bool, error) {
	m.mu.RLock()
	raw, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return domain.CacheEntry{}, false, nil
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	return entry, true, nil
}

// Save replaces the entry under entry.Key.
func (m *MemoryBackend) Save(_ context.Context, entry domain.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	m.mu.Lock()
	m.entries[entry.Key] = raw
	m.mu.Unlock()
	return nil
}

// Delete removes key; missing keys are not an error.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeleteAll drops every entry.
func (m *MemoryBackend) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	m.entries = map[string][]byte{}
	m.mu.Unlock()
	return nil
}

// List decodes every stored entry, expired ones included.
func (m *MemoryBackend) List(ctx context.Context) ([]domain.CacheEntry, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	out := make([]domain.CacheEntry, 0, len(keys))
	for _, key := range keys {
		entry, ok, err := m.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}
