// Package store persists small JSON documents (permissions, uptime,
// user memory) under string keys. Documents are always rewritten whole.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Store is the interface for persistence backends.
type Store interface {
	// Load decodes the document stored under key into v. It reports false
	// when no document exists.
	Load(ctx context.Context, key string, v any) (bool, error)
	// Save replaces the document stored under key.
	Save(ctx context.Context, key string, v any) error
}

// Memory keeps documents in process. It is used in tests and when no
// durable backend is configured.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
	// Err, when set, is returned by every Save.
	Err error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, key string, v any) (bool, error) {
	m.mu.RLock()
	data, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, key string, v any) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.docs[key] = data
	m.mu.Unlock()
	return nil
}

// Raw returns the stored bytes for key.
func (m *Memory) Raw(key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs[key]
}
