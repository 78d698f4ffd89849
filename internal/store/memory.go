// ABOUTME: In-memory BlobStore for tests and the "memory" driver
// ABOUTME: Copies bytes on the way in and out so callers cannot alias stored data

package store

import (
	"context"
	"sync"
)

// MemoryBlobStore is an in-memory BlobStore implementation.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	puts  int
}

// NewMemoryBlobStore creates an empty MemoryBlobStore.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs: make(map[string][]byte),
	}
}

// Get returns a copy of the blob under key.
func (m *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data under key.
func (m *MemoryBlobStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[key] = append([]byte(nil), data...)
	m.puts++
	return nil
}

// Delete removes key.
func (m *MemoryBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, key)
	return nil
}

// Puts reports how many writes the store has accepted.
func (m *MemoryBlobStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Close is a no-op.
func (m *MemoryBlobStore) Close() error {
	return nil
}
