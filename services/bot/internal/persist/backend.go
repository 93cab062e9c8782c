// Package persist loads and saves the catalog and user-state documents.
//
// Documents are JSON blobs stored by name in a Backend. Loading runs every
// document through the migration chain in migrate.go, so any historical
// on-disk shape comes back in the current one.
package persist

import (
	"context"
	"errors"
	"sync"
)

// ErrNotExist is returned by a Backend for a document that was never written.
var ErrNotExist = errors.New("document does not exist")

type Backend interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
}

// InMemoryBackend keeps documents in process memory. Used by tests and local runs.
type InMemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{docs: map[string][]byte{}}
}

func (b *InMemoryBackend) Read(_ context.Context, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.docs[name]
	if !ok {
		return nil, ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (b *InMemoryBackend) Write(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[name] = append([]byte(nil), data...)
	return nil
}

var (
	_ Backend = (*InMemoryBackend)(nil)
	_ Backend = (*FileBackend)(nil)
	_ Backend = (*PostgresBackend)(nil)
	_ Backend = (*RedisBackend)(nil)
)
