package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store abstracts the destination blob store.
// Implementations write to the local filesystem, S3, or stub for testing.
type Store interface {
	// Put writes one object at the given key.
	// The key uses forward slashes regardless of platform.
	Put(ctx context.Context, key string, data []byte) error

	// Close releases any resources held by the store.
	Close() error
}

// FSStore writes objects under a local root directory.
// Partition keys become nested directories.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at the given directory.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

// Put writes the object, creating parent directories as needed.
func (s *FSStore) Put(_ context.Context, key string, data []byte) error {
	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write export object: %w", err)
	}
	return nil
}

// Close is a no-op for filesystem stores.
func (s *FSStore) Close() error {
	return nil
}

// Verify FSStore implements Store.
var _ Store = (*FSStore)(nil)

// StubStore records puts in memory for testing.
type StubStore struct {
	mu sync.Mutex

	// Objects maps keys to written data.
	Objects map[string][]byte
	// Keys records put order.
	Keys []string
	// Closed indicates whether Close was called.
	Closed bool

	// ErrorOnPut, if non-nil, is returned by Put.
	ErrorOnPut error
}

// NewStubStore creates a new stub store for testing.
func NewStubStore() *StubStore {
	return &StubStore{
		Objects: make(map[string][]byte),
	}
}

// Put records the object.
func (s *StubStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnPut != nil {
		return s.ErrorOnPut
	}
	s.Objects[key] = data
	s.Keys = append(s.Keys, key)
	return nil
}

// Close marks the store as closed.
func (s *StubStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Get returns a recorded object.
func (s *StubStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.Objects[key]
	return data, ok
}

// Verify StubStore implements Store.
var _ Store = (*StubStore)(nil)
