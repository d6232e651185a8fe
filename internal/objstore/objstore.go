// Package objstore abstracts the object storage that holds product
// media. The transport is an external collaborator; the core only needs
// put and delete.
package objstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

// MemoryStore keeps objects in process memory; the default for local
// runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := "media/" + uuid.NewString()
	s.objects[path] = data
	return path, nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[path]; !ok {
		return fmt.Errorf("object %s not found", path)
	}
	delete(s.objects, path)
	return nil
}
