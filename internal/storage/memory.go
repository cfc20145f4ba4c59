package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/set-night/mindchat/internal/domain"
)

const memoryScheme = "mem"

type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Scheme() string { return memoryScheme }

func (s *MemoryStore) Put(_ context.Context, owner domain.UserID, name, _ string, r io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	key := ObjectKey(owner, name)
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return memoryScheme + "://" + key, nil
}

func (s *MemoryStore) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	key, ok := strings.CutPrefix(locator, memoryScheme+"://")
	if !ok {
		return nil, fmt.Errorf("not a memory locator: %q", locator)
	}
	s.mu.RLock()
	data, found := s.objects[key]
	s.mu.RUnlock()
	if !found {
		return nil, domain.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Owns(locator string, owner domain.UserID) bool {
	key, ok := strings.CutPrefix(locator, memoryScheme+"://")
	return ok && ownsKey(key, owner)
}
