package relay

import (
	"maps"
	"sync"
)

// PageStore is the string-only storage a page relay fronts.
type PageStore interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string)
	RemoveItem(key string)
	All() map[string]string
}

type MemoryPageStore struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryPageStore(initial map[string]string) *MemoryPageStore {
	items := make(map[string]string, len(initial))
	maps.Copy(items, initial)
	return &MemoryPageStore{items: items}
}

func (s *MemoryPageStore) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *MemoryPageStore) SetItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

func (s *MemoryPageStore) RemoveItem(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

func (s *MemoryPageStore) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.items)
}
