package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// LRUStore is a thread-safe LRU session store with TTL support. Used as
// the Community tier backend.
type LRUStore struct {
	mu      sync.RWMutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
}

type storeEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUStore creates an LRU store bounded to maxSize entries.
func NewLRUStore(maxSize int) *LRUStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LRUStore{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves a value. Returns nil, nil for a miss or expired entry.
func (s *LRUStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*storeEntry)
	if time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		return nil, nil
	}

	s.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value with TTL, evicting the least recently used entries
// when over capacity.
func (s *LRUStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.order.MoveToFront(elem)
		entry := elem.Value.(*storeEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		return nil
	}

	entry := &storeEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	elem := s.order.PushFront(entry)
	s.items[key] = elem

	for s.order.Len() > s.maxSize {
		s.removeOldest()
	}
	return nil
}

// Delete removes a value.
func (s *LRUStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
	return nil
}

// Ping always succeeds for the in-process store.
func (s *LRUStore) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries.
func (s *LRUStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order = list.New()
	return nil
}

// Stats returns current size and capacity.
func (s *LRUStore) Stats() (size int, capacity int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len(), s.maxSize
}

func (s *LRUStore) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	entry := elem.Value.(*storeEntry)
	delete(s.items, entry.key)
}

func (s *LRUStore) removeOldest() {
	if elem := s.order.Back(); elem != nil {
		s.removeElement(elem)
	}
}
