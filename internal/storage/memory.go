package storage

import (
	"container/list"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryKV is an in-process LRU map with per-entry absolute expiry and
// size-based eviction.
type MemoryKV struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
}

type memoryItem struct {
	key       string
	value     string
	expiresAt time.Time
}

var (
	_ KV      = (*MemoryKV)(nil)
	_ Cleaner = (*MemoryKV)(nil)
)

// NewMemoryKV creates a memory store holding at most maxSize keys.
// A nil clock uses the real clock.
func NewMemoryKV(maxSize int, clock clockwork.Clock) *MemoryKV {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &MemoryKV{
		clock:   clock,
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get retrieves a live value, dropping it if it has expired.
func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, exists := m.items[key]
	if !exists {
		return "", false, nil
	}

	item := elem.Value.(*memoryItem)
	if m.clock.Now().After(item.expiresAt) {
		m.removeElement(elem)
		return "", false, nil
	}

	m.lru.MoveToFront(elem)
	return item.value, true, nil
}

// Set stores a value, evicting the least recently used key when full.
func (m *MemoryKV) Set(_ context.Context, key, value string, expiresAt time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &memoryItem{key: key, value: value, expiresAt: expiresAt}

	if elem, exists := m.items[key]; exists {
		elem.Value = item
		m.lru.MoveToFront(elem)
		return nil
	}

	m.items[key] = m.lru.PushFront(item)

	if m.lru.Len() > m.maxSize {
		if oldest := m.lru.Back(); oldest != nil {
			m.removeElement(oldest)
		}
	}
	return nil
}

// Delete removes a key if present.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, exists := m.items[key]; exists {
		m.removeElement(elem)
	}
	return nil
}

// Keys returns the live keys with the given prefix in lexical order.
func (m *MemoryKV) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var keys []string
	for key, elem := range m.items {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if now.After(elem.Value.(*memoryItem).expiresAt) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// CleanExpired removes all expired entries and returns how many were removed.
func (m *MemoryKV) CleanExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var toRemove []*list.Element
	for elem := m.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*memoryItem).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		m.removeElement(elem)
	}
	return len(toRemove)
}

// Size returns the number of stored entries, expired or not.
func (m *MemoryKV) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryKV) Close() error { return nil }

func (m *MemoryKV) removeElement(elem *list.Element) {
	item := elem.Value.(*memoryItem)
	delete(m.items, item.key)
	m.lru.Remove(elem)
}
