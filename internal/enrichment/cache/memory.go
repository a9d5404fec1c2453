package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const DefaultCapacity = 1024

// MemoryStore is a bounded LRU with per-entry expiry. Get and Put are
// atomic with respect to each other.
type MemoryStore struct {
	mu        sync.Mutex
	capacity  int
	ll        *list.List
	items     map[string]*list.Element
	now       func() time.Time
	evictions *atomic.Int64
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity:  capacity,
		ll:        list.New(),
		items:     make(map[string]*list.Element),
		now:       time.Now,
		evictions: atomic.NewInt64(0),
	}
}

// WithClock replaces the wall clock, for tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	e := el.Value.(*Entry)
	if e.Expired(m.now()) {
		m.removeElement(el)
		return nil, ErrMiss
	}
	m.ll.MoveToFront(el)
	return cloneEntry(e), nil
}

func (m *MemoryStore) Put(_ context.Context, e *Entry) error {
	if e == nil || e.TTL <= 0 {
		return nil
	}
	stored := cloneEntry(e)

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[e.Key]; ok {
		el.Value = stored
		m.ll.MoveToFront(el)
		return nil
	}
	m.items[e.Key] = m.ll.PushFront(stored)
	for m.ll.Len() > m.capacity {
		m.removeElement(m.ll.Back())
		m.evictions.Inc()
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.removeElement(el)
	}
	return nil
}

func (m *MemoryStore) removeElement(el *list.Element) {
	m.ll.Remove(el)
	delete(m.items, el.Value.(*Entry).Key)
}

// Len counts stored entries, including expired ones not yet reclaimed.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

// Evictions counts entries dropped for capacity.
func (m *MemoryStore) Evictions() int64 { return m.evictions.Load() }
