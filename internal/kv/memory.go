package kv

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and single-node setups.
type Memory struct {
	mu      sync.Mutex
	strings map[string]memoryValue
	lists   map[string][]string
	nowFn   func() time.Time
}

type memoryValue struct {
	value     string
	expiresAt time.Time
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string]memoryValue),
		lists:   make(map[string][]string),
		nowFn:   time.Now,
	}
}

// SetNow overrides the clock, letting tests advance past TTLs.
func (m *Memory) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFn = now
}

// Set stores a string value with an optional TTL.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := memoryValue{value: value}
	if ttl > 0 {
		v.expiresAt = m.nowFn().Add(ttl)
	}
	m.strings[key] = v
	return nil
}

// Get returns the live value for key, treating expired entries as absent.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.strings[key]
	if !ok {
		return "", false, nil
	}
	if !v.expiresAt.IsZero() && !m.nowFn().Before(v.expiresAt) {
		delete(m.strings, key)
		return "", false, nil
	}
	return v.value, true, nil
}

// Del removes a string or list entry.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.strings, key)
	delete(m.lists, key)
	return nil
}

// RPush appends to the list at key.
func (m *Memory) RPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[key] = append(m.lists[key], values...)
	return nil
}

// LRange returns the inclusive slice [start, stop] with Redis index rules.
func (m *Memory) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	lo, hi, ok := normalizeRange(start, stop, int64(len(list)))
	if !ok {
		return nil, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, list[lo:hi+1])
	return out, nil
}

// LTrim keeps the inclusive slice [start, stop], deleting the key if the
// range is empty.
func (m *Memory) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	lo, hi, ok := normalizeRange(start, stop, int64(len(list)))
	if !ok {
		delete(m.lists, key)
		return nil
	}
	trimmed := make([]string, hi-lo+1)
	copy(trimmed, list[lo:hi+1])
	m.lists[key] = trimmed
	return nil
}

// Keys returns how many live entries the store holds; tests use it to prove
// a code path never touched the shared store.
func (m *Memory) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.lists)
	now := m.nowFn()
	for _, v := range m.strings {
		if v.expiresAt.IsZero() || now.Before(v.expiresAt) {
			n++
		}
	}
	return n
}

func normalizeRange(start, stop, length int64) (int64, int64, bool) {
	if length == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += length
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += length
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || start >= length {
		return 0, 0, false
	}
	return start, stop, true
}
