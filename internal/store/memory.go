package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	updated time.Time
}

// Memory is an in-process Backend. Contents are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	scopes map[string]map[string]memoryEntry
	now    func() time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		scopes: make(map[string]map[string]memoryEntry),
		now:    time.Now,
	}
}

// Scope implements Backend.
func (m *Memory) Scope(name string) Store {
	return &memoryScope{mem: m, scope: name}
}

// CleanupSessionScopes implements Backend.
func (m *Memory) CleanupSessionScopes(_ context.Context, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := m.now().Add(-ttl)
	var deleted int64
	for name, entries := range m.scopes {
		if !strings.HasPrefix(name, sessionScopePrefix) {
			continue
		}
		for key, e := range entries {
			if e.updated.Before(threshold) {
				delete(entries, key)
				deleted++
			}
		}
		if len(entries) == 0 {
			delete(m.scopes, name)
		}
	}
	return deleted, nil
}

// Ping implements Backend.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Backend.
func (m *Memory) Close() error { return nil }

type memoryScope struct {
	mem   *Memory
	scope string
}

func (s *memoryScope) Get(_ context.Context, key string) (string, bool, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	e, ok := s.mem.scopes[s.scope][key]
	if ok {
		e.updated = s.mem.now()
		s.mem.scopes[s.scope][key] = e
	}
	return e.value, ok, nil
}

func (s *memoryScope) Set(_ context.Context, key, value string) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	entries, ok := s.mem.scopes[s.scope]
	if !ok {
		entries = make(map[string]memoryEntry)
		s.mem.scopes[s.scope] = entries
	}
	entries[key] = memoryEntry{value: value, updated: s.mem.now()}
	return nil
}

func (s *memoryScope) Clear(_ context.Context, key string) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if entries, ok := s.mem.scopes[s.scope]; ok {
		delete(entries, key)
		if len(entries) == 0 {
			delete(s.mem.scopes, s.scope)
		}
	}
	return nil
}

var _ Backend = (*Memory)(nil)
