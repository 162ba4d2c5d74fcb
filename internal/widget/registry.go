package widget

import (
	"log/slog"
	"sync"
)

// Registry tracks the live widget session of every visitor tab.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*Session),
	}
}

// Get returns the live session for a visitor tab.
func (r *Registry) Get(visitorID, tabID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tabs, ok := r.active[visitorID]; ok {
		return tabs[tabID]
	}
	return nil
}

// Register makes s the live session for a visitor tab. A previous session
// for the same tab is unmounted.
func (r *Registry) Register(visitorID, tabID string, s *Session) {
	r.mu.Lock()
	if _, exists := r.active[visitorID]; !exists {
		r.active[visitorID] = make(map[string]*Session)
	}
	existing := r.active[visitorID][tabID]
	r.active[visitorID][tabID] = s
	r.mu.Unlock()

	if existing != nil && existing != s {
		existing.Unmount()
		slog.Info("Widget session replaced", "visitor_id", visitorID, "tab_id", tabID)
	}
	slog.Info("Widget session registered", "visitor_id", visitorID, "tab_id", tabID)
}

// Unregister removes s if it is still the live session for the tab.
func (r *Registry) Unregister(visitorID, tabID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tabs, ok := r.active[visitorID]; ok {
		if current, exists := tabs[tabID]; exists && current == s {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(r.active, visitorID)
			}
			slog.Info("Widget session unregistered", "visitor_id", visitorID, "tab_id", tabID)
		}
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, tabs := range r.active {
		n += len(tabs)
	}
	return n
}

// CloseAll unmounts every live session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var sessions []*Session
	for _, tabs := range r.active {
		for _, s := range tabs {
			sessions = append(sessions, s)
		}
	}
	r.active = make(map[string]map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Unmount()
	}
	slog.Info("Widget sessions closed", "count", len(sessions))
}
