// Package store provides scoped key-value persistence for widget and admin state.
package store

import (
	"context"
	"time"
)

// Store is a flat string key-value store. It stands in for the browser's
// sessionStorage and localStorage.
type Store interface {
	// Get returns the value for key and whether it was present. A hit counts
	// as activity for idle cleanup.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Clear removes key. Clearing a missing key is not an error.
	Clear(ctx context.Context, key string) error
}

// Backend hands out namespaced Stores over one storage engine.
type Backend interface {
	// Scope returns a Store whose keys are isolated under name.
	Scope(name string) Store

	// CleanupSessionScopes removes session-scoped entries neither read nor
	// written for longer than ttl.
	CleanupSessionScopes(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

const (
	sessionScopePrefix = "session:"
	localScopePrefix   = "local:"
)

// SessionScope names the per-tab scope, the equivalent of sessionStorage.
func SessionScope(visitorID, tabID string) string {
	return sessionScopePrefix + visitorID + ":" + tabID
}

// LocalScope names the per-visitor scope, the equivalent of localStorage.
func LocalScope(visitorID string) string {
	return localScopePrefix + visitorID
}
