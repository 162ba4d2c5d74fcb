package store

import (
	"context"
	"log/slog"
	"time"
)

// CleanupCallback is invoked after a sweep removed rows.
type CleanupCallback func(deleted int64)

// StartSweeper periodically deletes session scopes idle longer than ttl
// until ctx is cancelled.
func StartSweeper(ctx context.Context, b Backend, interval, ttl time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, b, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, b Backend, ttl time.Duration, onCleanup CleanupCallback) {
	deleted, err := b.CleanupSessionScopes(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Session sweeper failed", "error", err)
		return
	}
	if deleted == 0 {
		return
	}
	slog.Info("Session sweeper removed idle session keys", "deleted", deleted)
	if onCleanup != nil {
		onCleanup(deleted)
	}
}
