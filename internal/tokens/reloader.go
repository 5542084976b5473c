package tokens

import (
	"context"
	"time"

	"report-renderer/internal/infra/logging"
)

// Repository loads the full token table.
type Repository interface {
	LoadTokens(ctx context.Context) (map[string]Entry, error)
}

// Reloader refreshes a Cache from a Repository.
type Reloader struct {
	repo     Repository
	cache    *Cache
	interval time.Duration
}

// NewReloader returns a reloader; a non-positive interval defaults to one minute.
func NewReloader(repo Repository, cache *Cache, interval time.Duration) *Reloader {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reloader{repo: repo, cache: cache, interval: interval}
}

// LoadOnce replaces the cache with the repository contents. On error the
// previous table is kept.
func (r *Reloader) LoadOnce(ctx context.Context) error {
	entries, err := r.repo.LoadTokens(ctx)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	r.cache.Replace(entries)
	logging.Debug("API tokens loaded", "count", len(entries))
	return nil
}

// Start reloads in the background until ctx is done.
func (r *Reloader) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				if err := r.LoadOnce(ctx); err != nil {
					logging.Error("Failed to reload API tokens", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
