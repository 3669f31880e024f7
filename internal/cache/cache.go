// Package cache holds small in-process caches for hot read paths.
package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cache is a string-keyed cache of T.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Len() int
}

// Cleaner is a cache that can drop its expired entries in bulk.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans registered caches until its context ends.
type Janitor struct {
	caches []Cleaner
}

func NewJanitor(caches ...Cleaner) *Janitor {
	return &Janitor{caches: caches}
}

// Run blocks, cleaning every interval, and returns when ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := 0
			for _, c := range j.caches {
				removed += c.CleanExpired()
			}
			if removed > 0 {
				slog.DebugContext(ctx, "Expired cache entries removed", "count", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}
