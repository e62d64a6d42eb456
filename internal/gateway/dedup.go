package gateway

import (
	"context"
	"sync"
	"time"
)

// Dedup remembers submitted message ids for ttl so client retries are not sent twice.
type Dedup struct {
	mu    sync.Mutex
	cache map[string]time.Time
	ttl   time.Duration
}

// NewDedup starts the cleanup loop, which stops with ctx.
func NewDedup(ctx context.Context, ttl time.Duration) *Dedup {
	d := &Dedup{
		cache: make(map[string]time.Time),
		ttl:   ttl,
	}
	go d.cleanupLoop(ctx)
	return d
}

// IsDuplicate returns true if this key was seen recently.
// If not a duplicate, records it and returns false. Empty keys are never duplicates.
func (d *Dedup) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if seen, exists := d.cache[key]; exists && time.Since(seen) < d.ttl {
		return true
	}
	d.cache[key] = time.Now()
	return false
}

// Forget drops a key, used when the submit it guarded was rejected.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, key)
}

func (d *Dedup) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(d.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.mu.Lock()
		cutoff := time.Now().Add(-d.ttl)
		for k, t := range d.cache {
			if t.Before(cutoff) {
				delete(d.cache, k)
			}
		}
		d.mu.Unlock()
	}
}
