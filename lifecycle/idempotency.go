package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/shaj13/go-guardian/store"
)

// IdempotencyCache remembers the outcome of an operation for a short window
// so a retried request gets the original answer instead of being applied twice.
// Expired entries are collected by the FIFO store until ctx is done.
type IdempotencyCache struct {
	fifo *store.FIFO
}

// NewIdempotencyCache returns a cache that keeps entries for window
func NewIdempotencyCache(ctx context.Context, window time.Duration) *IdempotencyCache {
	return &IdempotencyCache{fifo: store.NewFIFO(ctx, window)}
}

// Get returns the stored outcome for key if it has not expired
func (c *IdempotencyCache) Get(key string) (interface{}, bool) {
	v, ok, err := c.fifo.Load(key, nil)
	if err != nil || !ok {
		return nil, false
	}
	return v, true
}

// Put stores value under key for the cache window
func (c *IdempotencyCache) Put(key string, value interface{}) {
	_ = c.fifo.Store(key, value, nil)
}

// Len returns the number of entries not yet collected
func (c *IdempotencyCache) Len() int {
	return len(c.fifo.Keys())
}

func idempotencyKey(parts ...string) string {
	return strings.Join(parts, "|")
}
