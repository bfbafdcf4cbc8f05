package expirationcache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	defaultCleanUpInterval = 10 * time.Second
	defaultSize            = 10_000
)

type element[T any] struct {
	val            *T
	expiresEpochMs int64
}

// ExpiringLRUCache is an LRU cache whose entries carry an absolute expiry.
// Expiry is enforced lazily on Get; the periodic cleanup only bounds memory.
type ExpiringLRUCache[T any] struct {
	cleanUpInterval time.Duration
	lru             *lru.Cache
}

type CacheOption[T any] func(c *ExpiringLRUCache[T])

func WithCleanUpInterval[T any](d time.Duration) CacheOption[T] {
	return func(e *ExpiringLRUCache[T]) {
		e.cleanUpInterval = d
	}
}

func WithMaxSize[T any](size uint) CacheOption[T] {
	return func(c *ExpiringLRUCache[T]) {
		if size > 0 {
			l, _ := lru.New(int(size))
			c.lru = l
		}
	}
}

// NewCache creates a cache whose cleanup goroutine stops when ctx is done
func NewCache[T any](ctx context.Context, options ...CacheOption[T]) *ExpiringLRUCache[T] {
	l, _ := lru.New(defaultSize)
	c := &ExpiringLRUCache[T]{
		cleanUpInterval: defaultCleanUpInterval,
		lru:             l,
	}

	for _, opt := range options {
		opt(c)
	}

	go periodicCleanup(ctx, c)

	return c
}

func periodicCleanup[T any](ctx context.Context, c *ExpiringLRUCache[T]) {
	ticker := time.NewTicker(c.cleanUpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanUp()
		case <-ctx.Done():
			return
		}
	}
}

func (e *ExpiringLRUCache[T]) cleanUp() {
	var expiredKeys []string

	// check for expired items and collect expired keys
	for _, k := range e.lru.Keys() {
		if v, ok := e.lru.Peek(k); ok {
			if isExpired(v.(*element[T])) {
				expiredKeys = append(expiredKeys, k.(string))
			}
		}
	}

	for _, key := range expiredKeys {
		e.lru.Remove(key)
	}
}

func (e *ExpiringLRUCache[T]) Put(key string, val *T, ttl time.Duration) {
	if ttl <= 0 {
		// entry should be considered as already expired
		return
	}

	expiresEpochMs := time.Now().UnixMilli() + ttl.Milliseconds()

	e.lru.Add(key, &element[T]{
		val:            val,
		expiresEpochMs: expiresEpochMs,
	})
}

func (e *ExpiringLRUCache[T]) Get(key string) (val *T, ttl time.Duration) {
	el, found := e.lru.Get(key)
	if !found {
		return nil, 0
	}

	entry := el.(*element[T])
	if isExpired(entry) {
		// lookup after expiry is a miss, never a stale read
		e.lru.Remove(key)

		return nil, 0
	}

	return entry.val, calculateRemainTTL(entry.expiresEpochMs)
}

func isExpired[T any](el *element[T]) bool {
	return el.expiresEpochMs > 0 && time.Now().UnixMilli() > el.expiresEpochMs
}

func calculateRemainTTL(expiresEpoch int64) time.Duration {
	if now := time.Now().UnixMilli(); now < expiresEpoch {
		return time.Duration(expiresEpoch-now) * time.Millisecond
	}

	return 0
}

func (e *ExpiringLRUCache[T]) TotalCount() (count int) {
	return e.lru.Len()
}

func (e *ExpiringLRUCache[T]) Clear() {
	e.lru.Purge()
}
