package expirationcache

import "time"

type ExpiringCache[T any] interface {
	// Put adds the value to the cache under the passed key with expiration.
	// If expiration <= 0, the entry will NOT be cached.
	Put(key string, val *T, expiration time.Duration)

	// Get returns the value of the cached entry with its remaining TTL.
	// Expiry is enforced at read time: an expired entry is a miss.
	Get(key string) (val *T, expiration time.Duration)

	// TotalCount returns the total count of elements currently held
	TotalCount() int

	// Clear removes all cache entries
	Clear()
}
