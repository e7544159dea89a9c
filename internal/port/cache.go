package port

import "time"

// Cache is a byte-value cache with per-entry expiry. Implementations
// must be safe for concurrent use. A miss is (nil, false), never an
// error.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}
