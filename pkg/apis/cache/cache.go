package cache

import "time"

// Cache is a simple expiring key/value store used to avoid repeated
// round trips to the warehouse for read-heavy admin endpoints.
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, content []byte, duration time.Duration) error
}
