package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores fetched page bodies by key
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// PageKey derives the cache key of a detail page URL
func PageKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "factharvest:v1:page:" + hex.EncodeToString(hash[:])
}
