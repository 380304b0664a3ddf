// SPDX-License-Identifier: MIT

package cache

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/InsiderP/video-streaming/internal/metrics"
)

// GetOrLoad implements cache read-through: return the cached value for key
// if present, otherwise call loader, cache its result for ttl and return it.
// Every cache-backed read goes through this helper so invalidation semantics
// are identical for metadata, manifests and status.
func GetOrLoad[T any](c Cache, key string, ttl time.Duration, loader func() (T, error)) (T, error) {
	var out T

	if raw, ok := c.Get(key); ok {
		if err := json.Unmarshal(raw, &out); err == nil {
			metrics.IncCacheOp(keyNamespace(key), "hit")
			return out, nil
		}
		// Corrupt entry; drop it and fall through to the loader.
		c.Delete(key)
	}
	metrics.IncCacheOp(keyNamespace(key), "miss")

	out, err := loader()
	if err != nil {
		return out, err
	}

	if raw, err := json.Marshal(out); err == nil {
		c.Set(key, raw, ttl)
	}
	return out, nil
}

// Put serializes value and stores it under key with the given TTL.
func Put[T any](c Cache, key string, value T, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Set(key, raw, ttl)
}

// keyNamespace is the "kind:purpose" prefix of a cache key, used as the
// metric label.
func keyNamespace(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 {
		return key
	}
	return parts[0] + ":" + parts[1]
}

// Peek returns the deserialized cached value for key, if present and valid.
func Peek[T any](c Cache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}
