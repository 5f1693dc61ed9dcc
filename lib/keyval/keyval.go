// Package keyval abstracts the string key-value store with per-key TTLs
// that backs the hot record cache, the upstream session slot and the
// leaderboard cache. Implementations must be safe for concurrent use on
// independent keys.
package keyval

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Store interface {
	// returns ok=false on a miss or an expired entry
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// lists live keys beginning with prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type lruEntry struct {
	value     string
	expiresAt time.Time
}

// LRUStore keeps entries in an in-process expirable LRU. the cache-wide
// expiry is only a ceiling; each entry carries its own deadline which is
// checked on read.
type LRUStore struct {
	cache *expirable.LRU[string, lruEntry]
}

const lruCeiling = time.Hour * 24

func NewLRUStore(size int) LRUStore {
	return LRUStore{
		cache: expirable.NewLRU[string, lruEntry](size, nil, lruCeiling),
	}
}

func (s LRUStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry, hit := s.cache.Get(key)
	if !hit {
		return "", false, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s LRUStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 || ttl > lruCeiling {
		ttl = lruCeiling
	}
	s.cache.Add(key, lruEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (s LRUStore) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

func (s LRUStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for _, key := range s.cache.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, hit := s.cache.Peek(key)
		if !hit || time.Now().After(entry.expiresAt) {
			continue
		}
		out = append(out, key)
	}
	return out, nil
}
