package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"nbkist-backend/lib/keyval"
	"nbkist-backend/lib/timezone"
	"strings"
	"time"
)

const (
	cacheKeyPrefix  = "leaderboard:"
	analyticsPrefix = "analytics:"
	analyticsTTL    = time.Hour

	// demand thresholds, counted per query pattern
	hotAccessFloor = 100
	coldAccessCeil = 10

	hotTTL  = time.Minute * 5
	warmTTL = time.Minute * 30
	coldTTL = time.Hour
)

// PatternStats tracks demand for one query pattern. A pattern is the
// sort plus filters with paging stripped out, so every page of the same
// board pools into one popularity signal.
type PatternStats struct {
	Hits       int       `json:"hits"`
	Misses     int       `json:"misses"`
	LastAccess time.Time `json:"last_access"`
}

func (s PatternStats) Accesses() int {
	return s.Hits + s.Misses
}

// Cache layers adaptive-TTL page caching over a keyval store. Every
// store fault degrades to a miss or a no-op; the leaderboard must keep
// answering from SQL when the cache is sick.
type Cache struct {
	store keyval.Store
}

func NewCache(store keyval.Store) Cache {
	return Cache{store: store}
}

// CacheKey identifies one rendered page. PatternKey identifies the
// board the page belongs to, page and size deliberately excluded; it is
// a prefix of every page key it covers, which is what makes scoped
// invalidation a prefix scan.
func CacheKey(sort Sort, page, size int, filters Filters) string {
	return fmt.Sprintf("%s:%d:%d", PatternKey(sort, filters), page, size)
}

func PatternKey(sort Sort, filters Filters) string {
	return fmt.Sprintf("%s%s:%s:%s:%s",
		cacheKeyPrefix, sort, filters.Year, filters.Branch, filters.Section)
}

// invalidationPrefix narrows key deletion to one sort dimension and,
// within it, to the leading filter dimensions the caller pinned down.
// An empty sort means every cached page.
func invalidationPrefix(sort Sort, filters Filters) string {
	if sort == "" {
		return cacheKeyPrefix
	}
	prefix := cacheKeyPrefix + string(sort) + ":"
	for _, dimension := range []string{filters.Year, filters.Branch, filters.Section} {
		if dimension == "" {
			break
		}
		prefix += dimension + ":"
	}
	return prefix
}

// GetPage returns the cached page for key if present. Faults are
// logged and reported as misses.
func (c Cache) GetPage(ctx context.Context, key string) (Page, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard cache read failed", "key", key, "err", err)
		return Page{}, false
	}
	if !ok {
		return Page{}, false
	}

	var page Page
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		slog.WarnContext(ctx, "leaderboard cache entry corrupt", "key", key, "err", err)
		return Page{}, false
	}
	return page, true
}

// PutPage stores a page under a TTL derived from the pattern's recent
// demand: hot boards refresh every few minutes, cold ones can drift
// for an hour.
func (c Cache) PutPage(ctx context.Context, key, pattern string, page Page) {
	raw, err := json.Marshal(page)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard cache encode failed", "key", key, "err", err)
		return
	}

	ttl := c.ttlFor(ctx, pattern)
	if err := c.store.Set(ctx, key, string(raw), ttl); err != nil {
		slog.WarnContext(ctx, "leaderboard cache write failed", "key", key, "err", err)
	}
}

// RecordAccess folds one hit or miss into the pattern's analytics
// record. Analytics expire after an hour of silence, so demand decays
// on its own.
func (c Cache) RecordAccess(ctx context.Context, pattern string, hit bool) {
	stats := c.patternStats(ctx, pattern)
	if hit {
		stats.Hits++
	} else {
		stats.Misses++
	}
	stats.LastAccess = timezone.Now()

	raw, err := json.Marshal(stats)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard analytics encode failed", "pattern", pattern, "err", err)
		return
	}
	if err := c.store.Set(ctx, analyticsPrefix+pattern, string(raw), analyticsTTL); err != nil {
		slog.WarnContext(ctx, "leaderboard analytics write failed", "pattern", pattern, "err", err)
	}
}

// Invalidate drops the cached pages under the given sort and filter
// scope; a zero sort drops everything. Analytics survive so freshly
// rebuilt boards keep their demand classification.
func (c Cache) Invalidate(ctx context.Context, sort Sort, filters Filters) {
	keys, err := c.store.Keys(ctx, invalidationPrefix(sort, filters))
	if err != nil {
		slog.WarnContext(ctx, "leaderboard cache invalidation failed", "err", err)
		return
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			slog.WarnContext(ctx, "leaderboard cache delete failed", "key", key, "err", err)
		}
	}
}

// Analytics dumps the demand stats of every live pattern.
func (c Cache) Analytics(ctx context.Context) map[string]PatternStats {
	out := map[string]PatternStats{}
	keys, err := c.store.Keys(ctx, analyticsPrefix)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard analytics scan failed", "err", err)
		return out
	}
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var stats PatternStats
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			continue
		}
		out[strings.TrimPrefix(key, analyticsPrefix)] = stats
	}
	return out
}

func (c Cache) ttlFor(ctx context.Context, pattern string) time.Duration {
	stats := c.patternStats(ctx, pattern)
	switch accesses := stats.Accesses(); {
	case accesses > hotAccessFloor:
		return hotTTL
	case accesses < coldAccessCeil:
		return coldTTL
	default:
		return warmTTL
	}
}

func (c Cache) patternStats(ctx context.Context, pattern string) PatternStats {
	raw, ok, err := c.store.Get(ctx, analyticsPrefix+pattern)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard analytics read failed", "pattern", pattern, "err", err)
		return PatternStats{}
	}
	if !ok {
		return PatternStats{}
	}
	var stats PatternStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return PatternStats{}
	}
	return stats
}
