package leaderboard

import (
	"context"
	"errors"
	"nbkist-backend/lib/keyval"
	"nbkist-backend/lib/testutil"
	"nbkist-backend/services/academics"
	"nbkist-backend/services/academics/db"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingStore captures the TTL of every Set so tests can observe
// the adaptive classification.
type recordingStore struct {
	keyval.Store
	ttls map[string]time.Duration
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		Store: keyval.NewLRUStore(256),
		ttls:  map[string]time.Duration{},
	}
}

func (r *recordingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	r.ttls[key] = ttl
	return r.Store.Set(ctx, key, value, ttl)
}

// failingStore errors on every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errStoreDown
}

func (failingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errStoreDown
}

func (failingStore) Delete(ctx context.Context, key string) error { return errStoreDown }

func (failingStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return nil, errStoreDown
}

func setup(t *testing.T, cache keyval.Store) (Service, academics.Store, func()) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/leaderboard",
		DbSchema: db.Schema,
	})

	store := academics.NewStore(result.DB)
	ctx := context.Background()

	seed := []struct {
		student    academics.Student
		percentage float64
		average    float64
	}{
		{academics.Student{Roll: "23KB1A0501", Name: "Alpha", Section: "A", Branch: "5", Year: "21"}, 92.5, 24},
		{academics.Student{Roll: "23KB1A0502", Name: "Bravo", Section: "A", Branch: "5", Year: "21"}, 71.0, 28},
		{academics.Student{Roll: "23KB1A2303", Name: "Charlie", Section: "B", Branch: "23", Year: "21"}, 85.0, 18},
	}
	for _, row := range seed {
		require.NoError(t, store.PutStudent(ctx, row.student))
		require.NoError(t, store.UpsertAttendanceStat(ctx, row.student.Roll, row.percentage))
		require.NoError(t, store.UpsertMidmarksStat(ctx, row.student.Roll, row.average))
	}

	return NewService(Options{Database: result.DB, Cache: cache}), store, cleanup
}

func TestGetPageRanksByAttendance(t *testing.T) {
	service, _, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()

	page, err := service.GetPage(context.Background(), SortAttendance, 1, 10, Filters{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	require.Equal(t, "23KB1A0501", page.Entries[0].Roll)
	require.Equal(t, "23KB1A2303", page.Entries[1].Roll)
	require.Equal(t, "23KB1A0502", page.Entries[2].Roll)
	require.Equal(t, 1, page.Entries[0].Rank)
	require.Equal(t, 3, page.Entries[2].Rank)
}

func TestGetPageRanksByMidmarks(t *testing.T) {
	service, _, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()

	page, err := service.GetPage(context.Background(), SortMidmarks, 1, 10, Filters{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	require.Equal(t, "Bravo", page.Entries[0].Name)
	require.Equal(t, 28.0, page.Entries[0].Value)
}

func TestGetPageFilters(t *testing.T) {
	service, _, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()

	page, err := service.GetPage(context.Background(), SortAttendance, 1, 10, Filters{
		Year: "21", Branch: "23", Section: FilterAll,
	})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "Charlie", page.Entries[0].Name)
}

func TestGetPagePagination(t *testing.T) {
	service, _, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()

	page, err := service.GetPage(context.Background(), SortAttendance, 2, 1, Filters{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	// global rank carries across pages
	require.Equal(t, 2, page.Entries[0].Rank)
	require.Equal(t, "23KB1A2303", page.Entries[0].Roll)
}

func TestGetPageUnknownSort(t *testing.T) {
	service, _, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()

	_, err := service.GetPage(context.Background(), Sort("gpa"), 1, 10, Filters{})
	require.Error(t, err)
}

func TestGetPageServesFromCache(t *testing.T) {
	service, store, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()
	ctx := context.Background()

	first, err := service.GetPage(ctx, SortAttendance, 1, 10, Filters{})
	require.NoError(t, err)

	// mutate the underlying table; a cached board must not notice
	require.NoError(t, store.UpsertAttendanceStat(ctx, "23KB1A0502", 99.9))

	second, err := service.GetPage(ctx, SortAttendance, 1, 10, Filters{})
	require.NoError(t, err)
	require.Equal(t, first, second)

	// invalidation makes the next read see the new ordering
	service.Invalidate(ctx, "", Filters{})
	third, err := service.GetPage(ctx, SortAttendance, 1, 10, Filters{})
	require.NoError(t, err)
	require.Equal(t, "23KB1A0502", third.Entries[0].Roll)
}

func TestScopedInvalidation(t *testing.T) {
	service, store, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()
	ctx := context.Background()

	filters := Filters{Year: FilterAll, Branch: FilterAll, Section: FilterAll}
	attendance, err := service.GetPage(ctx, SortAttendance, 1, 10, filters)
	require.NoError(t, err)
	midmarks, err := service.GetPage(ctx, SortMidmarks, 1, 10, filters)
	require.NoError(t, err)

	require.NoError(t, store.UpsertAttendanceStat(ctx, "23KB1A0502", 99.9))
	require.NoError(t, store.UpsertMidmarksStat(ctx, "23KB1A0502", 1))

	// dropping the attendance board leaves the midmarks board cached
	service.Invalidate(ctx, SortAttendance, Filters{})

	freshAttendance, err := service.GetPage(ctx, SortAttendance, 1, 10, filters)
	require.NoError(t, err)
	require.NotEqual(t, attendance, freshAttendance)
	require.Equal(t, "23KB1A0502", freshAttendance.Entries[0].Roll)

	cachedMidmarks, err := service.GetPage(ctx, SortMidmarks, 1, 10, filters)
	require.NoError(t, err)
	require.Equal(t, midmarks, cachedMidmarks)
}

func TestFilterScopedInvalidation(t *testing.T) {
	service, store, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()
	ctx := context.Background()

	cseFilters := Filters{Year: "21", Branch: "5", Section: FilterAll}
	aidsFilters := Filters{Year: "21", Branch: "23", Section: FilterAll}
	_, err := service.GetPage(ctx, SortAttendance, 1, 10, cseFilters)
	require.NoError(t, err)
	aids, err := service.GetPage(ctx, SortAttendance, 1, 10, aidsFilters)
	require.NoError(t, err)

	require.NoError(t, store.UpsertAttendanceStat(ctx, "23KB1A0501", 50))
	require.NoError(t, store.UpsertAttendanceStat(ctx, "23KB1A2303", 50))

	// scope down to one branch, the sibling branch's board survives
	service.Invalidate(ctx, SortAttendance, Filters{Year: "21", Branch: "5"})

	freshCse, err := service.GetPage(ctx, SortAttendance, 1, 10, cseFilters)
	require.NoError(t, err)
	require.Equal(t, 50.0, freshCse.Entries[len(freshCse.Entries)-1].Value)

	cachedAids, err := service.GetPage(ctx, SortAttendance, 1, 10, aidsFilters)
	require.NoError(t, err)
	require.Equal(t, aids, cachedAids)
}

func TestAdaptiveTTL(t *testing.T) {
	recorder := newRecordingStore()
	service, _, cleanup := setup(t, recorder)
	defer cleanup()
	ctx := context.Background()

	coldFilters := Filters{Year: "21", Branch: "5", Section: "A"}
	for i := 0; i < 2; i++ {
		service.cache.RecordAccess(ctx, PatternKey(SortAttendance, coldFilters), true)
	}
	_, err := service.GetPage(ctx, SortAttendance, 1, 10, coldFilters)
	require.NoError(t, err)
	require.Equal(t, coldTTL, recorder.ttls[CacheKey(SortAttendance, 1, 10, coldFilters)])

	hotFilters := Filters{Year: FilterAll, Branch: FilterAll, Section: FilterAll}
	pattern := PatternKey(SortAttendance, hotFilters)
	for i := 0; i < 150; i++ {
		service.cache.RecordAccess(ctx, pattern, true)
	}
	_, err = service.GetPage(ctx, SortAttendance, 1, 10, hotFilters)
	require.NoError(t, err)
	require.Equal(t, hotTTL, recorder.ttls[CacheKey(SortAttendance, 1, 10, hotFilters)])
}

func TestAnalyticsCountsHitsAndMisses(t *testing.T) {
	service, _, cleanup := setup(t, keyval.NewLRUStore(256))
	defer cleanup()
	ctx := context.Background()

	filters := Filters{Year: FilterAll, Branch: FilterAll, Section: FilterAll}
	for i := 0; i < 3; i++ {
		_, err := service.GetPage(ctx, SortAttendance, 1, 10, filters)
		require.NoError(t, err)
	}

	analytics := service.Analytics(ctx)
	stats, ok := analytics[PatternKey(SortAttendance, filters)]
	require.True(t, ok)
	require.Equal(t, 1, stats.Misses)
	require.Equal(t, 2, stats.Hits)
}

func TestDegradedCacheStillServes(t *testing.T) {
	service, _, cleanup := setup(t, failingStore{})
	defer cleanup()
	ctx := context.Background()

	// every cache operation fails, every read falls through to SQL
	for i := 0; i < 2; i++ {
		page, err := service.GetPage(ctx, SortAttendance, 1, 10, Filters{})
		require.NoError(t, err)
		require.Len(t, page.Entries, 3)
	}

	service.Invalidate(ctx, "", Filters{})
	require.Empty(t, service.Analytics(ctx))
}
