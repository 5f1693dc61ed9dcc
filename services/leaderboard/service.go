package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"nbkist-backend/lib/keyval"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/leaderboard")

type Sort string

const (
	SortAttendance Sort = "attendance"
	SortMidmarks   Sort = "midmarks"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// FilterAll matches every value of a filter dimension.
const FilterAll = "all"

// Filters narrows a board to one cohort. Each dimension accepts
// FilterAll.
type Filters struct {
	Year    string `json:"year"`
	Branch  string `json:"branch"`
	Section string `json:"section"`
}

func (f Filters) normalized() Filters {
	if f.Year == "" {
		f.Year = FilterAll
	}
	if f.Branch == "" {
		f.Branch = FilterAll
	}
	if f.Section == "" {
		f.Section = FilterAll
	}
	return f
}

type Entry struct {
	Rank    int     `json:"rank"`
	Roll    string  `json:"roll_no"`
	Name    string  `json:"name"`
	Section string  `json:"section"`
	Branch  string  `json:"branch"`
	Year    string  `json:"year"`
	Value   float64 `json:"value"`
}

type Page struct {
	Sort    Sort    `json:"sort"`
	Page    int     `json:"page"`
	Size    int     `json:"size"`
	Filters Filters `json:"filters"`
	Entries []Entry `json:"entries"`
}

type Options struct {
	Database *sql.DB
	Cache    keyval.Store
}

// Service ranks students by the stats the academics scrapes leave
// behind. Rankings only see students that have been looked up at least
// once, which is the whole point: it doubles as a popularity-weighted
// sample of the college.
type Service struct {
	db    *sql.DB
	cache Cache
}

func NewService(options Options) Service {
	return Service{
		db:    options.Database,
		cache: NewCache(options.Cache),
	}
}

// GetPage resolves one page of the board, cache first.
func (s Service) GetPage(ctx context.Context, sort Sort, page, size int, filters Filters) (Page, error) {
	ctx, span := tracer.Start(ctx, "GetPage")
	defer span.End()

	if sort != SortAttendance && sort != SortMidmarks {
		err := fmt.Errorf("unknown leaderboard sort %q", sort)
		span.RecordError(err)
		return Page{}, err
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	filters = filters.normalized()

	span.SetAttributes(
		attribute.String("sort", string(sort)),
		attribute.Int("page", page),
		attribute.Int("size", size),
	)

	key := CacheKey(sort, page, size, filters)
	pattern := PatternKey(sort, filters)

	if cached, ok := s.cache.GetPage(ctx, key); ok {
		s.cache.RecordAccess(ctx, pattern, true)
		span.SetStatus(codes.Ok, "served from cache")
		return cached, nil
	}
	s.cache.RecordAccess(ctx, pattern, false)

	result, err := s.queryPage(ctx, sort, page, size, filters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "leaderboard query failed")
		return Page{}, err
	}

	s.cache.PutPage(ctx, key, pattern, result)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Invalidate drops cached pages after the underlying stats change. A
// zero sort drops every board; with a sort given, the leading filter
// dimensions that are set narrow the scope further.
func (s Service) Invalidate(ctx context.Context, sort Sort, filters Filters) {
	s.cache.Invalidate(ctx, sort, filters)
}

// Analytics exposes per-pattern demand stats for the ops endpoint.
func (s Service) Analytics(ctx context.Context) map[string]PatternStats {
	return s.cache.Analytics(ctx)
}

func (s Service) queryPage(ctx context.Context, sort Sort, page, size int, filters Filters) (Page, error) {
	column := "stats.attendance_percentage"
	if sort == SortMidmarks {
		column = "stats.mid_marks_avg"
	}

	query := `SELECT stats.roll_no, ` + column + `,
			COALESCE(students.name, 'Unknown'),
			COALESCE(students.section, ''),
			COALESCE(students.branch, ''),
			COALESCE(students.year, '')
		FROM student_stats stats
		LEFT JOIN students ON students.roll_no = stats.roll_no
		WHERE ` + column + ` IS NOT NULL`
	args := []any{}

	if filters.Year != FilterAll {
		query += ` AND students.year = ?`
		args = append(args, filters.Year)
	}
	if filters.Branch != FilterAll {
		query += ` AND students.branch = ?`
		args = append(args, filters.Branch)
	}
	if filters.Section != FilterAll {
		query += ` AND students.section = ?`
		args = append(args, filters.Section)
	}

	offset := (page - 1) * size
	query += ` ORDER BY ` + column + ` DESC, stats.roll_no ASC LIMIT ? OFFSET ?`
	args = append(args, size, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	result := Page{Sort: sort, Page: page, Size: size, Filters: filters, Entries: []Entry{}}
	for rows.Next() {
		var entry Entry
		err := rows.Scan(&entry.Roll, &entry.Value,
			&entry.Name, &entry.Section, &entry.Branch, &entry.Year)
		if err != nil {
			return Page{}, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		entry.Rank = offset + len(result.Entries) + 1
		result.Entries = append(result.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("reading leaderboard rows: %w", err)
	}
	return result, nil
}
