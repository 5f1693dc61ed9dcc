// Package academics serves attendance and mid-marks records for one
// student at a time while leaning on the portal as little as possible:
// hot cache first, then a live scrape with session renewal, then the last
// stored class snapshot.
package academics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"nbkist-backend/lib/keyval"
	"nbkist-backend/lib/scrapers/nbkrist"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("nbkist.services.academics")

// Source reports which tier actually served a record.
type Source string

const (
	// hot cache hit, no upstream traffic at all
	SourceCached Source = "cached"
	// scraped from the portal just now
	SourceFresh Source = "fresh"
	// the portal was unreachable, served from the class snapshot
	SourceStale Source = "stale"
)

const (
	attendanceTTL = time.Hour
	midmarksTTL   = time.Hour * 2
	// identity rarely changes, it sits on the hot path of every other
	// lookup so it keeps a long TTL
	studentTTL = time.Hour * 24 * 7

	// the portal's code for the terminal semester, which grades out of
	// 40 instead of 30
	terminalSemesterCode = "41"
)

type Options struct {
	Database *sql.DB
	Cache    keyval.Store
	Client   *nbkrist.Client
	// optional, emails the operator when credential renewal fails
	Alerts *Alerter
}

type Service struct {
	store  Store
	cache  keyval.Store
	client *nbkrist.Client
	alerts *Alerter
}

func NewService(opts Options) Service {
	return Service{
		store:  NewStore(opts.Database),
		cache:  opts.Cache,
		client: opts.Client,
		alerts: opts.Alerts,
	}
}

func (s Service) Store() Store {
	return s.store
}

// GetAttendance resolves one student's attendance record. The returned
// Source tells which cache tier answered.
func (s Service) GetAttendance(ctx context.Context, roll string) (nbkrist.AttendanceRecord, Source, error) {
	ctx, span := tracer.Start(ctx, "GetAttendance")
	defer span.End()
	roll = nbkrist.CanonicalRoll(roll)
	span.SetAttributes(attribute.String("roll", roll))

	var cached nbkrist.AttendanceRecord
	if s.cacheGet(ctx, "attendance:"+roll, &cached) {
		span.SetStatus(codes.Ok, "served from hot cache")
		return cached, SourceCached, nil
	}

	doc, source, _, err := s.fetchClassDocument(ctx, nbkrist.KindAttendance, roll)
	if err != nil {
		span.RecordError(err)
		return nbkrist.AttendanceRecord{}, "", err
	}

	record, err := nbkrist.ParseAttendance(doc, roll)
	if err != nil {
		span.RecordError(err)
		return nbkrist.AttendanceRecord{}, "", err
	}

	s.populateAttendanceCache(ctx, doc)
	if source == SourceFresh {
		err = s.store.UpsertAttendanceStat(ctx, roll, record.Percentage)
		if err != nil {
			slog.WarnContext(ctx, "failed to upsert attendance stat", "roll", roll, "err", err)
		}
	}

	return record, source, nil
}

// GetMidmarks resolves one student's mid-term marks record.
func (s Service) GetMidmarks(ctx context.Context, roll string) (nbkrist.MidmarksRecord, Source, error) {
	ctx, span := tracer.Start(ctx, "GetMidmarks")
	defer span.End()
	roll = nbkrist.CanonicalRoll(roll)
	span.SetAttributes(attribute.String("roll", roll))

	var cached nbkrist.MidmarksRecord
	if s.cacheGet(ctx, "midmarks:"+roll, &cached) {
		span.SetStatus(codes.Ok, "served from hot cache")
		return cached, SourceCached, nil
	}

	doc, source, student, err := s.fetchClassDocument(ctx, nbkrist.KindMidmarks, roll)
	if err != nil {
		span.RecordError(err)
		return nbkrist.MidmarksRecord{}, "", err
	}

	record, err := nbkrist.ParseMidmarks(doc, roll)
	if err != nil {
		span.RecordError(err)
		return nbkrist.MidmarksRecord{}, "", err
	}

	s.populateMidmarksCache(ctx, doc)
	if source == SourceFresh {
		average := ComputeMidmarksAverage(record, student.Year)
		err = s.store.UpsertMidmarksStat(ctx, roll, average)
		if err != nil {
			slog.WarnContext(ctx, "failed to upsert midmarks stat", "roll", roll, "err", err)
		}
	}

	return record, source, nil
}

// GetStudent resolves a student identity through the hot cache.
func (s Service) GetStudent(ctx context.Context, roll string) (Student, error) {
	roll = nbkrist.CanonicalRoll(roll)

	var cached Student
	if s.cacheGet(ctx, "student:"+roll, &cached) {
		return cached, nil
	}

	student, ok, err := s.store.GetStudent(ctx, roll)
	if err != nil {
		return Student{}, err
	}
	if !ok {
		return Student{}, fmt.Errorf("%w: unregistered roll number %q", nbkrist.ErrNoDataFound, roll)
	}

	s.cacheSet(ctx, "student:"+roll, student, studentTTL)
	return student, nil
}

// fetchClassDocument drives the live-fetch / snapshot-fallback state
// machine. A blocked report short-circuits: blocking is a deliberate
// admin signal, not a fault, so the snapshot is never consulted.
func (s Service) fetchClassDocument(ctx context.Context, kind nbkrist.RecordKind, roll string) (string, Source, Student, error) {
	ctx, span := tracer.Start(ctx, "fetchClassDocument")
	defer span.End()

	student, err := s.GetStudent(ctx, roll)
	if err != nil {
		return "", "", Student{}, err
	}

	class := nbkrist.ClassParams{
		YearSem: student.Year,
		Branch:  student.Branch,
		Section: student.Section,
	}

	doc, fetchErr := s.client.FetchReport(ctx, kind, class)
	if fetchErr == nil {
		err := s.store.PutSnapshot(ctx, student.Year, student.Branch, student.Section, kind, doc)
		if err != nil {
			// losing the fallback must never fail the primary request
			slog.ErrorContext(ctx, "failed to store class snapshot",
				"year", student.Year, "branch", student.Branch,
				"section", student.Section, "kind", kind, "err", err)
		}
		return doc, SourceFresh, student, nil
	}

	if errors.Is(fetchErr, nbkrist.ErrReportBlocked) {
		span.SetStatus(codes.Ok, "report blocked")
		return "", "", Student{}, fetchErr
	}
	if errors.Is(fetchErr, nbkrist.ErrSessionInvalid) && s.alerts != nil {
		s.alerts.SessionRenewalFailed(ctx, fetchErr)
	}

	slog.WarnContext(ctx, "live fetch failed, trying class snapshot",
		"roll", roll, "kind", kind, "err", fetchErr)

	doc, ok, err := s.store.GetSnapshot(ctx, student.Year, student.Branch, student.Section, kind)
	if err != nil {
		slog.ErrorContext(ctx, "snapshot lookup failed", "err", err)
	}
	if !ok || err != nil {
		return "", "", Student{}, fetchErr
	}

	span.SetStatus(codes.Ok, "served from class snapshot")
	return doc, SourceStale, student, nil
}

// populateAttendanceCache parses and caches every student row found in a
// class document, amortizing one portal round trip across the section.
func (s Service) populateAttendanceCache(ctx context.Context, doc string) {
	rolls, err := nbkrist.AllRolls(doc)
	if err != nil {
		slog.WarnContext(ctx, "failed to enumerate class rolls", "err", err)
		return
	}
	for _, roll := range rolls {
		record, err := nbkrist.ParseAttendance(doc, roll)
		if err != nil {
			slog.WarnContext(ctx, "failed to parse classmate attendance", "roll", roll, "err", err)
			continue
		}
		s.cacheSet(ctx, "attendance:"+roll, record, attendanceTTL)
	}
	slog.DebugContext(ctx, "bulk cached class attendance", "students", len(rolls))
}

func (s Service) populateMidmarksCache(ctx context.Context, doc string) {
	rolls, err := nbkrist.AllRolls(doc)
	if err != nil {
		slog.WarnContext(ctx, "failed to enumerate class rolls", "err", err)
		return
	}
	for _, roll := range rolls {
		record, err := nbkrist.ParseMidmarks(doc, roll)
		if err != nil {
			slog.WarnContext(ctx, "failed to parse classmate midmarks", "roll", roll, "err", err)
			continue
		}
		s.cacheSet(ctx, "midmarks:"+roll, record, midmarksTTL)
	}
	slog.DebugContext(ctx, "bulk cached class midmarks", "students", len(rolls))
}

// cache faults are never user-facing, a broken cache degrades to a miss
func (s Service) cacheGet(ctx context.Context, key string, out any) bool {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "cache read failed", "key", key, "err", err)
		return false
	}
	if !ok {
		return false
	}
	err = json.Unmarshal([]byte(raw), out)
	if err != nil {
		slog.WarnContext(ctx, "cache entry corrupt", "key", key, "err", err)
		return false
	}
	return true
}

func (s Service) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		slog.WarnContext(ctx, "cache marshal failed", "key", key, "err", err)
		return
	}
	err = s.cache.Set(ctx, key, string(raw), ttl)
	if err != nil {
		slog.WarnContext(ctx, "cache write failed", "key", key, "err", err)
	}
}

// ComputeMidmarksAverage recomputes the mean mid mark for the aggregate
// stats feed. Unlike the report's embedded average, this trusts the marks
// themselves: (M1+M2)/2 when both mids exist, M1 alone otherwise.
// Subjects with no marks at all stay out of the denominator. The terminal
// semester grades out of 40 rather than 30, so its mean is scaled back
// onto the common scale.
func ComputeMidmarksAverage(record nbkrist.MidmarksRecord, yearSem string) float64 {
	total := 0.0
	count := 0
	for _, entry := range record.Subjects {
		if entry.M1 == 0 && entry.M2 == 0 {
			continue
		}
		if entry.M2 != 0 {
			total += float64(entry.M1+entry.M2) / 2
		} else {
			total += float64(entry.M1)
		}
		count++
	}
	if count == 0 {
		count = 1
	}
	average := total / float64(count)
	if yearSem == terminalSemesterCode {
		average *= 30.0 / 40.0
	}
	return average
}
