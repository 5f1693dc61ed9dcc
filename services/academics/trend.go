package academics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"nbkist-backend/lib/scrapers/nbkrist"
	"nbkist-backend/lib/timezone"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	trendWeeks = 7
	// a new Sunday only enters the window once a day at most
	trendTTL = time.Hour * 24

	dateLayout = "02-01-2006"
)

// TrendPoint is one week's attendance standing in a student's trend.
type TrendPoint struct {
	Date   string                   `json:"date"`
	Record nbkrist.AttendanceRecord `json:"attendance"`
}

// lastSundays lists the report dates of the n most recent Sundays up to
// now, oldest first. A Sunday report captures the closed week behind it.
func lastSundays(now time.Time, n int) []string {
	lastSunday := now.AddDate(0, 0, -int(now.Weekday()))
	dates := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		dates = append(dates, lastSunday.AddDate(0, 0, -i*7).Format(dateLayout))
	}
	return dates
}

// GetAttendanceTrend resolves a student's attendance as of each of the
// last seven Sundays. Weeks that cannot be resolved are dropped rather
// than failing the whole trend.
func (s Service) GetAttendanceTrend(ctx context.Context, roll string) ([]TrendPoint, error) {
	ctx, span := tracer.Start(ctx, "GetAttendanceTrend")
	defer span.End()
	roll = nbkrist.CanonicalRoll(roll)
	span.SetAttributes(attribute.String("roll", roll))

	var cached []TrendPoint
	if s.cacheGet(ctx, "trend:"+roll, &cached) {
		span.SetStatus(codes.Ok, "served from hot cache")
		return cached, nil
	}

	student, err := s.GetStudent(ctx, roll)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	points := make([]TrendPoint, 0, trendWeeks)
	for _, date := range lastSundays(timezone.Now(), trendWeeks) {
		record, err := s.attendanceAsOf(ctx, student, roll, date)
		if err != nil {
			slog.WarnContext(ctx, "dropping week from attendance trend",
				"roll", roll, "date", date, "err", err)
			continue
		}
		points = append(points, TrendPoint{Date: date, Record: record})
	}

	s.cacheSet(ctx, "trend:"+roll, points, trendTTL)
	span.SetStatus(codes.Ok, "")
	return points, nil
}

// attendanceAsOf serves one historical week: the durable per-date rows
// first, then a dated portal scrape that fills the whole class in, since
// a past report never changes once fetched.
func (s Service) attendanceAsOf(ctx context.Context, student Student, roll, date string) (nbkrist.AttendanceRecord, error) {
	raw, ok, err := s.store.GetAttendanceHistory(ctx, roll, date)
	if err != nil {
		slog.WarnContext(ctx, "attendance history lookup failed", "roll", roll, "date", date, "err", err)
	}
	if ok && err == nil {
		var record nbkrist.AttendanceRecord
		if err := json.Unmarshal([]byte(raw), &record); err == nil {
			return record, nil
		}
		slog.WarnContext(ctx, "attendance history row corrupt", "roll", roll, "date", date)
	}

	doc, err := s.client.FetchReport(ctx, nbkrist.KindAttendance, nbkrist.ClassParams{
		YearSem:  student.Year,
		Branch:   student.Branch,
		Section:  student.Section,
		AsOfDate: date,
	})
	if err != nil {
		return nbkrist.AttendanceRecord{}, err
	}

	record, err := nbkrist.ParseAttendance(doc, roll)
	if err != nil {
		return nbkrist.AttendanceRecord{}, err
	}

	s.storeClassHistory(ctx, doc, date)
	return record, nil
}

// storeClassHistory persists every student row of a dated document, so
// one scrape answers the whole section's trends for that week.
func (s Service) storeClassHistory(ctx context.Context, doc, date string) {
	rolls, err := nbkrist.AllRolls(doc)
	if err != nil {
		slog.WarnContext(ctx, "failed to enumerate class rolls", "err", err)
		return
	}
	for _, roll := range rolls {
		record, err := nbkrist.ParseAttendance(doc, roll)
		if err != nil {
			continue
		}
		raw, err := json.Marshal(record)
		if err != nil {
			continue
		}
		// best-effort, the caller already has its record in hand
		if err := s.store.PutAttendanceHistory(ctx, roll, date, string(raw)); err != nil {
			slog.WarnContext(ctx, "failed to store attendance history", "roll", roll, "date", date, "err", err)
		}
	}
	slog.DebugContext(ctx, "stored class attendance history", "date", date, "students", len(rolls))
}
