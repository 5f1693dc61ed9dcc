package academics

import (
	"context"
	"database/sql"
	"fmt"
	"nbkist-backend/lib/scrapers/nbkrist"
	"nbkist-backend/lib/timezone"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Student is the immutable identity record behind a roll number. Year is
// the portal's year/semester code ("21", "41", ...), Branch its numeric
// branch code.
type Student struct {
	Roll    string `json:"roll_no"`
	Name    string `json:"name"`
	Section string `json:"section"`
	Branch  string `json:"branch"`
	Year    string `json:"year"`
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

func (s Store) GetStudent(ctx context.Context, roll string) (Student, bool, error) {
	roll = nbkrist.CanonicalRoll(roll)

	var student Student
	err := s.db.QueryRowContext(
		ctx,
		`SELECT roll_no, name, section, branch, year FROM students WHERE roll_no = ?`,
		roll,
	).Scan(&student.Roll, &student.Name, &student.Section, &student.Branch, &student.Year)
	if err == sql.ErrNoRows {
		return Student{}, false, nil
	}
	if err != nil {
		return Student{}, false, err
	}
	return student, true, nil
}

func (s Store) PutStudent(ctx context.Context, student Student) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO students (roll_no, name, section, branch, year)
		 VALUES (?, ?, ?, ?, ?)`,
		nbkrist.CanonicalRoll(student.Roll),
		student.Name, student.Section, student.Branch, student.Year,
	)
	return err
}

type nameMatch struct {
	student Student
	score   float64
}

// SearchStudentsByName ranks students against a free-form name query.
// useful when someone knows a classmate's name but not their roll number.
func (s Store) SearchStudentsByName(ctx context.Context, query string, limit int) ([]Student, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT roll_no, name, section, branch, year FROM students`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	query = strings.ToLower(strings.TrimSpace(query))

	var matches []nameMatch
	for rows.Next() {
		var student Student
		err := rows.Scan(&student.Roll, &student.Name, &student.Section, &student.Branch, &student.Year)
		if err != nil {
			return nil, err
		}
		score := matchr.JaroWinkler(query, strings.ToLower(student.Name), false)
		if score < 0.75 {
			continue
		}
		matches = append(matches, nameMatch{student: student, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]Student, len(matches))
	for i, m := range matches {
		out[i] = m.student
	}
	return out, nil
}

func snapshotId(year, branch, section string, kind nbkrist.RecordKind) string {
	return fmt.Sprintf("%s-%s-%s-%s", year, branch, section, kind)
}

// GetSnapshot returns the last successfully fetched raw report for a
// class section, if any.
func (s Store) GetSnapshot(ctx context.Context, year, branch, section string, kind nbkrist.RecordKind) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT content FROM fallback_responses WHERE id = ?`,
		snapshotId(year, branch, section, kind),
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// PutSnapshot overwrites the stored report for a class section.
func (s Store) PutSnapshot(ctx context.Context, year, branch, section string, kind nbkrist.RecordKind, content string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO fallback_responses (id, content, updated_at)
		 VALUES (?, ?, ?)`,
		snapshotId(year, branch, section, kind),
		content,
		timezone.Now().Format(time.RFC3339),
	)
	return err
}

func (s Store) UpsertAttendanceStat(ctx context.Context, roll string, percentage float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO student_stats (roll_no, attendance_percentage, last_updated)
		 VALUES (?, ?, ?)
		 ON CONFLICT(roll_no) DO UPDATE SET
		 attendance_percentage = excluded.attendance_percentage,
		 last_updated = excluded.last_updated`,
		nbkrist.CanonicalRoll(roll),
		percentage,
		timezone.Now().Format(time.RFC3339),
	)
	return err
}

func (s Store) UpsertMidmarksStat(ctx context.Context, roll string, average float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO student_stats (roll_no, mid_marks_avg, last_updated)
		 VALUES (?, ?, ?)
		 ON CONFLICT(roll_no) DO UPDATE SET
		 mid_marks_avg = excluded.mid_marks_avg,
		 last_updated = excluded.last_updated`,
		nbkrist.CanonicalRoll(roll),
		average,
		timezone.Now().Format(time.RFC3339),
	)
	return err
}

// GetAttendanceHistory returns the stored attendance JSON for a student
// as of one report date.
func (s Store) GetAttendanceHistory(ctx context.Context, roll, date string) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT attendance_data FROM attendance_history WHERE roll_no = ? AND report_date = ?`,
		nbkrist.CanonicalRoll(roll), date,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

func (s Store) PutAttendanceHistory(ctx context.Context, roll, date, content string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO attendance_history (roll_no, report_date, attendance_data)
		 VALUES (?, ?, ?)`,
		nbkrist.CanonicalRoll(roll), date, content,
	)
	return err
}
