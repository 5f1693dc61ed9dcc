package nbkrist

import (
	"regexp"
	"strconv"
	"strings"

	"nbkist-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type ClassTotals struct {
	Attended  int `json:"attended"`
	Conducted int `json:"conducted"`
}

type SubjectAttendance struct {
	Subject     string `json:"subject"`
	Attended    int    `json:"attended"`
	Conducted   int    `json:"conducted"`
	LastUpdated string `json:"lastUpdated"`
}

type AttendanceRecord struct {
	Roll         string              `json:"rollno"`
	Percentage   float64             `json:"percentage"`
	TotalClasses ClassTotals         `json:"totalClasses"`
	Subjects     []SubjectAttendance `json:"subjects"`
}

// CanonicalRoll normalizes a roll number to its canonical
// uppercase-trimmed form.
func CanonicalRoll(roll string) string {
	return strings.ToUpper(strings.TrimSpace(roll))
}

// AllRolls lists every roll number present in a class report document.
// each student row carries its roll number as the element id.
func AllRolls(rawDocument string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawDocument))
	if err != nil {
		return nil, err
	}
	var rolls []string
	doc.Find("tr[id]").Each(func(_ int, row *goquery.Selection) {
		id := row.AttrOr("id", "")
		if id != "" {
			rolls = append(rolls, CanonicalRoll(id))
		}
	})
	return rolls, nil
}

func findStudentRow(doc *goquery.Document, roll string) *goquery.Selection {
	return doc.Find("tr[id]").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return strings.EqualFold(row.AttrOr("id", ""), roll)
	})
}

var parenGroup = regexp.MustCompile(`\(([^)]+)\)`)

func cellTexts(sel *goquery.Selection) []string {
	var out []string
	sel.Find("td").Each(func(_ int, td *goquery.Selection) {
		out = append(out, htmlutil.CleanText(td.Text()))
	})
	return out
}

// ParseAttendance extracts one student's attendance from a class report.
//
// The report is one table for the whole section: row 1 holds subject
// names, row 2 the per-subject last-updated dates, row 3 the conducted
// totals, then one row per student keyed by roll number. Columns are
// matched positionally, that is genuinely how the upstream lays the
// document out.
func ParseAttendance(rawDocument, roll string) (AttendanceRecord, error) {
	roll = CanonicalRoll(roll)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawDocument))
	if err != nil {
		return AttendanceRecord{}, err
	}

	studentRow := findStudentRow(doc, roll)
	if studentRow.Length() == 0 {
		return AttendanceRecord{}, ErrNoDataFound
	}

	// the percentage cell embeds the class totals, e.g. "85.50 (450/526)"
	percentText := studentRow.Find("td.tdPercent").Text()
	totals := "0/0"
	if m := parenGroup.FindStringSubmatch(percentText); m != nil {
		totals = strings.TrimSpace(m[1])
	}
	attendedTotal, conductedTotal := 0, 0
	if parts := strings.Split(totals, "/"); len(parts) == 2 {
		attendedTotal, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
		conductedTotal, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	percentage, _ := strconv.ParseFloat(
		strings.TrimSpace(strings.Split(percentText, "(")[0]), 64)

	rows := doc.Find("tr")
	names := cellTexts(rows.Eq(1))
	lastUpdated := cellTexts(rows.Eq(2))
	conducted := cellTexts(rows.Eq(3))
	attended := cellTexts(studentRow)

	// leading label cells: one on the date/conducted rows, serial
	// number + roll on the student row
	if len(lastUpdated) > 0 {
		lastUpdated = lastUpdated[1:]
	}
	if len(conducted) > 0 {
		conducted = conducted[1:]
	}
	if len(attended) > 2 {
		attended = attended[2:]
	} else {
		attended = nil
	}

	var subjects []SubjectAttendance
	for i := range conducted {
		conductedCount, _ := strconv.Atoi(conducted[i])

		name := ""
		if i < len(names) {
			name = names[i]
		}
		// conducted=0 means the subject has not been held yet; the
		// trailing %AGE column is the summary, not a subject
		if conductedCount == 0 || name == "%AGE" {
			continue
		}
		if name == "" {
			name = "Unknown"
		}

		attendedCount := 0
		if i < len(attended) {
			attendedCount, _ = strconv.Atoi(attended[i])
		}

		// the date cell may carry a trailing parenthetical revision
		// marker, keep only the date before it
		updated := "N/A"
		if i < len(lastUpdated) {
			if d := strings.TrimSpace(strings.Split(lastUpdated[i], "(")[0]); d != "" {
				updated = d
			}
		}

		subjects = append(subjects, SubjectAttendance{
			Subject:     name,
			Attended:    attendedCount,
			Conducted:   conductedCount,
			LastUpdated: updated,
		})
	}

	return AttendanceRecord{
		Roll:       roll,
		Percentage: percentage,
		TotalClasses: ClassTotals{
			Attended:  attendedTotal,
			Conducted: conductedTotal,
		},
		Subjects: subjects,
	}, nil
}
