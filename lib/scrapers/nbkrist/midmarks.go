package nbkrist

import (
	"regexp"
	"strconv"
	"strings"

	"nbkist-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type EntryKind string

const (
	EntrySubject EntryKind = "Subject"
	EntryLab     EntryKind = "Lab"
)

type MidmarkEntry struct {
	Subject string    `json:"subject"`
	Kind    EntryKind `json:"type"`
	M1      int       `json:"M1"`
	// labs carry only M1, M2 and Average stay zero for them
	M2      int `json:"M2"`
	Average int `json:"average"`
}

type MidmarksRecord struct {
	Roll     string         `json:"rollno"`
	Subjects []MidmarkEntry `json:"subjects"`
}

// matches the "M2(average)" tail of a theory subject cell
var m2WithAverage = regexp.MustCompile(`^(\d+)\((\d+)\)`)

// ParseMidmarks extracts one student's mid-term marks from a class report.
//
// The header row renders theory subjects as hyperlinks and labs as plain
// text, which is the only signal telling the two apart. Theory cells hold
// "M1/M2(average)", lab cells a bare mark. Subject columns precede lab
// columns, so marks are zipped against the subject names first and the
// lab names after.
func ParseMidmarks(rawDocument, roll string) (MidmarksRecord, error) {
	roll = CanonicalRoll(roll)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawDocument))
	if err != nil {
		return MidmarksRecord{}, err
	}

	studentRow := findStudentRow(doc, roll)
	if studentRow.Length() == 0 {
		return MidmarksRecord{}, ErrNoDataFound
	}

	// skip the serial number and roll number cells
	var marks []string
	studentRow.Find("td").Each(func(i int, td *goquery.Selection) {
		if i < 2 {
			return
		}
		marks = append(marks, htmlutil.CleanText(td.Text()))
	})

	var subjects, labs []string
	doc.Find("tr").Eq(1).Find("td").Each(func(_ int, td *goquery.Selection) {
		anchor := td.Find("a")
		if anchor.Length() > 0 {
			if name := htmlutil.CleanText(anchor.Text()); name != "" {
				subjects = append(subjects, name)
			}
			return
		}
		if name := htmlutil.CleanText(td.Text()); name != "" {
			labs = append(labs, name)
		}
	})

	var entries []MidmarkEntry
	for i, name := range append(append([]string{}, subjects...), labs...) {
		cell := ""
		if i < len(marks) {
			cell = marks[i]
		}

		if i < len(subjects) {
			entries = append(entries, parseSubjectCell(name, cell))
			continue
		}

		m1, _ := strconv.Atoi(cell)
		entries = append(entries, MidmarkEntry{
			Subject: name,
			Kind:    EntryLab,
			M1:      m1,
		})
	}

	return MidmarksRecord{
		Roll:     roll,
		Subjects: entries,
	}, nil
}

func parseSubjectCell(name, cell string) MidmarkEntry {
	entry := MidmarkEntry{
		Subject: name,
		Kind:    EntrySubject,
	}

	parts := strings.SplitN(cell, "/", 2)
	entry.M1, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		if m := m2WithAverage.FindStringSubmatch(strings.TrimSpace(parts[1])); m != nil {
			entry.M2, _ = strconv.Atoi(m[1])
			entry.Average, _ = strconv.Atoi(m[2])
		}
	}
	return entry
}
