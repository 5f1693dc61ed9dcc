package academics

import (
	"nbkist-backend/lib/scrapers/nbkrist"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestYearBranchSection(t *testing.T) {
	student := Student{Roll: "23KB1A0599", Section: "A", Branch: "5", Year: "21"}
	require.Equal(t, "2_CSE_A", YearBranchSection(student))

	// unknown branch codes pass through untranslated
	student.Branch = "99"
	require.Equal(t, "2_99_A", YearBranchSection(student))
}

func TestFormatAttendanceMessage(t *testing.T) {
	student := Student{Roll: "23KB1A0599", Section: "A", Branch: "5", Year: "21"}
	record := nbkrist.AttendanceRecord{
		Roll:         "23KB1A0599",
		Percentage:   85.5,
		TotalClasses: nbkrist.ClassTotals{Attended: 450, Conducted: 526},
		Subjects: []nbkrist.SubjectAttendance{
			{Subject: "DS", Attended: 45, Conducted: 50, LastUpdated: "01-02-2026"},
		},
	}

	message := FormatAttendanceMessage(student, record)
	require.Contains(t, message, "23KB1A0599")
	require.Contains(t, message, "2_CSE_A")
	require.Contains(t, message, "450/526")
	// dates collapse to DD-MM inside the subject table
	require.Contains(t, message, "01-02")
	require.NotContains(t, message, "01-02-2026")
}

func TestFormatMidmarksMessage(t *testing.T) {
	student := Student{Roll: "23KB1A0599", Section: "A", Branch: "23", Year: "21"}
	record := nbkrist.MidmarksRecord{
		Roll: "23KB1A0599",
		Subjects: []nbkrist.MidmarkEntry{
			{Subject: "DS", Kind: nbkrist.EntrySubject, M1: 20, M2: 18, Average: 19},
			{Subject: "DS LAB", Kind: nbkrist.EntryLab, M1: 9},
		},
	}

	message := FormatMidmarksMessage(student, record)
	require.Contains(t, message, "2_AIDS_A")
	require.Contains(t, message, "19")
	// zero marks render as blanks, not zeros
	require.False(t, strings.Contains(message, " 0 "), "zero marks should be blank")
}

func TestFormatAttendanceTrendMessage(t *testing.T) {
	student := Student{Roll: "23KB1A0599", Section: "A", Branch: "5", Year: "21"}
	points := []TrendPoint{
		{Date: "12-07-2026", Record: nbkrist.AttendanceRecord{Percentage: 70}},
		{Date: "19-07-2026", Record: nbkrist.AttendanceRecord{Percentage: 80}},
		{Date: "26-07-2026", Record: nbkrist.AttendanceRecord{Percentage: 90}},
	}

	message := FormatAttendanceTrendMessage(student, "23KB1A0599", points)
	require.Contains(t, message, "Last 3 Weeks")
	require.Contains(t, message, "2_CSE_A")
	// bars scale against the window's own spread
	require.Contains(t, message, "🟨 ⬜⬜⬜⬜⬜ - <code>70.0%</code> <b>(12-07)</b>")
	require.Contains(t, message, "🟩 🟩🟩🟩⬜⬜ - <code>80.0%</code> <b>(19-07)</b>")
	require.Contains(t, message, "🟩 🟩🟩🟩🟩🟩 - <code>90.0%</code> <b>(26-07)</b>")

	// a flat window renders full bars rather than dividing by zero
	flat := FormatAttendanceTrendMessage(student, "23KB1A0599", points[:1])
	require.Contains(t, flat, "🟨 🟨🟨🟨🟨🟨 - <code>70.0%</code>")

	empty := FormatAttendanceTrendMessage(student, "23KB1A0599", nil)
	require.Contains(t, empty, "No weekly reports")
}

func TestProgressBar(t *testing.T) {
	require.Equal(t, strings.Repeat("🟩", 8)+strings.Repeat("⬜", 2), progressBar(85.5))
	require.Equal(t, strings.Repeat("⬜", 10), progressBar(3))
	require.Equal(t, strings.Repeat("🟥", 4)+strings.Repeat("⬜", 6), progressBar(49))
}
