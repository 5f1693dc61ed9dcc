package academics

import (
	"fmt"
	"nbkist-backend/lib/scrapers/nbkrist"
	"regexp"
	"strconv"
	"strings"
)

var ddmmyyyy = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

// numeric portal branch code -> human readable short name
var Branches = map[int]string{
	2:  "EEE",
	4:  "ECE",
	5:  "CSE",
	7:  "MECH",
	11: "CIV",
	22: "IT",
	23: "AIDS",
	32: "CSE_DS",
	33: "CSE_AIML",
}

// YearBranchSection renders the "2_CSE_A" style class label used in chat
// messages.
func YearBranchSection(student Student) string {
	branch := student.Branch
	if code, err := strconv.Atoi(student.Branch); err == nil {
		if name, ok := Branches[code]; ok {
			branch = name
		}
	}
	year := student.Year
	if len(year) > 0 {
		year = year[:1]
	}
	return fmt.Sprintf("%s_%s_%s", year, branch, student.Section)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-2] + ".."
}

func statusEmoji(percentage float64) string {
	if percentage >= 75 {
		return "🟢"
	}
	if percentage >= 50 {
		return "🟡"
	}
	return "🔴"
}

func progressBar(percentage float64) string {
	filled := int(percentage / 10)
	if filled > 10 {
		filled = 10
	}
	block := "🟥"
	if percentage >= 75 {
		block = "🟩"
	} else if percentage >= 50 {
		block = "🟨"
	}
	return strings.Repeat(block, filled) + strings.Repeat("⬜", 10-filled)
}

// FormatAttendanceMessage renders an attendance record as an HTML chat
// message. Pure presentation over the structured record, no acquisition
// logic lives here.
func FormatAttendanceMessage(student Student, record nbkrist.AttendanceRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🧑‍🎓 <b>ROLL:</b> <code>%s</code>\n", record.Roll)
	fmt.Fprintf(&b, "🏫 <b>Branch:</b> <code>%s</code>\n", YearBranchSection(student))
	fmt.Fprintf(&b, "📚 <b>Attended:</b> <code>%d/%d</code>\n\n",
		record.TotalClasses.Attended, record.TotalClasses.Conducted)
	fmt.Fprintf(&b, "📈 <b>Percentage:</b> <b> %.2f%%</b>\n", record.Percentage)
	b.WriteString(progressBar(record.Percentage))

	b.WriteString("<pre>")
	b.WriteString("SUBJ     │ ST │ATT/TOT│LAST\n")
	b.WriteString("────────────────────────────\n")
	for _, sub := range record.Subjects {
		percentage := float64(sub.Attended) / float64(sub.Conducted) * 100

		last := sub.LastUpdated
		if ddmmyyyy.MatchString(last) {
			last = last[:5] // keep DD-MM
		}
		if last == "" {
			last = "N/A"
		}

		fmt.Fprintf(&b, "%-9s │ %s │%2d/%2d │%-4s\n",
			truncate(sub.Subject, 8),
			statusEmoji(percentage),
			sub.Attended, sub.Conducted,
			last,
		)
	}
	b.WriteString("────────────────────────────</pre>")

	return b.String()
}

// FormatMidmarksMessage renders a mid-marks record as an HTML chat
// message.
func FormatMidmarksMessage(student Student, record nbkrist.MidmarksRecord) string {
	var b strings.Builder

	b.WriteString("<b>📊 Mid Marks Report</b>\n\n")
	fmt.Fprintf(&b, "🧑‍🎓 <b>ID:</b> <code>%s</code>\n", record.Roll)
	fmt.Fprintf(&b, "🏫 <b>Branch:</b> <code>%s</code>\n\n", YearBranchSection(student))

	b.WriteString("<pre>")
	b.WriteString("SUBJECT      │ TYPE │ M1  M2  AVG\n")
	b.WriteString("─────────────────────────────────\n")
	for _, sub := range record.Subjects {
		kind := truncate(string(sub.Kind), 4)
		fmt.Fprintf(&b, "%-11s │ %-4s │ %s %s %s\n",
			truncate(sub.Subject, 11),
			kind,
			markCell(sub.M1, 2),
			markCell(sub.M2, 2),
			markCell(sub.Average, 3),
		)
	}
	b.WriteString("</pre>")

	return b.String()
}

// FormatAttendanceTrendMessage renders weekly trend points as an HTML
// chat message, one sparkline row per Sunday report, oldest first. Bars
// are scaled to the window's own min/max so week-to-week movement stays
// visible even when the absolute spread is small.
func FormatAttendanceTrendMessage(student Student, roll string, points []TrendPoint) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>📊 Attendance Trend (Last %d Weeks)</b>\n\n", len(points))
	fmt.Fprintf(&b, "🧑‍🎓 <b>ID:</b> <code>%s</code>\n", roll)
	fmt.Fprintf(&b, "🏫 <b>Branch:</b> <code>%s</code>\n\n", YearBranchSection(student))

	if len(points) == 0 {
		b.WriteString("No weekly reports available yet.")
		return b.String()
	}

	min, max := points[0].Record.Percentage, points[0].Record.Percentage
	for _, p := range points[1:] {
		if p.Record.Percentage < min {
			min = p.Record.Percentage
		}
		if p.Record.Percentage > max {
			max = p.Record.Percentage
		}
	}

	for _, p := range points {
		scaled := 5
		if max != min {
			scaled = int((p.Record.Percentage-min)/(max-min)*5 + 0.5)
		}

		block := "🟥"
		if p.Record.Percentage >= 74 {
			block = "🟩"
		} else if p.Record.Percentage >= 50 {
			block = "🟨"
		}

		date := p.Date
		if ddmmyyyy.MatchString(date) {
			date = date[:5] // keep DD-MM
		}
		fmt.Fprintf(&b, "%s %s%s - <code>%.1f%%</code> <b>(%s)</b>\n",
			block,
			strings.Repeat(block, scaled),
			strings.Repeat("⬜", 5-scaled),
			p.Record.Percentage,
			date,
		)
	}

	return b.String()
}

func markCell(mark, width int) string {
	if mark == 0 {
		return strings.Repeat(" ", width)
	}
	return fmt.Sprintf("%*d", width, mark)
}
