package academics

import (
	"context"
	"nbkist-backend/lib/keyval"
	"nbkist-backend/lib/scrapers/nbkrist"
	"nbkist-backend/lib/testutil"
	"nbkist-backend/services/academics/db"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const attendanceDoc = `<html><body><table>
<tr><td>N.B.K.R.I.S.T :: Attendance Till Today</td></tr>
<tr><td>DS</td><td>OS</td><td>%AGE</td></tr>
<tr><td>Last Updated</td><td>01-02-2026(v2)</td><td>30-01-2026</td><td></td></tr>
<tr><td>Conducted</td><td>50</td><td>0</td><td>526</td></tr>
<tr id="23KB1A0599"><td>1</td><td>23KB1A0599</td><td>45</td><td>0</td><td class="tdPercent">85.50 (450/526)</td></tr>
<tr id="23KB1A0512"><td>2</td><td>23KB1A0512</td><td>40</td><td>0</td><td class="tdPercent">80.00 (400/526)</td></tr>
</table></body></html>`

const midmarksDoc = `<html><body><table>
<tr><td>N.B.K.R.I.S.T :: Consolidated Mid Marks</td></tr>
<tr><td></td><td></td><td><a href="subject.php?id=1">DS</a></td><td><a href="subject.php?id=2">OS</a></td><td>DS LAB</td></tr>
<tr id="23KB1A0599"><td>1</td><td>23KB1A0599</td><td>20/20(20)</td><td>18/</td><td>9</td></tr>
</table></body></html>`

type fakePortal struct {
	mu          sync.Mutex
	reportCalls int
	attendance  string
	midmarks    string
}

func (p *fakePortal) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reportCalls
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/attendance/attendanceLogin.php", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/attendance/attendanceIndex.php", http.StatusFound)
	})
	mux.HandleFunc("/attendance/attendanceTillTodayReport.php", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.reportCalls++
		p.mu.Unlock()
		w.Write([]byte(p.attendance))
	})
	mux.HandleFunc("/mid_marks/marksConsolidateReport.php", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.reportCalls++
		p.mu.Unlock()
		w.Write([]byte(p.midmarks))
	})
	return mux
}

func setup(t *testing.T, portal *fakePortal) (Service, testutil.ServiceResult, *httptest.Server, func()) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/academics",
		DbSchema: db.Schema,
	})

	server := httptest.NewServer(portal.handler())

	session := keyval.NewLRUStore(4)
	// pre-authenticated sessions keep login traffic out of these tests
	require.NoError(t, session.Set(context.Background(), "nbkrist:session", "test-token", 0))

	client := nbkrist.NewClient(nbkrist.ClientOptions{
		BaseUrl:  server.URL,
		Username: "service-user",
		Password: "service-pass",
		AcadYear: "2025-26",
		Session:  session,
		Timeout:  time.Second * 2,
	})

	service := NewService(Options{
		Database: result.DB,
		Cache:    keyval.NewLRUStore(256),
		Client:   client,
	})

	ctx := context.Background()
	for _, student := range []Student{
		{Roll: "23KB1A0599", Name: "Test Student", Section: "A", Branch: "5", Year: "21"},
		{Roll: "23KB1A0512", Name: "Class Mate", Section: "A", Branch: "5", Year: "21"},
	} {
		require.NoError(t, service.Store().PutStudent(ctx, student))
	}

	return service, result, server, func() {
		server.Close()
		cleanup()
	}
}

func TestAttendanceServedFromHotCache(t *testing.T) {
	portal := &fakePortal{attendance: attendanceDoc}
	service, _, _, cleanup := setup(t, portal)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	first, source, err := service.GetAttendance(ctx, "23KB1A0599")
	require.NoError(t, err)
	require.Equal(t, SourceFresh, source)
	require.Equal(t, 1, portal.calls())

	second, source, err := service.GetAttendance(ctx, "23KB1A0599")
	require.NoError(t, err)
	require.Equal(t, SourceCached, source)
	require.Equal(t, first, second)
	// no additional portal traffic within the TTL window
	require.Equal(t, 1, portal.calls())
}

func TestAttendanceBulkPopulatesWholeClass(t *testing.T) {
	portal := &fakePortal{attendance: attendanceDoc}
	service, _, _, cleanup := setup(t, portal)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, _, err := service.GetAttendance(ctx, "23KB1A0599")
	require.NoError(t, err)

	// the classmate's record came along for free in the same scrape
	record, source, err := service.GetAttendance(ctx, "23KB1A0512")
	require.NoError(t, err)
	require.Equal(t, SourceCached, source)
	require.Equal(t, 80.0, record.Percentage)
	require.Equal(t, 1, portal.calls())
}

func TestAttendanceSnapshotFallback(t *testing.T) {
	portal := &fakePortal{attendance: attendanceDoc}
	service, _, server, cleanup := setup(t, portal)
	defer cleanup()
	server.Close() // portal gone before any request

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	require.NoError(t, service.Store().PutSnapshot(
		ctx, "21", "5", "A", nbkrist.KindAttendance, attendanceDoc))

	record, source, err := service.GetAttendance(ctx, "23KB1A0599")
	require.NoError(t, err)
	require.Equal(t, SourceStale, source)
	require.Equal(t, 85.5, record.Percentage)

	// snapshot parses populate the hot cache too, it is as good as we have
	_, source, err = service.GetAttendance(ctx, "23KB1A0512")
	require.NoError(t, err)
	require.Equal(t, SourceCached, source)
}

func TestAttendanceServerDownWithoutSnapshot(t *testing.T) {
	portal := &fakePortal{attendance: attendanceDoc}
	service, _, server, cleanup := setup(t, portal)
	defer cleanup()
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, _, err := service.GetAttendance(ctx, "23KB1A0599")
	require.ErrorIs(t, err, nbkrist.ErrServerDown)
}

func TestBlockedReportNeverFallsBack(t *testing.T) {
	portal := &fakePortal{attendance: "<html><body>Blocked</body></html>"}
	service, _, _, cleanup := setup(t, portal)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	// a perfectly good snapshot exists, blocking must still win
	require.NoError(t, service.Store().PutSnapshot(
		ctx, "21", "5", "A", nbkrist.KindAttendance, attendanceDoc))

	_, _, err := service.GetAttendance(ctx, "23KB1A0599")
	require.ErrorIs(t, err, nbkrist.ErrReportBlocked)
}

func TestUnregisteredRollNumber(t *testing.T) {
	portal := &fakePortal{attendance: attendanceDoc}
	service, _, _, cleanup := setup(t, portal)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, _, err := service.GetAttendance(ctx, "99ZZ9Z9999")
	require.ErrorIs(t, err, nbkrist.ErrNoDataFound)
}

func TestMidmarksUpdatesAggregateStats(t *testing.T) {
	portal := &fakePortal{midmarks: midmarksDoc}
	service, result, _, cleanup := setup(t, portal)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	record, source, err := service.GetMidmarks(ctx, "23KB1A0599")
	require.NoError(t, err)
	require.Equal(t, SourceFresh, source)
	require.Len(t, record.Subjects, 3)

	var average float64
	err = result.DB.QueryRow(
		`SELECT mid_marks_avg FROM student_stats WHERE roll_no = ?`,
		"23KB1A0599",
	).Scan(&average)
	require.NoError(t, err)
	// (20 + 18 + 9) / 3
	require.InDelta(t, 15.6667, average, 0.001)
}

func TestComputeMidmarksAverage(t *testing.T) {
	record := nbkrist.MidmarksRecord{
		Roll: "23KB1A0599",
		Subjects: []nbkrist.MidmarkEntry{
			{Subject: "DS", Kind: nbkrist.EntrySubject, M1: 20, M2: 20, Average: 20},
		},
	}

	require.Equal(t, 20.0, ComputeMidmarksAverage(record, "21"))
	// the terminal semester marks out of 40, normalized back to /30
	require.Equal(t, 15.0, ComputeMidmarksAverage(record, "41"))
}

func TestComputeMidmarksAverageAllZero(t *testing.T) {
	record := nbkrist.MidmarksRecord{
		Roll: "23KB1A0599",
		Subjects: []nbkrist.MidmarkEntry{
			{Subject: "DS", Kind: nbkrist.EntrySubject},
			{Subject: "DS LAB", Kind: nbkrist.EntryLab},
		},
	}
	require.Equal(t, 0.0, ComputeMidmarksAverage(record, "21"))
}

func TestSearchStudentsByName(t *testing.T) {
	portal := &fakePortal{}
	service, _, _, cleanup := setup(t, portal)
	defer cleanup()

	ctx := context.Background()
	students, err := service.Store().SearchStudentsByName(ctx, "test student", 5)
	require.NoError(t, err)
	require.NotEmpty(t, students)
	require.Equal(t, "23KB1A0599", students[0].Roll)
}
