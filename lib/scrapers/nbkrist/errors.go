package nbkrist

import "errors"

// the closed set of failures crossing the scraper boundary. callers map
// these to user guidance, anything else is a bug.
var (
	// upstream unreachable or timing out
	ErrServerDown = errors.New("college server is not responding")
	// session renewal itself failed, the portal rejected the service
	// credentials. needs operator intervention.
	ErrSessionInvalid = errors.New("portal rejected service credentials")
	// the admin switched reports off. authoritative, never retried.
	ErrReportBlocked = errors.New("report is blocked by the admin")
	// the document came back fine but the roll number has no row in it
	ErrNoDataFound = errors.New("no data found for this roll number")
)
