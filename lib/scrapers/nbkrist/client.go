// Package nbkrist scrapes the NBKRIST attendance and mid-marks portal.
// The portal has no API, only session-authenticated HTML form posts that
// return one report table per class section, so the client here owns a
// single shared PHPSESSID for the whole process and renews it on demand.
package nbkrist

import (
	"context"
	"fmt"
	"nbkist-backend/lib/keyval"
	"nbkist-backend/lib/telemetry"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("nbkist.lib.scrapers.nbkrist")

type RecordKind string

const (
	KindAttendance RecordKind = "att"
	KindMidmarks   RecordKind = "mid"
)

// ClassParams identify one class section, the unit of granularity the
// portal returns per request.
type ClassParams struct {
	YearSem string
	Branch  string
	Section string
	// attendance as of this "DD-MM-YYYY" date; empty means the
	// far-future cutoff, i.e. the cumulative total up to today
	AsOfDate string
}

const (
	loginPath      = "/attendance/attendanceLogin.php"
	attendancePath = "/attendance/attendanceTillTodayReport.php"
	midmarksPath   = "/mid_marks/marksConsolidateReport.php"

	// a far-future as-of date, which makes the portal report the
	// cumulative total instead of a single day
	reportCutoffDate = "27-03-2030"

	// the portal accepts any syntactically plausible unauthenticated
	// token as a pending session, so renewal mints one locally
	sessionTokenPrefix = "ggpmgfj8dssskkp2q2h6db"

	sessionKey = "nbkrist:session"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0"

	// substring unique to the portal's login form, its presence in a
	// report response means the session has expired
	loginPageFragment = "<tr><td>User Name</td><td>:</td><td><input type=textbox name='username' id='username'"

	blockedMarker = "Blocked"
)

type ClientOptions struct {
	BaseUrl  string
	Username string
	Password string
	// academic year the portal expects in every form, e.g. "2025-26"
	AcadYear string
	// holds the shared session token across requests (and restarts,
	// when backed by a durable store)
	Session keyval.Store
	// per-attempt budget, defaults to 5s
	Timeout time.Duration
}

type Client struct {
	http     *resty.Client
	baseUrl  string
	username string
	password string
	acadYear string
	session  keyval.Store

	// guards the renew-then-retry sequence so concurrent expiries
	// collapse into one in-flight renewal
	renewMu sync.Mutex
}

func NewClient(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 5
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetTimeout(opts.Timeout)
	client.SetRedirectPolicy(resty.NoRedirectPolicy())
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Origin", opts.BaseUrl)
	client.SetHeader("Upgrade-Insecure-Requests", "1")
	client.SetHeader("Cache-Control", "max-age=0")
	telemetry.InstrumentResty(client, "nbkist.scrapers.nbkrist.http")

	return &Client{
		http:     client,
		baseUrl:  opts.BaseUrl,
		username: opts.Username,
		password: opts.Password,
		acadYear: opts.AcadYear,
		session:  opts.Session,
	}
}

func (c *Client) reportPath(kind RecordKind) string {
	if kind == KindMidmarks {
		return midmarksPath
	}
	return attendancePath
}

func (c *Client) buildForm(kind RecordKind, class ClassParams) map[string]string {
	asOf := class.AsOfDate
	if asOf == "" {
		asOf = reportCutoffDate
	}
	form := map[string]string{
		"acadYear":         c.acadYear,
		"branch":           class.Branch,
		"section":          class.Section,
		"dateOfAttendance": asOf,
	}
	if kind == KindMidmarks {
		form["yearSem"] = class.YearSem
		form["midsChosen"] = "mid1, mid2, mid3"
	} else if class.YearSem != "" {
		// the attendance report wants the even semester of the year
		form["yearSem"] = class.YearSem[:1] + "2"
	}
	return form
}

func (c *Client) currentToken(ctx context.Context) string {
	token, ok, err := c.session.Get(ctx, sessionKey)
	if err != nil || !ok {
		return ""
	}
	return token
}

func isLoginPage(body string) bool {
	return strings.Contains(body, loginPageFragment)
}

func isReportBlocked(body string) bool {
	return strings.Contains(body, blockedMarker)
}

// FetchReport posts the report form for one class section and returns the
// raw document. it retries exactly once after a session renewal; network
// failures surface as ErrServerDown so the caller can fall back to its
// last snapshot.
func (c *Client) FetchReport(ctx context.Context, kind RecordKind, class ClassParams) (string, error) {
	ctx, span := tracer.Start(ctx, "FetchReport")
	defer span.End()

	token := c.currentToken(ctx)
	body, err := c.postReport(ctx, kind, class, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report request failed")
		return "", fmt.Errorf("%w: %v", ErrServerDown, err)
	}

	if isLoginPage(body) {
		token, err = c.renewSession(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "session renewal failed")
			return "", err
		}

		body, err = c.postReport(ctx, kind, class, token)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "report retry failed")
			return "", fmt.Errorf("%w: %v", ErrServerDown, err)
		}
		if isLoginPage(body) {
			return "", ErrSessionInvalid
		}
	}

	if isReportBlocked(body) {
		span.SetStatus(codes.Ok, "report blocked by admin")
		return "", ErrReportBlocked
	}

	return body, nil
}

func (c *Client) postReport(ctx context.Context, kind RecordKind, class ClassParams, token string) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.baseUrl+c.reportPath(kind)).
		SetHeader("Cookie", fmt.Sprintf("PHPSESSID=%s", token)).
		SetFormData(c.buildForm(kind, class)).
		Post(c.reportPath(kind))
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// renewSession mints a fresh token and authenticates it against the login
// endpoint. `staleToken` is the token the caller just failed with; if
// another request already renewed in the meantime the new token is reused
// instead of racing a second login.
func (c *Client) renewSession(ctx context.Context, staleToken string) (string, error) {
	ctx, span := tracer.Start(ctx, "renewSession")
	defer span.End()

	c.renewMu.Lock()
	defer c.renewMu.Unlock()

	current := c.currentToken(ctx)
	if current != "" && current != staleToken {
		span.SetStatus(codes.Ok, "reusing concurrent renewal")
		return current, nil
	}

	token, err := c.generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.baseUrl+loginPath).
		SetHeader("Cookie", fmt.Sprintf("PHPSESSID=%s", token)).
		SetFormData(map[string]string{
			"username": c.username,
			"password": c.password,
			"captcha":  "",
		}).
		Post(loginPath)
	// the portal answers a successful login with a redirect, which the
	// no-redirect policy reports as an error
	redirected := err != nil && strings.Contains(err.Error(), "auto redirect is disabled")
	if err != nil && !redirected {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login request failed")
		return "", fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if !redirected && res.StatusCode() >= 400 {
		span.SetStatus(codes.Error, "login rejected")
		return "", ErrSessionInvalid
	}

	err = c.session.Set(ctx, sessionKey, token, 0)
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Ok, "session renewed")
	return token, nil
}

func (c *Client) generateSessionToken() (string, error) {
	suffix, err := random.String(6)
	if err != nil {
		return "", err
	}
	return sessionTokenPrefix + strings.ToLower(suffix) + "0", nil
}
