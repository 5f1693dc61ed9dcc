package academics

import (
	"context"
	"fmt"
	"log/slog"
	"nbkist-backend/lib/timezone"
	"net/smtp"
	"sync"
	"time"

	"github.com/jordan-wright/email"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type AlertOptions struct {
	Smtp SmtpConfig
	// operator mailbox to notify
	To string
}

// Alerter emails the operator when the portal rejects the service
// credentials, since that state never heals on its own.
type Alerter struct {
	config AlertOptions

	mu       sync.Mutex
	lastSent time.Time
}

// repeated failures within the window collapse into one email
const alertCooldown = time.Hour

func NewAlerter(options AlertOptions) *Alerter {
	return &Alerter{config: options}
}

func (a *Alerter) SessionRenewalFailed(ctx context.Context, cause error) {
	a.mu.Lock()
	if timezone.Now().Sub(a.lastSent) < alertCooldown {
		a.mu.Unlock()
		return
	}
	a.lastSent = timezone.Now()
	a.mu.Unlock()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("NBKIST Bot <%s>", a.config.Smtp.EmailAddress)
	mail.To = []string{a.config.To}
	mail.Subject = "Portal credential renewal failing"
	mail.Text = []byte(fmt.Sprintf(
		`The college portal rejected the service credentials at %s.

%s

Reports will keep degrading to stored snapshots until the credentials are fixed.`,
		timezone.Now().Format(time.RFC1123),
		cause.Error(),
	))

	err := mail.Send(
		fmt.Sprintf("%s:%d", a.config.Smtp.Server, a.config.Smtp.Port),
		smtp.PlainAuth("", a.config.Smtp.EmailAddress, a.config.Smtp.Password, a.config.Smtp.Server),
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to send credential alert", "err", err)
	}
}
