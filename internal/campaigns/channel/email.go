package channel

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"leadflow_backend/internal/campaigns/domain"
	"leadflow_backend/platform/config"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

// EmailProvider delivers campaign messages over SMTP via go-mail.
type EmailProvider struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewEmailProvider creates the SMTP provider, or nil when email is not
// configured.
func NewEmailProvider(cfg config.EmailConfig) *EmailProvider {
	if !cfg.GetEmailEnabled() {
		return nil
	}
	return &EmailProvider{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (p *EmailProvider) Channel() domain.Channel {
	return domain.ChannelEmail
}

func (p *EmailProvider) Validate(r domain.Recipient) error {
	if !strings.Contains(r.Email, "@") {
		return NewSendError("invalid_address", "recipient has no usable email address", false)
	}
	return nil
}

// Send delivers one message. SMTP has no provider-side delivery id, so the
// generated Message-ID doubles as the correlation id for webhooks from a
// downstream relay.
func (p *EmailProvider) Send(ctx context.Context, msg Message) (string, error) {
	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), p.host)

	m := gomail.NewMsg()
	if err := m.FromFormat(p.fromName, p.fromEmail); err != nil {
		return "", NewFatalSendError("config_invalid", "smtp from: "+err.Error())
	}
	if err := m.To(msg.To); err != nil {
		return "", NewSendError("invalid_address", "smtp to: "+err.Error(), false)
	}
	m.SetMessageIDWithValue(messageID)
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	client, err := gomail.NewClient(p.host,
		gomail.WithPort(p.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(p.username),
		gomail.WithPassword(p.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return "", NewFatalSendError("config_invalid", "smtp client: "+err.Error())
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", Classify(fmt.Errorf("smtp send: %w", err))
	}

	return messageID, nil
}
