package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/gomail.v2"

	"github.com/bookwise-inc/bookwise/internal/application/billing/notification"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	"github.com/bookwise-inc/bookwise/internal/shared/config"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
	"github.com/bookwise-inc/bookwise/internal/shared/services/markdown"
)

// Mailer is satisfied by *gomail.Dialer.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotificationSender implements notification.Sender over SMTP.
type SMTPNotificationSender struct {
	mailer          Mailer
	fromAddress     string
	fromName        string
	maxAttempts     uint
	initialInterval time.Duration
	renderer        markdown.Renderer
	printer         *message.Printer
	logger          logger.Interface
}

func NewSMTPNotificationSender(cfg config.EmailConfig, log logger.Interface) *SMTPNotificationSender {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return NewSMTPNotificationSenderWithMailer(cfg, dialer, log)
}

func NewSMTPNotificationSenderWithMailer(cfg config.EmailConfig, mailer Mailer, log logger.Interface) *SMTPNotificationSender {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &SMTPNotificationSender{
		mailer:          mailer,
		fromAddress:     cfg.FromAddress,
		fromName:        cfg.FromName,
		maxAttempts:     uint(attempts),
		initialInterval: 500 * time.Millisecond,
		renderer:        markdown.NewRenderer(),
		printer:         message.NewPrinter(language.English),
		logger:          log.With("component", "email.smtp"),
	}
}

type renderedEmail struct {
	Subject string
	Plain   string
	HTML    string
}

// Send renders n and delivers it, retrying transient SMTP failures.
func (s *SMTPNotificationSender) Send(ctx context.Context, n notification.Notification) error {
	if n.ContactEmail == "" {
		return errors.New("notification has no recipient")
	}
	rendered, err := s.render(n)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.fromAddress, s.fromName)
	msg.SetHeader("To", n.ContactEmail)
	msg.SetHeader("Subject", rendered.Subject)
	msg.SetBody("text/plain", rendered.Plain)
	msg.AddAlternative("text/html", rendered.HTML)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialInterval

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, s.mailer.DialAndSend(msg)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warnw("smtp send failed, retrying",
				"kind", n.Kind,
				"tenant_id", n.TenantID,
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to send %s email to tenant %d: %w", n.Kind, n.TenantID, err)
	}
	return nil
}

type templateData struct {
	TenantName  string
	Plan        string
	Amount      string
	DueDate     string
	DaysLeft    int
	CheckoutURL string
	Reason      string
}

func (s *SMTPNotificationSender) render(n notification.Notification) (*renderedEmail, error) {
	tpl, ok := templates[n.Kind]
	if !ok {
		return nil, fmt.Errorf("no email template for notification kind %q", n.Kind)
	}

	data := templateData{
		TenantName:  n.TenantName,
		Plan:        planName(n.PlanTier),
		Amount:      s.formatMoney(n.Amount),
		DaysLeft:    n.DaysLeft,
		CheckoutURL: n.CheckoutURL,
		Reason:      n.Reason,
	}
	if data.TenantName == "" {
		data.TenantName = "there"
	}
	if n.DueDate != nil {
		data.DueDate = biztime.ToBizTimezone(*n.DueDate).Format("January 2, 2006")
	}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", n.Kind, err)
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render %s body: %w", n.Kind, err)
	}
	html, err := s.renderer.ToHTMLSanitized(body.String())
	if err != nil {
		return nil, err
	}
	return &renderedEmail{Subject: subject.String(), Plain: body.String(), HTML: html}, nil
}

func (s *SMTPNotificationSender) formatMoney(m subvo.Money) string {
	unit, err := currency.ParseISO(m.Currency())
	if err != nil {
		return m.String()
	}
	return s.printer.Sprint(currency.Symbol(unit.Amount(float64(m.AmountMinor()) / 100)))
}

func planName(t subvo.PlanTier) string {
	switch t {
	case subvo.PlanTierBasic:
		return "Basic"
	case subvo.PlanTierPremium:
		return "Premium"
	case subvo.PlanTierEnterprise:
		return "Enterprise"
	default:
		return "Free"
	}
}
