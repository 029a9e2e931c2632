package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"PulseQueue/internal/failure"
)

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string

	// RetryBudget bounds how long transient SMTP failures are retried
	// before the error is returned. Zero disables retries.
	RetryBudget time.Duration
}

// Send builds the MIME message and sends it, retrying transient failures
// with exponential backoff within RetryBudget.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	for name, value := range msg.Headers {
		m.SetHeader(name, value)
	}
	for name, value := range msg.Tags {
		m.SetHeader("X-Tag-"+name, value)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.Host)
	m.SetHeader("Message-ID", messageID)

	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else {
		m.SetBody("text/html", msg.HTML)
	}

	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := smtpError(d.DialAndSend(m))
		if err != nil && failure.Classify(err) == failure.Permanent {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = s.RetryBudget

	var policy backoff.BackOff = b
	if s.RetryBudget <= 0 {
		policy = &backoff.StopBackOff{}
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", fmt.Errorf("smtp send error: %w", err)
	}
	return messageID, nil
}

// smtpError maps SMTP 4xx replies and network timeouts to transient codes.
func smtpError(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 421 || tpErr.Code == 450 || tpErr.Code == 451:
			return &ProviderError{Code: string(failure.CodeServiceUnavailable), Err: err}
		case tpErr.Code == 452:
			return &ProviderError{Code: string(failure.CodeThrottling), Err: err}
		default:
			return &ProviderError{Code: fmt.Sprintf("SMTP%d", tpErr.Code), Err: err}
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &ProviderError{Code: string(failure.CodeServiceUnavailable), Err: err}
	}
	return err
}
