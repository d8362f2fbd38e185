package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/reviewpulse/internal/config"
	gomail "github.com/wneessen/go-mail"
)

// SMTPTransport sends mail through an SMTP relay. A connection is dialed per
// message; the relay is expected to be nearby.
type SMTPTransport struct {
	cfg config.MailConfig
}

func NewSMTPTransport(cfg config.MailConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(t.cfg.From); err != nil {
		return fmt.Errorf("%w: sender %q: %v", ErrInvalidMessage, t.cfg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrInvalidMessage, msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	client, err := gomail.NewClient(t.cfg.SMTP.Host, t.options()...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		var sendErr *gomail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() && sendErr.Reason == gomail.ErrSMTPRcptTo {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (t *SMTPTransport) options() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(t.cfg.SMTP.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if t.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(t.cfg.Timeout))
	}
	if t.cfg.SMTP.Username != "" && t.cfg.SMTP.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.cfg.SMTP.Username),
			gomail.WithPassword(t.cfg.SMTP.Password),
		)
	}
	return opts
}

var _ Transport = (*SMTPTransport)(nil)
