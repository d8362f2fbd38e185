package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/reviewpulse/internal/config"
)

// ErrInvalidMessage means the message can never be delivered as addressed.
var ErrInvalidMessage = errors.New("invalid email message")

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers rendered messages. Implementations must be safe for
// concurrent use.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// NewTransport builds the transport selected by cfg.
func NewTransport(cfg config.MailConfig, logger *slog.Logger) (Transport, error) {
	switch cfg.Transport {
	case "smtp":
		return NewSMTPTransport(cfg), nil
	case "log":
		return NewLogTransport(cfg.From, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q: must be one of smtp, log", cfg.Transport)
	}
}

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct {
	from   string
	logger *slog.Logger
}

func NewLogTransport(from string, logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{from: from, logger: logger.With("component", "mail")}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
	}
	t.logger.InfoContext(ctx, "email not sent, log transport",
		"from", t.from,
		"to", msg.To,
		"subject", msg.Subject,
		"html", msg.HTML,
	)
	return nil
}
