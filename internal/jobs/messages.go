// Package jobs holds the review summarization pipeline: the service behind
// the HTTP API, the producers that queue work and the handlers that consume
// it. Handlers are plain sequential functions; delivery, acknowledgment and
// retry are owned by the broker.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/reviewpulse/internal/broker"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReviewJob asks a review consumer to summarize one product.
type ReviewJob struct {
	ProductID     string   `json:"product_id" validate:"required,max=128"`
	Title         string   `json:"title"`
	Link          string   `json:"link"`
	Reviews       []string `json:"reviews" validate:"required,min=1,dive,required"`
	UserEmail     string   `json:"user_email" validate:"required,email"`
	UserFirstName string   `json:"user_firstname"`
}

// EmailJob asks an email consumer to render and send one notification.
type EmailJob struct {
	To           string            `json:"to" validate:"required,email"`
	Subject      string            `json:"subject" validate:"required"`
	TemplateName string            `json:"templateName" validate:"required"`
	TemplateData map[string]string `json:"templateData"`
}

// Publisher appends a message to a queue.
type Publisher interface {
	Publish(ctx context.Context, q broker.Queue, v any) (string, error)
}

// decode unmarshals and validates a message body. Unknown fields are
// ignored. Any failure is permanent since redelivery returns the same bytes.
func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return broker.Permanent(fmt.Errorf("decoding message: %w", err))
	}
	if err := validate.Struct(v); err != nil {
		return broker.Permanent(fmt.Errorf("invalid message: %w", err))
	}
	return nil
}
