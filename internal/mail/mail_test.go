package mail_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/kiranshivaraju/reviewpulse/internal/config"
	"github.com/kiranshivaraju/reviewpulse/internal/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Renderer ---

func TestRender_ReviewReady(t *testing.T) {
	r, err := mail.NewRenderer()
	require.NoError(t, err)

	html, err := r.Render(mail.TemplateReviewReady, map[string]string{
		"user":          "Ada",
		"product_title": "Trail Runner 2",
		"product_link":  "https://shop.example.com/p/B000123",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Hi Ada,")
	assert.Contains(t, html, "<strong>Trail Runner 2</strong>")
	assert.Contains(t, html, `href="https://shop.example.com/p/B000123"`)
}

func TestRender_EscapesValues(t *testing.T) {
	r, err := mail.NewRenderer()
	require.NoError(t, err)

	html, err := r.Render(mail.TemplateReviewReady, map[string]string{
		"user":          "<script>alert(1)</script>",
		"product_title": "Tom & Jerry",
		"product_link":  "javascript:alert(1)",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "Tom &amp; Jerry")
	assert.NotContains(t, html, `href="javascript:`)
}

func TestRender_MissingVars(t *testing.T) {
	r, err := mail.NewRenderer()
	require.NoError(t, err)

	html, err := r.Render(mail.TemplateReviewReady, nil)
	require.NoError(t, err)
	assert.Contains(t, html, "Hi there,")
	assert.Contains(t, html, "your product")
	assert.NotContains(t, html, "Open the product page")
}

func TestRender_UnknownTemplate(t *testing.T) {
	r, err := mail.NewRenderer()
	require.NoError(t, err)

	_, err = r.Render("welcome", nil)
	assert.ErrorIs(t, err, mail.ErrUnknownTemplate)
}

// --- Transports ---

func TestNewTransport(t *testing.T) {
	tr, err := mail.NewTransport(config.MailConfig{Transport: "smtp", From: "noreply@example.com"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &mail.SMTPTransport{}, tr)

	tr, err = mail.NewTransport(config.MailConfig{Transport: "log"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &mail.LogTransport{}, tr)

	_, err = mail.NewTransport(config.MailConfig{Transport: "sendgrid"}, nil)
	assert.Error(t, err)
}

func TestLogTransport_Send(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	tr := mail.NewLogTransport("noreply@example.com", logger)

	err := tr.Send(context.Background(), mail.Message{
		To:      "ada@example.com",
		Subject: mail.SubjectReviewReady,
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "mail", entry["component"])
	assert.Equal(t, "ada@example.com", entry["to"])
	assert.Equal(t, "Your review summary is ready", entry["subject"])
}

func TestLogTransport_EmptyRecipient(t *testing.T) {
	tr := mail.NewLogTransport("noreply@example.com", nil)
	err := tr.Send(context.Background(), mail.Message{})
	assert.ErrorIs(t, err, mail.ErrInvalidMessage)
}

func TestSMTPTransport_InvalidAddresses(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"bad recipient", "noreply@example.com", "not an address"},
		{"bad sender", "", "ada@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := mail.NewSMTPTransport(config.MailConfig{
				From: tt.from,
				SMTP: config.SMTPConfig{Host: "127.0.0.1", Port: 1},
			})
			err := tr.Send(context.Background(), mail.Message{To: tt.to, Subject: "s", HTML: "h"})
			assert.ErrorIs(t, err, mail.ErrInvalidMessage)
		})
	}
}

func TestSMTPTransport_Unreachable(t *testing.T) {
	tr := mail.NewSMTPTransport(config.MailConfig{
		From: "noreply@example.com",
		SMTP: config.SMTPConfig{Host: "127.0.0.1", Port: 1},
	})
	err := tr.Send(context.Background(), mail.Message{To: "ada@example.com", Subject: "s", HTML: "h"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, mail.ErrInvalidMessage, "connection failures are retryable")
}
