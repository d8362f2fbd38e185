// Package summarizer turns a list of review texts into one summary paragraph.
//
// Two providers are available: ModelProvider posts the reviews to a
// dedicated summarization endpoint, GeminiProvider prompts a hosted Gemini
// model. Failures are reported through the sentinel errors in this package;
// ErrInvalidResponse means retrying the same input will not help.
package summarizer

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/kiranshivaraju/reviewpulse/internal/config"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

// NewProvider constructs the provider selected by config.
// Called once at worker startup.
func NewProvider(ctx context.Context, cfg config.SummarizerConfig) (models.SummaryProvider, error) {
	switch cfg.Provider {
	case "model":
		return NewModelProvider(cfg.Model, cfg.Timeout), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg.Gemini)
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q: must be one of model, gemini", cfg.Provider)
	}
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
