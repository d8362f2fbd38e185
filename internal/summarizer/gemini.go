package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/reviewpulse/internal/config"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
	"google.golang.org/genai"
)

const (
	geminiSystemPrompt = "You summarize customer product reviews for shoppers. " +
		"Write one neutral paragraph of at most 120 words covering what reviewers " +
		"consistently praise and criticise. Do not invent details and do not use lists."

	// maxReviewBytes caps each review in the prompt.
	maxReviewBytes = 2000
)

// contentGenerator is the subset of *genai.Models the provider calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider summarizes reviews with a hosted Gemini model.
type GeminiProvider struct {
	models contentGenerator
	model  string
}

// NewGeminiProvider creates a Gemini API client for cfg.
func NewGeminiProvider(ctx context.Context, cfg config.GeminiConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newGeminiProvider(client.Models, cfg.Model), nil
}

func newGeminiProvider(g contentGenerator, model string) *GeminiProvider {
	return &GeminiProvider{models: g, model: model}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Summarize(ctx context.Context, reviews []string) (string, error) {
	if len(reviews) == 0 {
		return "", fmt.Errorf("%w: no reviews to summarize", ErrInvalidResponse)
	}

	temperature := float32(0.3)
	resp, err := p.models.GenerateContent(ctx, p.model, genai.Text(buildPrompt(reviews)), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: geminiSystemPrompt}}},
		Temperature:       &temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return responseText(resp)
}

func buildPrompt(reviews []string) string {
	var b strings.Builder
	b.WriteString("Summarize these reviews:\n")
	for i, r := range reviews {
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncateString(strings.TrimSpace(r), maxReviewBytes))
	}
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: blocked by safety filters", ErrInvalidResponse)
	}
	if cand.Content == nil {
		return "", fmt.Errorf("%w: empty candidate", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty summary", ErrInvalidResponse)
	}
	return text, nil
}

var _ models.SummaryProvider = (*GeminiProvider)(nil)
