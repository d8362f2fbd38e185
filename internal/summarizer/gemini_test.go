package summarizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp *genai.GenerateContentResponse
	err  error

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content}},
	}
}

func TestGeminiProvider_Summarize(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Runs small ", "but comfortable.")}
	p := newGeminiProvider(gen, "gemini-2.0-flash")

	summary, err := p.Summarize(context.Background(), []string{"Runs small", "Comfortable"})
	require.NoError(t, err)
	assert.Equal(t, "Runs small but comfortable.", summary)
	assert.Equal(t, "gemini", p.Name())

	assert.Equal(t, "gemini-2.0-flash", gen.model)
	require.Len(t, gen.contents, 1)
	require.NotEmpty(t, gen.contents[0].Parts)
	assert.Contains(t, gen.contents[0].Parts[0].Text, "1. Runs small")
	assert.Contains(t, gen.contents[0].Parts[0].Text, "2. Comfortable")
	require.NotNil(t, gen.config.SystemInstruction)
}

func TestGeminiProvider_Errors(t *testing.T) {
	blocked := textResponse("partial")
	blocked.Candidates[0].FinishReason = genai.FinishReasonSafety

	tests := []struct {
		name string
		gen  *fakeGenerator
		want error
	}{
		{"api error", &fakeGenerator{err: errors.New("503 unavailable")}, ErrProviderUnavailable},
		{"deadline", &fakeGenerator{err: context.DeadlineExceeded}, ErrInferenceTimeout},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, ErrInvalidResponse},
		{"empty text", &fakeGenerator{resp: textResponse("  ")}, ErrInvalidResponse},
		{"safety", &fakeGenerator{resp: blocked}, ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newGeminiProvider(tt.gen, "m")
			_, err := p.Summarize(context.Background(), []string{"x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuildPrompt_TruncatesLongReviews(t *testing.T) {
	long := make([]byte, maxReviewBytes+100)
	for i := range long {
		long[i] = 'a'
	}
	prompt := buildPrompt([]string{string(long)})
	assert.Less(t, len(prompt), maxReviewBytes+64)
}
