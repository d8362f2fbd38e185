package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/config"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

// maxErrorBody caps how much of a failed response is kept for the error message.
const maxErrorBody = 512

// ModelProvider calls the review summarization model over HTTP.
type ModelProvider struct {
	url    string
	client *http.Client
}

// NewModelProvider creates a client for the endpoint in cfg. A zero timeout
// leaves the deadline to the caller's context.
func NewModelProvider(cfg config.ModelConfig, timeout time.Duration) *ModelProvider {
	return &ModelProvider{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *ModelProvider) Name() string { return "model" }

type modelRequest struct {
	Reviews []string `json:"reviews"`
}

type modelResponse struct {
	FinalSummary *struct {
		SummaryParagraph string `json:"summary_paragraph"`
	} `json:"final_summary"`
}

// Summarize posts {reviews} and returns final_summary.summary_paragraph.
func (p *ModelProvider) Summarize(ctx context.Context, reviews []string) (string, error) {
	if len(reviews) == 0 {
		return "", fmt.Errorf("%w: no reviews to summarize", ErrInvalidResponse)
	}

	body, err := json.Marshal(modelRequest{Reviews: reviews})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var out modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrInvalidResponse, err)
	}
	if out.FinalSummary == nil {
		return "", fmt.Errorf("%w: missing final_summary", ErrInvalidResponse)
	}
	summary := strings.TrimSpace(out.FinalSummary.SummaryParagraph)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary_paragraph", ErrInvalidResponse)
	}
	return summary, nil
}

// statusError maps a non-200 response. Server-side failures and throttling
// are worth retrying; other client errors are not.
func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(snippet))

	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, detail)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

var _ models.SummaryProvider = (*ModelProvider)(nil)
