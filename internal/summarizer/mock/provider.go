package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/reviewpulse/internal/summarizer"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

// MockProvider satisfies models.SummaryProvider for testing.
type MockProvider struct {
	Name_         string
	SummarizeFunc func(ctx context.Context, reviews []string) (string, error)

	calls atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Summarize(ctx context.Context, reviews []string) (string, error) {
	m.calls.Add(1)
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, reviews)
	}
	return "", nil
}

// Calls returns how many times Summarize has been invoked.
func (m *MockProvider) Calls() int64 { return m.calls.Load() }

// NewMockProvider returns a MockProvider that always answers with summary.
func NewMockProvider(summary string) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		SummarizeFunc: func(_ context.Context, _ []string) (string, error) {
			return summary, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		SummarizeFunc: func(_ context.Context, _ []string) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		SummarizeFunc: func(ctx context.Context, _ []string) (string, error) {
			<-ctx.Done()
			return "", summarizer.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements SummaryProvider.
var _ models.SummaryProvider = (*MockProvider)(nil)
