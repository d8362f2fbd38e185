// Package models contains shared data models used across the ReviewPulse codebase.
package models

import "context"

// SummaryProvider is the interface every summarization backend implements.
// Consumers depend on this interface, never on a concrete backend.
type SummaryProvider interface {
	// Summarize condenses a list of product reviews into one paragraph.
	Summarize(ctx context.Context, reviews []string) (string, error)
	// Name returns the provider identifier (e.g., "model", "gemini").
	Name() string
}

// Identity is the authenticated requester attached to a request by the auth middleware.
type Identity struct {
	Email     string `json:"email"`
	FirstName string `json:"user_firstname"`
}
