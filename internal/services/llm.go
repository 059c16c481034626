package services

import (
	"context"
	"fmt"
)

// GenerateRequest is a single-turn completion request. System and Prompt are
// kept apart so hosted providers can send them separately.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// LLMService defines the interface for a completion backend
type LLMService interface {
	// Generate returns the raw model text. An empty string with a nil error
	// means the provider answered but produced nothing.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ModelLister is implemented by backends with a reachable model catalogue.
type ModelLister interface {
	Ping(ctx context.Context) error
	ListModels(ctx context.Context) ([]string, error)
}

// StatusError is returned when a provider replies with a non-200 status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API request failed with status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}
