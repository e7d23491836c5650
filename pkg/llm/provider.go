package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Provider is a chat-completion backend. Complete sends the full conversation
// and returns the assistant's text once the response is fully generated.
type Provider interface {
	Complete(ctx context.Context, messages []Message, opts *CompleteOptions) (string, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompleteOptions carries per-request generation parameters. A nil options
// value uses the provider defaults.
type CompleteOptions struct {
	MaxTokens   int
	Temperature float64
}

// APIError is returned when the provider responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient (rate limit or 5xx).
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
