// Package llm wraps the chat-completion providers used to normalize movie metadata.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	defaultOpenAIBaseURL = "https://api.deepseek.com"
	defaultOpenAIModel   = "deepseek-chat"
	defaultGeminiModel   = "gemini-2.5-flash"
)

var (
	// ErrMissingAPIKey is returned by New when no key is configured.
	ErrMissingAPIKey = errors.New("llm: api key is required")
	// ErrMalformedResponse marks a reply whose envelope could not be read.
	ErrMalformedResponse = errors.New("llm: malformed response")
)

// Request is a single system+user completion.
type Request struct {
	System      string
	User        string
	Temperature float64
	// JSON asks the provider for a JSON object reply.
	JSON bool
}

// Response carries the first choice's content and the token usage.
type Response struct {
	Content     string
	TotalTokens int
}

// Completer performs one completion call. Implementations never retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// StatusError is a non-2xx reply from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// New returns the Completer for cfg.Provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
