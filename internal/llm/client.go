// Package llm provides the completion clients the intent parser calls.
// Providers are interchangeable behind Client; all of them are tuned for
// structured output (low temperature, bounded retries).
package llm

import (
	"context"
	"fmt"
	"time"
)

// Client is the single capability the planner needs from an LLM provider.
type Client interface {
	// CompleteWithSystem sends a system instruction plus a user query and
	// returns the raw completion text. Failures (network, quota, provider
	// errors) surface as errors for the caller to absorb.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds provider-independent client settings.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// New builds a client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
