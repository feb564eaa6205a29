// Package llm provides LLM backend clients implementing ports.LLMClient.
// OpenAI and xAI share the OpenAI-compatible chat completions API; the
// Anthropic client uses the messages API.
package llm

import "time"

const (
	// XAIBaseURL is the OpenAI-compatible endpoint for xAI models.
	XAIBaseURL = "https://api.x.ai/v1"

	defaultMaxTokens  = 4096
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 2
)

// Config holds the settings for one LLM backend.
type Config struct {
	APIKey     string
	BaseURL    string // Optional custom endpoint
	Model      string
	MaxTokens  int64
	Timeout    time.Duration
	MaxRetries int
}

func (c Config) maxTokens() int64 {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return defaultMaxRetries
}
