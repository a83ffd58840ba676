// Package llm provides text-generation backends for the reviewer.
package llm

import (
	"context"
	"fmt"
	"time"
)

// DefaultMaxTokens bounds the length of one generated review.
const DefaultMaxTokens = 4096

// Default models per provider, used when Config.Model is empty.
const (
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultOpenAIModel    = "gpt-4o-mini"
)

// Request is a single text-generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator produces text for a prompt. Implementations make exactly one
// upstream request per call and do not retry.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config selects and configures a Generator.
type Config struct {
	Provider string // "anthropic" or "openai"
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// New creates a generator by provider name.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "", "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is not configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
		}
		return NewClient(cfg.APIKey, orDefault(cfg.Model, DefaultAnthropicModel), cfg.BaseURL, cfg.Timeout), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai API key is not configured (set openai.api_key or OPENAI_API_KEY)")
		}
		return NewOpenAI(cfg.APIKey, orDefault(cfg.Model, DefaultOpenAIModel), cfg.BaseURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
