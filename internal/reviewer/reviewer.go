// Package reviewer adapts a text generator into a per-file code reviewer.
package reviewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/joescharf/crev/internal/llm"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/redact"
)

// ErrUnavailable wraps every failure to obtain a response from the model.
var ErrUnavailable = errors.New("reviewer unavailable")

// DefaultTemperature keeps repeated runs close to each other.
const DefaultTemperature = 0.3

// Config holds reviewer settings.
type Config struct {
	Temperature     float64
	MaxTokens       int
	MaxContentBytes int
	RedactSecrets   bool
}

// DefaultConfig returns the reviewer defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:     DefaultTemperature,
		MaxTokens:       llm.DefaultMaxTokens,
		MaxContentBytes: DefaultMaxContentBytes,
		RedactSecrets:   true,
	}
}

// Reviewer sends one file at a time to a generator.
type Reviewer struct {
	gen llm.Generator
	cfg Config
}

// New creates a Reviewer. Zero-valued limits fall back to the defaults.
func New(gen llm.Generator, cfg Config) *Reviewer {
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = DefaultMaxContentBytes
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = llm.DefaultMaxTokens
	}
	return &Reviewer{gen: gen, cfg: cfg}
}

// Name returns the backing generator's name.
func (r *Reviewer) Name() string { return r.gen.Name() }

// Review issues exactly one generation request for target and returns the raw
// response text. It never retries.
func (r *Reviewer) Review(ctx context.Context, target models.ReviewTarget) (string, error) {
	if r.cfg.RedactSecrets {
		target.Code, _ = redact.Secrets(target.Code)
	}
	prompt, _ := UserPrompt(target, r.cfg.MaxContentBytes)

	text, err := r.gen.Generate(ctx, llm.Request{
		System:      SystemPrompt(),
		Prompt:      prompt,
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnavailable, target.FilePath, err)
	}
	return text, nil
}
