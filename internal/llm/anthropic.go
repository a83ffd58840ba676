package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic Messages API.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an Anthropic-backed generator. baseURL may be empty and a
// non-positive timeout leaves requests bounded only by the caller's context.
// SDK-level retries are disabled; retry policy belongs to the caller.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

func (c *Client) Name() string { return "anthropic" }

// Generate sends one message and returns the concatenated text blocks.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text content in API response")
	}
	return b.String(), nil
}
