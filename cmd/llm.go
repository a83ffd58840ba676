package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/crev/internal/extract"
	"github.com/joescharf/crev/internal/llm"
	"github.com/joescharf/crev/internal/pipeline"
	"github.com/joescharf/crev/internal/reviewer"
)

// newGenerator creates the configured LLM backend. API keys fall back to the
// provider's conventional environment variable.
func newGenerator() (llm.Generator, error) {
	provider := viper.GetString("llm.provider")
	cfg := llm.Config{
		Provider: provider,
		Model:    viper.GetString("llm.model"),
		Timeout:  viper.GetDuration("llm.timeout"),
	}
	switch provider {
	case "openai":
		cfg.APIKey = firstNonEmpty(viper.GetString("openai.api_key"), os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = viper.GetString("openai.base_url")
	default:
		cfg.APIKey = firstNonEmpty(viper.GetString("anthropic.api_key"), os.Getenv("ANTHROPIC_API_KEY"))
	}
	return llm.New(cfg)
}

// reviewerConfig reads the review.* and llm.* tuning keys.
func reviewerConfig() reviewer.Config {
	return reviewer.Config{
		Temperature:     viper.GetFloat64("llm.temperature"),
		MaxTokens:       viper.GetInt("llm.max_tokens"),
		MaxContentBytes: viper.GetInt("review.max_content_bytes"),
		RedactSecrets:   viper.GetBool("review.redact_secrets"),
	}
}

// newPipeline wires generator, reviewer and pipeline from config.
func newPipeline(logger *slog.Logger, workers int) (*pipeline.Pipeline, error) {
	gen, err := newGenerator()
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = viper.GetInt("review.workers")
	}
	rev := reviewer.New(gen, reviewerConfig())
	return pipeline.New(rev, logger, pipeline.Config{
		Workers: workers,
		Limits:  extract.Limits{MaxBytes: viper.GetInt64("upload.max_archive_bytes")},
	}), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
