// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds configuration for AI service providers. A Config is built
// once, validated, and then only read by the components it is passed to.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// AnalyzerHost is the base URL for the chat completion service API.
	AnalyzerHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// AnalyzerModel is the model identifier used for document analysis.
	// Example: "qwen2.5:7b", "gpt-4o-mini"
	AnalyzerModel string

	// EmbeddingAPIKey authenticates embedding calls. Local servers accept any value.
	EmbeddingAPIKey string

	// AnalyzerAPIKey authenticates analysis calls. An empty key leaves the
	// analyzer in service-unavailable mode.
	AnalyzerAPIKey string

	// EmbeddingDimension is the expected vector length. Zero accepts any length.
	EmbeddingDimension int

	// EmbeddingBatchSize is the maximum number of texts per embedding call.
	// Default: 100
	EmbeddingBatchSize int

	// EmbeddingBatchDelay is the pause between successive embedding calls.
	// Default: 200ms
	EmbeddingBatchDelay time.Duration

	// MaxEmbeddingChars is the longest text accepted for embedding.
	// Default: 8000
	MaxEmbeddingChars int

	// MaxInputTokens is the token budget for document text in an analysis prompt.
	// Default: 12000
	MaxInputTokens int

	// MaxOutputTokens caps the analysis completion length.
	// Default: 4096
	MaxOutputTokens int

	// ParseAttempts is how many completions are requested before an
	// unparseable response is reported as a schema error.
	// Default: 2
	ParseAttempts int

	// DataRetentionOptOut and DataCollectionDisabled record whether the
	// provider account is configured for compliant data handling.
	DataRetentionOptOut    bool
	DataCollectionDisabled bool
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithAnalyzerHost sets the analysis service host URL.
func WithAnalyzerHost(host string) ConfigOption {
	return func(c *Config) {
		c.AnalyzerHost = host
	}
}

// WithHost sets both embedding and analyzer hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.AnalyzerHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAnalyzerModel sets the analysis model identifier.
func WithAnalyzerModel(model string) ConfigOption {
	return func(c *Config) {
		c.AnalyzerModel = model
	}
}

// WithEmbeddingAPIKey sets the embedding API key.
func WithEmbeddingAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAPIKey = key
	}
}

// WithAnalyzerAPIKey sets the analysis API key.
func WithAnalyzerAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.AnalyzerAPIKey = key
	}
}

// WithEmbeddingDimension sets the expected embedding vector length.
func WithEmbeddingDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingDimension = dim
	}
}

// WithEmbeddingBatching sets the embedding batch size and the delay between batches.
func WithEmbeddingBatching(size int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.EmbeddingBatchSize = size
		c.EmbeddingBatchDelay = delay
	}
}

// WithMaxEmbeddingChars sets the longest text accepted for embedding.
func WithMaxEmbeddingChars(n int) ConfigOption {
	return func(c *Config) {
		c.MaxEmbeddingChars = n
	}
}

// WithTokenBudget sets the analysis input and output token limits.
func WithTokenBudget(input, output int) ConfigOption {
	return func(c *Config) {
		c.MaxInputTokens = input
		c.MaxOutputTokens = output
	}
}

// WithParseAttempts sets how many completions are tried for parseable JSON.
func WithParseAttempts(n int) ConfigOption {
	return func(c *Config) {
		c.ParseAttempts = n
	}
}

// WithCompliance records the provider account's data handling settings.
func WithCompliance(retentionOptOut, collectionDisabled bool) ConfigOption {
	return func(c *Config) {
		c.DataRetentionOptOut = retentionOptOut
		c.DataCollectionDisabled = collectionDisabled
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and analysis use the same host. No analyzer API
// key is set.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:       defaultHost,
		AnalyzerHost:        defaultHost,
		EmbeddingModel:      "embeddinggemma",
		AnalyzerModel:       "qwen2.5:7b",
		EmbeddingBatchSize:  DefaultBatchSize,
		EmbeddingBatchDelay: 200 * time.Millisecond,
		MaxEmbeddingChars:   8000,
		MaxInputTokens:      12000,
		MaxOutputTokens:     4096,
		ParseAttempts:       2,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithAnalyzerAPIKey(os.Getenv("ANALYZER_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.AnalyzerHost = normalizeHost(c.AnalyzerHost)
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is internally consistent.
// It automatically normalizes the configuration before validation.
// Missing hosts, models or keys are not errors: the affected service runs in
// degraded mode instead.
func (c *Config) Validate() error {
	c.Normalize()

	for name, host := range map[string]string{"EmbeddingHost": c.EmbeddingHost, "AnalyzerHost": c.AnalyzerHost} {
		if host == "" {
			continue
		}
		if u, err := url.Parse(host); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s %q is not a URL", ErrInvalidConfig, name, host)
		}
	}
	if c.EmbeddingBatchSize < 1 || c.EmbeddingBatchSize > MaxBatchSize {
		return fmt.Errorf("%w: EmbeddingBatchSize must be between 1 and %d", ErrInvalidConfig, MaxBatchSize)
	}
	if c.EmbeddingBatchDelay < 0 {
		return fmt.Errorf("%w: EmbeddingBatchDelay cannot be negative", ErrInvalidConfig)
	}
	if c.EmbeddingDimension < 0 {
		return fmt.Errorf("%w: EmbeddingDimension cannot be negative", ErrInvalidConfig)
	}
	if c.MaxEmbeddingChars < 1 {
		return fmt.Errorf("%w: MaxEmbeddingChars must be positive", ErrInvalidConfig)
	}
	if c.MaxInputTokens < 1 || c.MaxOutputTokens < 1 {
		return fmt.Errorf("%w: token budgets must be positive", ErrInvalidConfig)
	}
	if c.ParseAttempts < 1 {
		return fmt.Errorf("%w: ParseAttempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// EmbeddingConfigured reports whether an embedding service is set up.
func (c *Config) EmbeddingConfigured() bool {
	return c.EmbeddingHost != "" && c.EmbeddingModel != ""
}

// AnalyzerConfigured reports whether an analysis service is set up.
func (c *Config) AnalyzerConfigured() bool {
	return c.AnalyzerHost != "" && c.AnalyzerModel != "" && c.AnalyzerAPIKey != ""
}

// Compliant reports whether the provider account opts out of data retention
// and has data collection disabled.
func (c *Config) Compliant() bool {
	return c.DataRetentionOptOut && c.DataCollectionDisabled
}
