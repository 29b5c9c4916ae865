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


package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/pipeline"
)

// DefaultDataDir is used when neither the file nor the CLI names a data directory.
const DefaultDataDir = ".docanalysis"

// Duration is a time.Duration written as a string such as "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText writes the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the configuration file.
type Config struct {
	// DataDir holds the record database and the badger stores.
	DataDir string `toml:"data_dir"`

	Storage  StorageConfig  `toml:"storage"`
	Provider ProviderConfig `toml:"provider"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Search   SearchConfig   `toml:"search"`
}

// StorageConfig selects the storage layout.
type StorageConfig struct {
	// VectorIndex enables the badger vector index. When false, analyses
	// complete without indexing and search is unavailable.
	VectorIndex bool `toml:"vector_index"`

	// InMemory keeps every store in memory. Nothing survives a restart.
	InMemory bool `toml:"in_memory"`
}

// ProviderConfig mirrors ai.Config.
type ProviderConfig struct {
	EmbeddingHost          string   `toml:"embedding_host"`
	AnalyzerHost           string   `toml:"analyzer_host"`
	EmbeddingModel         string   `toml:"embedding_model"`
	AnalyzerModel          string   `toml:"analyzer_model"`
	EmbeddingAPIKey        string   `toml:"embedding_api_key"`
	AnalyzerAPIKey         string   `toml:"analyzer_api_key"`
	EmbeddingDimension     int      `toml:"embedding_dimension"`
	EmbeddingBatchSize     int      `toml:"embedding_batch_size"`
	EmbeddingBatchDelay    Duration `toml:"embedding_batch_delay"`
	MaxEmbeddingChars      int      `toml:"max_embedding_chars"`
	MaxInputTokens         int      `toml:"max_input_tokens"`
	MaxOutputTokens        int      `toml:"max_output_tokens"`
	ParseAttempts          int      `toml:"parse_attempts"`
	DataRetentionOptOut    bool     `toml:"data_retention_opt_out"`
	DataCollectionDisabled bool     `toml:"data_collection_disabled"`
}

// PipelineConfig mirrors pipeline.Config.
type PipelineConfig struct {
	Workers            int      `toml:"workers"`
	MaxRetries         int      `toml:"max_retries"`
	RetryBaseDelay     Duration `toml:"retry_base_delay"`
	RetryMaxDelay      Duration `toml:"retry_max_delay"`
	CallTimeout        Duration `toml:"call_timeout"`
	LeaseDuration      Duration `toml:"lease_duration"`
	PollInterval       Duration `toml:"poll_interval"`
	SchedulerInterval  Duration `toml:"scheduler_interval"`
	CleanupInterval    Duration `toml:"cleanup_interval"`
	Retention          Duration `toml:"retention"`
	MaxConcurrentJobs  int      `toml:"max_concurrent_jobs"`
	DailyCostLimit     float64  `toml:"daily_cost_limit"`
	EmbeddingCostPer1K float64  `toml:"embedding_cost_per_1k"`
	LLMCostPer1K       float64  `toml:"llm_cost_per_1k"`
	MaxDocumentSize    int64    `toml:"max_document_size"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	TopK          int     `toml:"top_k"`
	MinSimilarity float32 `toml:"min_similarity"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	p := ai.DefaultConfig()
	o := pipeline.DefaultConfig()
	return &Config{
		DataDir: DefaultDataDir,
		Storage: StorageConfig{VectorIndex: true},
		Provider: ProviderConfig{
			EmbeddingHost:          p.EmbeddingHost,
			AnalyzerHost:           p.AnalyzerHost,
			EmbeddingModel:         p.EmbeddingModel,
			AnalyzerModel:          p.AnalyzerModel,
			EmbeddingDimension:     p.EmbeddingDimension,
			EmbeddingBatchSize:     p.EmbeddingBatchSize,
			EmbeddingBatchDelay:    Duration{p.EmbeddingBatchDelay},
			MaxEmbeddingChars:      p.MaxEmbeddingChars,
			MaxInputTokens:         p.MaxInputTokens,
			MaxOutputTokens:        p.MaxOutputTokens,
			ParseAttempts:          p.ParseAttempts,
			DataRetentionOptOut:    p.DataRetentionOptOut,
			DataCollectionDisabled: p.DataCollectionDisabled,
		},
		Pipeline: PipelineConfig{
			Workers:            o.Workers,
			MaxRetries:         o.MaxRetries,
			RetryBaseDelay:     Duration{o.RetryBaseDelay},
			RetryMaxDelay:      Duration{o.RetryMaxDelay},
			CallTimeout:        Duration{o.CallTimeout},
			LeaseDuration:      Duration{o.LeaseDuration},
			PollInterval:       Duration{o.PollInterval},
			SchedulerInterval:  Duration{o.SchedulerInterval},
			CleanupInterval:    Duration{o.CleanupInterval},
			Retention:          Duration{o.Retention},
			MaxConcurrentJobs:  o.MaxConcurrentJobs,
			DailyCostLimit:     o.DailyCostLimit,
			EmbeddingCostPer1K: o.EmbeddingCostPer1K,
			LLMCostPer1K:       o.LLMCostPer1K,
			MaxDocumentSize:    o.MaxDocumentSize,
		},
		Search: SearchConfig{
			TopK:          10,
			MinSimilarity: 0.60,
		},
	}
}

// Load reads the file at path over the defaults. A missing file is not an
// error. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a configuration document over the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}

// Write encodes the configuration as TOML.
func (c *Config) Write(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("%w: search.top_k must be positive", ErrInvalidConfig)
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("%w: search.min_similarity must be between 0 and 1", ErrInvalidConfig)
	}
	if err := c.AI().Validate(); err != nil {
		return fmt.Errorf("%w: provider: %w", ErrInvalidConfig, err)
	}
	p := c.PipelineConfig()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: pipeline: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AI builds the provider configuration.
func (c *Config) AI() *ai.Config {
	p := c.Provider
	return ai.NewConfig(
		ai.WithEmbeddingHost(p.EmbeddingHost),
		ai.WithAnalyzerHost(p.AnalyzerHost),
		ai.WithEmbeddingModel(p.EmbeddingModel),
		ai.WithAnalyzerModel(p.AnalyzerModel),
		ai.WithEmbeddingAPIKey(p.EmbeddingAPIKey),
		ai.WithAnalyzerAPIKey(p.AnalyzerAPIKey),
		ai.WithEmbeddingDimension(p.EmbeddingDimension),
		ai.WithEmbeddingBatching(p.EmbeddingBatchSize, p.EmbeddingBatchDelay.Duration),
		ai.WithMaxEmbeddingChars(p.MaxEmbeddingChars),
		ai.WithTokenBudget(p.MaxInputTokens, p.MaxOutputTokens),
		ai.WithParseAttempts(p.ParseAttempts),
		ai.WithCompliance(p.DataRetentionOptOut, p.DataCollectionDisabled),
	)
}

// PipelineConfig builds the orchestrator configuration.
func (c *Config) PipelineConfig() pipeline.Config {
	p := c.Pipeline
	return pipeline.Config{
		Workers:            p.Workers,
		MaxRetries:         p.MaxRetries,
		RetryBaseDelay:     p.RetryBaseDelay.Duration,
		RetryMaxDelay:      p.RetryMaxDelay.Duration,
		CallTimeout:        p.CallTimeout.Duration,
		LeaseDuration:      p.LeaseDuration.Duration,
		PollInterval:       p.PollInterval.Duration,
		SchedulerInterval:  p.SchedulerInterval.Duration,
		CleanupInterval:    p.CleanupInterval.Duration,
		Retention:          p.Retention.Duration,
		MaxConcurrentJobs:  p.MaxConcurrentJobs,
		DailyCostLimit:     p.DailyCostLimit,
		EmbeddingCostPer1K: p.EmbeddingCostPer1K,
		LLMCostPer1K:       p.LLMCostPer1K,
		MaxDocumentSize:    p.MaxDocumentSize,
	}
}

// RecordsPath is the record database file under DataDir.
func (c *Config) RecordsPath() string {
	return filepath.Join(c.DataDir, "analyses.db")
}

// StoresPath is the badger directory under DataDir.
func (c *Config) StoresPath() string {
	return filepath.Join(c.DataDir, "stores")
}
