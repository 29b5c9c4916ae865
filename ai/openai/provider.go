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


package openai

import (
	"log/slog"

	"github.com/poiesic/docanalysis/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It manages embedder and analyzer instances.
type Provider struct {
	config   ai.Config
	embedder ai.Embedder
	analyzer *Analyzer
	logger   *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is copied, normalized and validated. An invalid config does not
// fail construction: both services then report themselves unavailable.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	cfg := *config
	logger := slog.Default().With("component", "openai-provider")

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid AI configuration, services unavailable", "err", err)
		analyzer := newAnalyzer(&ai.Config{})
		analyzer.MarkInvalid(err.Error())
		return &Provider{
			config:   cfg,
			embedder: unavailableEmbedder{},
			analyzer: analyzer,
			logger:   logger,
		}, nil
	}

	embedder, err := NewEmbedder(&cfg)
	if err != nil {
		return nil, err
	}

	analyzer := newAnalyzer(&cfg)
	if !analyzer.Available() {
		logger.Warn("analysis service unavailable", "reason", analyzer.unavailableReason())
	}
	if !cfg.EmbeddingConfigured() {
		logger.Warn("embedding service not configured")
	}

	return &Provider{
		config:   cfg,
		embedder: embedder,
		analyzer: analyzer,
		logger:   logger,
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Analyzer returns the document analysis service.
func (p *Provider) Analyzer() ai.Analyzer {
	return p.analyzer
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
