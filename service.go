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


package docanalysis

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/ai/openai"
	"github.com/poiesic/docanalysis/config"
	"github.com/poiesic/docanalysis/pipeline"
	"github.com/poiesic/docanalysis/reindex"
	"github.com/poiesic/docanalysis/search"
	"github.com/poiesic/docanalysis/storage"
	"github.com/poiesic/docanalysis/storage/badger"
	"github.com/poiesic/docanalysis/storage/sqlite"
)

// Service wires the stores, the AI provider, the orchestrator and the
// searcher described by a configuration.
type Service struct {
	config       *config.Config
	records      *sqlite.Store
	stores       *badger.Stores
	vectors      storage.VectorIndex
	provider     ai.AIProvider
	embedder     *ai.BatchEmbedder
	orchestrator *pipeline.Orchestrator
	searcher     *search.Searcher
	logger       *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	provider     ai.AIProvider
	pipelineOpts []pipeline.Option
	logger       *slog.Logger
}

// WithProvider replaces the OpenAI-compatible provider built from the
// configuration. The Service closes it.
func WithProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithPipelineOptions adds orchestrator options applied after the
// configuration.
func WithPipelineOptions(opts ...pipeline.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// Open validates cfg and opens every component. The caller must Close the
// Service.
func Open(cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	aiConfig := cfg.AI()
	if err := aiConfig.Validate(); err != nil {
		return nil, err
	}
	pipelineConfig := cfg.PipelineConfig()

	s := &Service{config: cfg, logger: logger}

	recordsPath, storesPath := cfg.RecordsPath(), cfg.StoresPath()
	if cfg.Storage.InMemory {
		recordsPath, storesPath = sqlite.MemoryPath, ""
	}

	var err error
	s.records, err = sqlite.Open(recordsPath, sqlite.WithLogger(logger.With("component", "analysis-store")))
	if err != nil {
		return nil, err
	}

	s.stores, err = badger.OpenStores(storesPath, cfg.Storage.InMemory, aiConfig.EmbeddingDimension)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.vectors = storage.DisabledVectorIndex{}
	if cfg.Storage.VectorIndex {
		s.vectors = s.stores.Vectors
	}

	s.provider = options.provider
	if s.provider == nil {
		s.provider, err = openai.NewProvider(aiConfig)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	s.embedder, err = ai.NewBatchEmbedderFromConfig(s.provider.Embedder(), aiConfig,
		ai.WithCallTimeout(pipelineConfig.CallTimeout),
		ai.WithBatchLogger(logger.With("component", "batch-embedder")))
	if err != nil {
		s.Close()
		return nil, err
	}

	pipelineOpts := append([]pipeline.Option{
		pipeline.WithConfig(pipelineConfig),
		pipeline.WithBatchEmbedder(s.embedder),
		pipeline.WithLogger(logger.With("component", "orchestrator")),
	}, options.pipelineOpts...)
	s.orchestrator, err = pipeline.NewOrchestrator(s.records, s.vectors, s.stores.Queue, s.stores.Documents,
		s.provider, pipelineOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.searcher, err = search.NewSearcher(s.vectors, s.embedder,
		search.WithLogger(logger.With("component", "searcher")))
	if err != nil {
		s.Close()
		return nil, err
	}

	logger.Debug("service opened", "data_dir", cfg.DataDir, "in_memory", cfg.Storage.InMemory,
		"vector_index", s.vectors.Configured(), "workers", pipelineConfig.Workers)
	return s, nil
}

// Close releases every component. Components that were never opened are
// skipped.
func (s *Service) Close() error {
	var errs []error
	if s.orchestrator != nil {
		s.orchestrator.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.stores != nil {
		if err := s.stores.Close(); err != nil {
			s.logger.Error("error closing badger stores", "err", err)
			errs = append(errs, err)
		}
	}
	if s.records != nil {
		if err := s.records.Close(); err != nil {
			s.logger.Error("error closing analysis store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the Service was opened with.
func (s *Service) Config() *config.Config {
	return s.config
}

// Orchestrator returns the job orchestrator.
func (s *Service) Orchestrator() *pipeline.Orchestrator {
	return s.orchestrator
}

// Searcher returns the chunk searcher.
func (s *Service) Searcher() *search.Searcher {
	return s.searcher
}

// Records returns the analysis record store.
func (s *Service) Records() storage.AnalysisRepository {
	return s.records
}

// VectorIndex returns the index in use, storage.DisabledVectorIndex when
// indexing is turned off.
func (s *Service) VectorIndex() storage.VectorIndex {
	return s.vectors
}

// Search runs a chunk search, filling unset options from the configured
// search defaults.
func (s *Service) Search(ctx context.Context, organizationID, query string, opts search.SearchOptions) ([]*search.Result, error) {
	return s.SearchWithMonitor(ctx, organizationID, query, opts, nil)
}

// SearchWithMonitor is Search with a monitor receiving the search phases.
func (s *Service) SearchWithMonitor(ctx context.Context, organizationID, query string, opts search.SearchOptions, monitor search.SearchMonitor) ([]*search.Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = s.config.Search.TopK
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = s.config.Search.MinSimilarity
	}
	return s.searcher.SearchWithMonitor(ctx, organizationID, query, opts, monitor)
}

// Reindex re-embeds the stored documents of completed analyses and replaces
// their vectors, writing progress to progress. A nil cfg uses
// reindex.DefaultConfig.
func (s *Service) Reindex(ctx context.Context, cfg *reindex.Config, progress io.Writer) (*reindex.Summary, error) {
	r := reindex.NewReindexer(s.records, s.stores.Documents, s.vectors, s.embedder, cfg, progress, s.logger)
	return r.Run(ctx)
}
