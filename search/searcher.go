package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

const (
	// DefaultTopK is the number of results returned when none is requested.
	DefaultTopK = 10

	// DefaultMinSimilarity drops weak semantic matches.
	DefaultMinSimilarity = 0.60

	verbatimBoost = 0.3
	headingBoost  = 0.1

	// candidates fetched per requested result, leaving room for re-ranking.
	oversample = 3
)

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// SearchOptions narrow a search. Zero values do not filter.
type SearchOptions struct {
	DocumentID   string
	Kind         core.ChunkKind
	HeadingLevel int
	TopK         int
	// MinSimilarity overrides DefaultMinSimilarity when positive.
	MinSimilarity float32
}

// Result is a ranked chunk.
type Result struct {
	ChunkID          string
	DocumentID       string
	Content          string
	Kind             core.ChunkKind
	HeadingLevel     int
	PrecedingHeading string
	ChunkIndex       int
	Similarity       float32
	Score            float32
	Verbatim         bool
}

// Searcher provides tenant-scoped semantic search over document chunks.
type Searcher struct {
	index    storage.VectorIndex
	embedder QueryEmbedder
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(index storage.VectorIndex, embedder QueryEmbedder, opts ...Option) (*Searcher, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		index:    index,
		embedder: embedder,
		logger:   slog.Default().With("component", "searcher"),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search returns the organization's chunks most relevant to query.
func (s *Searcher) Search(ctx context.Context, organizationID, query string, opts SearchOptions) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, organizationID, query, opts, nil)
}

// SearchWithMonitor searches with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, organizationID, query string, opts SearchOptions, monitor SearchMonitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if organizationID == "" {
		return nil, ErrOrganizationRequired
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !s.index.Configured() {
		return nil, storage.ErrIndexNotConfigured
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	minSimilarity := opts.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}

	monitor.Start(organizationID, query)

	// 1. Embed the query
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(len(embedding))

	// 2. Semantic search, always scoped to the organization
	filter := storage.VectorFilter{
		OrganizationID: organizationID,
		DocumentID:     opts.DocumentID,
		Kind:           opts.Kind,
		HeadingLevel:   opts.HeadingLevel,
		MinScore:       minSimilarity,
	}
	matches, err := s.index.Search(ctx, embedding, filter, topK*oversample)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterSemanticSearch(matches)

	// 3. Re-rank with lexical signals
	queryTerms := terms(query)
	results := make([]*Result, 0, len(matches))
	for _, match := range matches {
		meta := match.Record.Metadata
		result := &Result{
			ChunkID:          match.Record.ID,
			DocumentID:       meta.SourceDocumentID,
			Content:          meta.Content,
			Kind:             meta.Kind,
			HeadingLevel:     meta.HeadingLevel,
			PrecedingHeading: meta.PrecedingHeading,
			ChunkIndex:       meta.ChunkIndex,
			Similarity:       match.Score,
			Score:            match.Score,
		}

		if containsAll(termSet(meta.Content), queryTerms) {
			result.Score += verbatimBoost
			result.Verbatim = true
			monitor.VerbatimHit(result)
		}
		if meta.PrecedingHeading != "" && containsAny(termSet(meta.PrecedingHeading), queryTerms) {
			result.Score += headingBoost
			monitor.HeadingHit(result)
		}

		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	monitor.Finish(results)

	s.logger.Debug("search complete", "organization_id", organizationID,
		"candidates", len(matches), "results", len(results))
	return results, nil
}
