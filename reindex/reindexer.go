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


package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// OrganizationID limits the run to one organization. Empty means all.
	OrganizationID string

	// BatchSize is the number of analyses fetched and embedded together
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      20,
		ReportInterval: 20,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Summary reports the outcome of a run.
type Summary struct {
	Documents int
	Reindexed int
	Skipped   int
	Vectors   int
	Elapsed   time.Duration
}

// Reindexer rebuilds the vectors of every completed, indexed analysis.
type Reindexer struct {
	vectors   storage.VectorIndex
	config    *Config
	progress  io.Writer
	logger    *slog.Logger
	processor *BatchProcessor
	iterator  *RecordIterator
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(records storage.AnalysisRepository, documents storage.DocumentStore, vectors storage.VectorIndex,
	embedder Embedder, config *Config, progress io.Writer, logger *slog.Logger) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reindexer")

	return &Reindexer{
		vectors:   vectors,
		config:    config,
		progress:  progress,
		logger:    logger,
		processor: NewBatchProcessor(records, documents, vectors, embedder, config.MaxRetries, config.RetryDelay, logger),
		iterator:  NewRecordIterator(records, config.OrganizationID, config.BatchSize),
	}
}

// Run re-embeds the stored document of every completed analysis whose
// vectors were indexed and replaces those vectors.
func (r *Reindexer) Run(ctx context.Context) (*Summary, error) {
	if !r.vectors.Configured() {
		return nil, storage.ErrIndexNotConfigured
	}

	total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count analyses: %w", err)
	}

	summary := &Summary{Documents: total}
	if total == 0 {
		fmt.Fprintf(r.progress, "No completed analyses to reindex (0 documents)\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(records []*core.AnalysisRecord) error {
		result, err := r.processor.Process(ctx, records)
		summary.Reindexed += result.Reindexed
		summary.Skipped += result.Skipped
		summary.Vectors += result.Vectors
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		tracker.Increment(len(records))
		return nil
	})
	summary.Elapsed = tracker.Elapsed()
	if err != nil {
		r.logger.Error("reindex stopped", "reindexed", summary.Reindexed, "err", err)
		return summary, err
	}

	tracker.Finish()
	fmt.Fprintf(r.progress, "Reindex complete. %d documents reindexed, %d skipped, %d vectors in %v\n",
		summary.Reindexed, summary.Skipped, summary.Vectors, summary.Elapsed.Round(time.Millisecond))
	r.logger.Info("reindex complete", "reindexed", summary.Reindexed, "skipped", summary.Skipped,
		"vectors", summary.Vectors, "elapsed", summary.Elapsed)
	return summary, nil
}
