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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/chunker"
	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/pipeline"
	"github.com/poiesic/docanalysis/storage"
)

const actorReindex = "reindex"

// Embedder embeds chunk text. *ai.BatchEmbedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	MaxChars() int
}

// BatchResult counts what happened to one page of analyses.
type BatchResult struct {
	Reindexed int
	Skipped   int
	Vectors   int
}

// BatchProcessor re-embeds the documents of a page of analyses and replaces
// their vectors.
type BatchProcessor struct {
	records        storage.AnalysisRepository
	documents      storage.DocumentStore
	vectors        storage.VectorIndex
	embedder       Embedder
	chunker        *chunker.Chunker
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(records storage.AnalysisRepository, documents storage.DocumentStore, vectors storage.VectorIndex,
	embedder Embedder, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		records:        records,
		documents:      documents,
		vectors:        vectors,
		embedder:       embedder,
		chunker:        chunker.New(chunker.WithLogger(logger)),
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

// parsedDocument is a document whose chunks occupy texts[offset:offset+len(chunks)].
type parsedDocument struct {
	record *core.AnalysisRecord
	chunks []core.Chunk
	offset int
}

// Process embeds every chunk of the page in one call and then rewrites each
// document's vectors. Analyses that were never indexed, or whose document
// is gone or no longer parses, are skipped.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.AnalysisRecord) (BatchResult, error) {
	var result BatchResult

	var docs []parsedDocument
	var texts []string
	for _, record := range records {
		chunks, ok, err := bp.parse(ctx, record)
		if err != nil {
			return result, err
		}
		if !ok {
			result.Skipped++
			continue
		}
		docs = append(docs, parsedDocument{record: record, chunks: chunks, offset: len(texts)})
		for _, chunk := range chunks {
			texts = append(texts, ai.TruncateForEmbedding(chunk.Content, bp.embedder.MaxChars()))
		}
	}
	if len(texts) == 0 {
		return result, nil
	}

	var embeddings [][]float32
	err := pipeline.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.Embed(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return result, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}
	if len(embeddings) != len(texts) {
		return result, fmt.Errorf("%w: expected %d, got %d", ai.ErrEmbeddingMismatch, len(texts), len(embeddings))
	}

	for _, doc := range docs {
		stored, err := bp.replace(ctx, doc, embeddings[doc.offset:doc.offset+len(doc.chunks)])
		if err != nil {
			return result, err
		}
		result.Reindexed++
		result.Vectors += stored
	}
	return result, nil
}

// parse loads and chunks the document of an indexed analysis. Reports false
// for analyses that should be skipped.
func (bp *BatchProcessor) parse(ctx context.Context, record *core.AnalysisRecord) ([]core.Chunk, bool, error) {
	logger := bp.logger.With("job_id", record.ID, "organization_id", record.OrganizationID)

	if record.Metadata.IndexStatus != core.IndexStatusIndexed {
		logger.Debug("skipping analysis that was not indexed", "index_status", record.Metadata.IndexStatus)
		return nil, false, nil
	}

	data, err := bp.documents.Get(ctx, record.ID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn("skipping analysis without stored document")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading document %s: %w", record.ID, err)
	}

	chunks, err := bp.chunker.Parse(data, record.DocumentName, record.ID)
	if err != nil {
		logger.Warn("skipping document that no longer parses", "err", err)
		return nil, false, nil
	}
	if len(chunks) == 0 {
		return nil, false, nil
	}
	return chunks, true, nil
}

// replace drops a document's vectors and stores the new ones. A failure
// leaves the document partly indexed until the next run.
func (bp *BatchProcessor) replace(ctx context.Context, doc parsedDocument, embeddings [][]float32) (int, error) {
	record := doc.record

	vectors := make([]core.VectorRecord, len(doc.chunks))
	for i, chunk := range doc.chunks {
		vectors[i] = core.NewVectorRecord(record.OrganizationID, chunk, embeddings[i])
	}

	if err := bp.vectors.DeleteByDocument(ctx, record.ID); err != nil {
		return 0, fmt.Errorf("deleting vectors of %s: %w", record.ID, err)
	}
	upserted, err := bp.vectors.Upsert(ctx, record.ID, vectors)
	if err != nil {
		return 0, fmt.Errorf("storing vectors of %s (%d of %d stored): %w", record.ID, upserted.Stored, len(vectors), err)
	}
	if upserted.NotConfigured {
		return 0, storage.ErrIndexNotConfigured
	}

	if record.Metadata.VectorCount != upserted.Stored {
		record.Metadata.VectorCount = upserted.Stored
		if err := bp.records.Update(ctx, record); err != nil {
			return 0, fmt.Errorf("updating analysis %s: %w", record.ID, err)
		}
	}
	entry := core.AuditEntry{
		Action:  "reindexed",
		Message: fmt.Sprintf("%d vectors", upserted.Stored),
		Actor:   actorReindex,
	}
	if err := bp.records.AddAuditEntry(ctx, record.OrganizationID, record.ID, entry); err != nil {
		bp.logger.Warn("error writing audit entry", "job_id", record.ID, "err", err)
	}
	return upserted.Stored, nil
}
