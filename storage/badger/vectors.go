package badger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

// DefaultUpsertBatchSize is the number of vectors written per transaction.
const DefaultUpsertBatchSize = 100

const defaultTopK = 10

// VectorIndex implements storage.VectorIndex on BadgerDB.
type VectorIndex struct {
	backend   *Backend
	dimension int
	batchSize int
	logger    *slog.Logger
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// VectorIndexOption configures a VectorIndex.
type VectorIndexOption func(*VectorIndex)

// WithUpsertBatchSize sets the number of vectors written per transaction.
func WithUpsertBatchSize(size int) VectorIndexOption {
	return func(vi *VectorIndex) {
		if size > 0 {
			vi.batchSize = size
		}
	}
}

// WithVectorLogger sets the index logger.
func WithVectorLogger(logger *slog.Logger) VectorIndexOption {
	return func(vi *VectorIndex) {
		vi.logger = logger
	}
}

// NewVectorIndex creates a vector index. A dimension of 0 accepts vectors of
// any length; otherwise mismatched vectors are rejected.
func NewVectorIndex(backend *Backend, dimension int, opts ...VectorIndexOption) *VectorIndex {
	vi := &VectorIndex{
		backend:   backend,
		dimension: dimension,
		batchSize: DefaultUpsertBatchSize,
		logger:    slog.Default().With("component", "vector-index"),
	}
	for _, opt := range opts {
		opt(vi)
	}
	return vi
}

// Configured reports true; a badger index always has a backing store.
func (vi *VectorIndex) Configured() bool {
	return true
}

// Dimension returns the configured vector dimension.
func (vi *VectorIndex) Dimension() int {
	return vi.dimension
}

func (vi *VectorIndex) checkDimension(values []float32) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: empty vector", storage.ErrDimensionMismatch)
	}
	if vi.dimension > 0 && len(values) != vi.dimension {
		return fmt.Errorf("%w: got %d, want %d", storage.ErrDimensionMismatch, len(values), vi.dimension)
	}
	return nil
}

// Upsert stores records in batches, one transaction per batch. Records are
// validated before anything is written.
func (vi *VectorIndex) Upsert(ctx context.Context, documentID string, records []core.VectorRecord) (storage.UpsertResult, error) {
	var result storage.UpsertResult

	for i := range records {
		if records[i].Metadata.SourceDocumentID != documentID {
			return result, fmt.Errorf("%w: record %d belongs to document %q", storage.ErrInvalidQuery,
				i, records[i].Metadata.SourceDocumentID)
		}
		if err := vi.checkDimension(records[i].Values); err != nil {
			return result, fmt.Errorf("record %d: %w", i, err)
		}
	}

	for batch := range slices.Chunk(records, vi.batchSize) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := vi.backend.Update(func(tx *badger.Txn) error {
			for i := range batch {
				value, err := storage.MarshalVectorRecord(&batch[i])
				if err != nil {
					return err
				}
				if err := tx.Set(makeVectorKey(documentID, batch[i].Metadata.ChunkIndex), value); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			vi.logger.Warn("vector batch failed", "document_id", documentID,
				"stored", result.Stored, "remaining", len(records)-result.Stored, "err", err)
			return result, fmt.Errorf("upserting vectors for %s: %w", documentID, err)
		}
		result.Stored += len(batch)
	}

	vi.logger.Debug("vectors stored", "document_id", documentID, "count", result.Stored)
	return result, nil
}

// Search returns up to topK records by descending cosine similarity.
// A DocumentID filter narrows the scan to that document's key range.
func (vi *VectorIndex) Search(ctx context.Context, query []float32, filter storage.VectorFilter, topK int) ([]storage.VectorMatch, error) {
	if err := vi.checkDimension(query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	prefix := []byte(vectorPrefix + ":")
	if filter.DocumentID != "" {
		prefix = makeDocumentVectorPrefix(filter.DocumentID)
	}

	var matches []storage.VectorMatch
	err := vi.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if !filter.Matches(record.Metadata) {
				continue
			}

			score := cosineSimilarity(query, record.Values)
			if score >= filter.MinScore {
				matches = append(matches, storage.VectorMatch{Record: *record, Score: score})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matches, func(a, b storage.VectorMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByDocument removes every vector of a document.
func (vi *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	var keys [][]byte
	err := vi.backend.View(func(tx *badger.Txn) error {
		keys = prefixKeys(tx, makeDocumentVectorPrefix(documentID))
		return nil
	})
	if err != nil {
		return err
	}

	for batch := range slices.Chunk(keys, vi.batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := vi.backend.Update(func(tx *badger.Txn) error {
			for _, key := range batch {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("deleting vectors for %s: %w", documentID, err)
		}
	}

	if len(keys) > 0 {
		vi.logger.Debug("vectors deleted", "document_id", documentID, "count", len(keys))
	}
	return nil
}

// Count returns the number of vectors stored for a document.
func (vi *VectorIndex) Count(ctx context.Context, documentID string) (int, error) {
	var n int
	err := vi.backend.View(func(tx *badger.Txn) error {
		n = len(prefixKeys(tx, makeDocumentVectorPrefix(documentID)))
		return nil
	})
	return n, err
}

// cosineSimilarity returns the cosine of the angle between a and b,
// or 0 when either has zero magnitude.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
