package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T, dimension int) *Stores {
	t.Helper()
	stores, err := NewMemoryStores(dimension)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func vectorRecords(org, docID string, vectors ...[]float32) []core.VectorRecord {
	records := make([]core.VectorRecord, len(vectors))
	for i, v := range vectors {
		kind := core.ChunkKindParagraph
		level := 0
		if i == 0 {
			kind = core.ChunkKindHeading
			level = 1
		}
		chunk := core.Chunk{
			Content:          fmt.Sprintf("chunk %d of %s", i, docID),
			Kind:             kind,
			HeadingLevel:     level,
			SourceDocumentID: docID,
			Position:         i,
		}
		records[i] = core.NewVectorRecord(org, chunk, v)
	}
	return records
}

func TestVectorIndex_UpsertAndSearch(t *testing.T) {
	stores := newTestStores(t, 3)
	ctx := context.Background()

	records := vectorRecords("org-1", "doc-1",
		[]float32{1, 0, 0},
		[]float32{0, 1, 0},
		[]float32{0.9, 0.1, 0},
	)
	result, err := stores.Vectors.Upsert(ctx, "doc-1", records)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)
	assert.False(t, result.NotConfigured)

	matches, err := stores.Vectors.Search(ctx, []float32{1, 0, 0}, storage.VectorFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc-1:0", matches[0].Record.ID)
	assert.Equal(t, "doc-1:2", matches[1].Record.ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "chunk 0 of doc-1", matches[0].Record.Metadata.Content)
}

func TestVectorIndex_UpsertIsIdempotent(t *testing.T) {
	stores := newTestStores(t, 2)
	ctx := context.Background()

	first := vectorRecords("org-1", "doc-1", []float32{1, 0}, []float32{0, 1})
	_, err := stores.Vectors.Upsert(ctx, "doc-1", first)
	require.NoError(t, err)

	again := vectorRecords("org-1", "doc-1", []float32{0, 1}, []float32{1, 0})
	_, err = stores.Vectors.Upsert(ctx, "doc-1", again)
	require.NoError(t, err)

	n, err := stores.Vectors.Count(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	matches, err := stores.Vectors.Search(ctx, []float32{1, 0}, storage.VectorFilter{}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-1:1", matches[0].Record.ID, "second upsert replaced the values")
}

func TestVectorIndex_Batches(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	index := NewVectorIndex(backend, 2, WithUpsertBatchSize(7))
	ctx := context.Background()

	vectors := make([][]float32, 250)
	for i := range vectors {
		vectors[i] = []float32{float32(i + 1), 1}
	}
	result, err := index.Upsert(ctx, "doc-big", vectorRecords("org-1", "doc-big", vectors...))
	require.NoError(t, err)
	assert.Equal(t, 250, result.Stored)

	n, err := index.Count(ctx, "doc-big")
	require.NoError(t, err)
	assert.Equal(t, 250, n)
}

func TestVectorIndex_RejectsBadRecords(t *testing.T) {
	stores := newTestStores(t, 3)
	ctx := context.Background()

	result, err := stores.Vectors.Upsert(ctx, "doc-1", vectorRecords("org-1", "doc-1", []float32{1, 0, 0}, []float32{1, 0}))
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	assert.Zero(t, result.Stored)

	_, err = stores.Vectors.Upsert(ctx, "doc-1", vectorRecords("org-1", "doc-2", []float32{1, 0, 0}))
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	n, err := stores.Vectors.Count(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is written when validation fails")

	_, err = stores.Vectors.Search(ctx, []float32{1}, storage.VectorFilter{}, 5)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestVectorIndex_Filters(t *testing.T) {
	stores := newTestStores(t, 2)
	ctx := context.Background()

	_, err := stores.Vectors.Upsert(ctx, "doc-a", vectorRecords("org-1", "doc-a", []float32{1, 0}, []float32{1, 0.1}))
	require.NoError(t, err)
	_, err = stores.Vectors.Upsert(ctx, "doc-b", vectorRecords("org-2", "doc-b", []float32{1, 0}, []float32{1, 0.2}))
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter storage.VectorFilter
		want   []string
	}{
		{"document", storage.VectorFilter{DocumentID: "doc-b"}, []string{"doc-b:0", "doc-b:1"}},
		{"organization", storage.VectorFilter{OrganizationID: "org-1"}, []string{"doc-a:0", "doc-a:1"}},
		{"kind", storage.VectorFilter{Kind: core.ChunkKindHeading}, []string{"doc-a:0", "doc-b:0"}},
		{"heading level", storage.VectorFilter{OrganizationID: "org-2", HeadingLevel: 1}, []string{"doc-b:0"}},
		{"min score", storage.VectorFilter{MinScore: 0.999}, []string{"doc-a:0", "doc-b:0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := stores.Vectors.Search(ctx, []float32{1, 0}, tt.filter, 10)
			require.NoError(t, err)
			var ids []string
			for _, m := range matches {
				ids = append(ids, m.Record.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestVectorIndex_DeleteByDocument(t *testing.T) {
	stores := newTestStores(t, 2)
	ctx := context.Background()

	_, err := stores.Vectors.Upsert(ctx, "doc-a", vectorRecords("org-1", "doc-a", []float32{1, 0}, []float32{0, 1}))
	require.NoError(t, err)
	_, err = stores.Vectors.Upsert(ctx, "doc-b", vectorRecords("org-1", "doc-b", []float32{1, 0}))
	require.NoError(t, err)

	require.NoError(t, stores.Vectors.DeleteByDocument(ctx, "doc-a"))
	require.NoError(t, stores.Vectors.DeleteByDocument(ctx, "doc-missing"))

	n, err := stores.Vectors.Count(ctx, "doc-a")
	require.NoError(t, err)
	assert.Zero(t, n)

	matches, err := stores.Vectors.Search(ctx, []float32{1, 0}, storage.VectorFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-b:0", matches[0].Record.ID)
}

func TestVectorIndex_UpsertCancelled(t *testing.T) {
	stores := newTestStores(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := stores.Vectors.Upsert(ctx, "doc-1", vectorRecords("org-1", "doc-1", []float32{1, 0}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.Stored)
}

func TestDisabledVectorIndex(t *testing.T) {
	var index storage.VectorIndex = storage.DisabledVectorIndex{}
	ctx := context.Background()

	assert.False(t, index.Configured())
	result, err := index.Upsert(ctx, "doc-1", vectorRecords("org-1", "doc-1", []float32{1, 0}))
	require.NoError(t, err)
	assert.True(t, result.NotConfigured)
	assert.Zero(t, result.Stored)

	matches, err := index.Search(ctx, []float32{1, 0}, storage.VectorFilter{}, 5)
	assert.ErrorIs(t, err, storage.ErrIndexNotConfigured, "an unconfigured index is not an empty one")
	assert.Nil(t, matches)
	assert.NoError(t, index.DeleteByDocument(ctx, "doc-1"))
}
