package storage

import (
	"context"

	"github.com/poiesic/docanalysis/core"
)

// DisabledVectorIndex stands in for an unconfigured vector store. Upserts
// report NotConfigured and searches fail with ErrIndexNotConfigured, so an
// empty result always means no match.
type DisabledVectorIndex struct{}

var _ VectorIndex = DisabledVectorIndex{}

func (DisabledVectorIndex) Upsert(ctx context.Context, documentID string, records []core.VectorRecord) (UpsertResult, error) {
	return UpsertResult{NotConfigured: true}, nil
}

func (DisabledVectorIndex) Search(ctx context.Context, query []float32, filter VectorFilter, topK int) ([]VectorMatch, error) {
	return nil, ErrIndexNotConfigured
}

func (DisabledVectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	return nil
}

func (DisabledVectorIndex) Configured() bool {
	return false
}
