package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docanalysis/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalVectorRecord(t *testing.T) {
	chunk := core.Chunk{
		Content:          "Deliver the migration by Q3.",
		Kind:             core.ChunkKindParagraph,
		SourceDocumentID: "doc-1",
		PrecedingHeading: "Objectives",
		Position:         4,
	}
	record := core.NewVectorRecord("org-1", chunk, []float32{0.25, -0.5, 1, 0})

	data, err := MarshalVectorRecord(&record)
	require.NoError(t, err)

	decoded, err := UnmarshalVectorRecord(data)
	require.NoError(t, err)
	assert.Equal(t, "doc-1:4", decoded.ID)
	assert.Equal(t, record.Values, decoded.Values)
	assert.Equal(t, record.Metadata, decoded.Metadata)
}

func TestUnmarshalVectorRecord_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncatedData},
		{"short header", []byte{0, 0}, ErrTruncatedData},
		{"metadata past end", []byte{0, 0, 0, 9, '{', '}'}, ErrTruncatedData},
		{"ragged values", []byte{0, 0, 0, 2, '{', '}', 1, 2, 3}, ErrTruncatedData},
		{"bad metadata", []byte{0, 0, 0, 2, '[', ']'}, ErrSerializationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalVectorRecord(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestMarshalUnmarshalJob(t *testing.T) {
	job := &Job{ID: "job-1", OrganizationID: "org-1", EnqueuedAt: time.UnixMilli(1700000000000).UTC()}

	data, err := MarshalJob(job)
	require.NoError(t, err)

	decoded, err := UnmarshalJob(data)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.OrganizationID, decoded.OrganizationID)
	assert.True(t, job.EnqueuedAt.Equal(decoded.EnqueuedAt))

	_, err = UnmarshalJob(nil)
	assert.ErrorIs(t, err, ErrTruncatedData)
}
