package core

import (
	"testing"
)

func TestDocumentHash(t *testing.T) {
	tests := []struct {
		name     string
		docName  string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same hash",
			docName:  "plan.txt",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty content",
			docName:  "empty.txt",
			content:  "",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := DocumentHash(tt.docName, []byte(tt.content))
			h2 := DocumentHash(tt.docName, []byte(tt.content))

			if tt.wantSame && h1 != h2 {
				t.Errorf("DocumentHash() produced different hashes for same input: %s vs %s", h1, h2)
			}
			if len(h1) != 64 {
				t.Errorf("DocumentHash() length = %d, want 64", len(h1))
			}
		})
	}
}

func TestDocumentHash_Different(t *testing.T) {
	base := DocumentHash("a.txt", []byte("content"))

	if base == DocumentHash("b.txt", []byte("content")) {
		t.Errorf("DocumentHash() ignored the document name")
	}
	if base == DocumentHash("a.txt", []byte("content2")) {
		t.Errorf("DocumentHash() ignored the content")
	}
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{0.95, ConfidenceHigh},
		{0.7, ConfidenceHigh},
		{0.69, ConfidenceMedium},
		{0.4, ConfidenceMedium},
		{0.39, ConfidenceLow},
		{0, ConfidenceLow},
	}

	for _, tt := range tests {
		if got := LevelForScore(tt.score); got != tt.want {
			t.Errorf("LevelForScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestNewVectorRecord(t *testing.T) {
	chunk := Chunk{
		ID:               ChunkID("doc-1", 2),
		Content:          "Deliver the portal",
		Kind:             ChunkKindListItem,
		ListStyle:        ListStyleBullet,
		SourceDocumentID: "doc-1",
		PrecedingHeading: "Objectives",
		Position:         2,
	}

	rec := NewVectorRecord("org1", chunk, []float32{1, 0})

	if rec.ID != "doc-1:2" {
		t.Errorf("ID = %q, want doc-1:2", rec.ID)
	}
	if rec.Metadata.ChunkIndex != 2 || rec.Metadata.OrganizationID != "org1" {
		t.Errorf("unexpected metadata %+v", rec.Metadata)
	}
	if rec.Metadata.PrecedingHeading != "Objectives" {
		t.Errorf("PrecedingHeading = %q", rec.Metadata.PrecedingHeading)
	}
}
