package ai

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestValidateTextForEmbedding(t *testing.T) {
	assert.ErrorIs(t, ValidateTextForEmbedding("", 10), ErrEmptyText)
	assert.ErrorIs(t, ValidateTextForEmbedding(" \n\t", 10), ErrEmptyText)
	assert.ErrorIs(t, ValidateTextForEmbedding(strings.Repeat("a", 11), 10), ErrTextTooLong)
	assert.NoError(t, ValidateTextForEmbedding(strings.Repeat("a", 10), 10))
	assert.NoError(t, ValidateTextForEmbedding("ünïcödé", 7))
	assert.NoError(t, ValidateTextForEmbedding(strings.Repeat("a", 1000), 0))
}

func TestTruncateForEmbedding(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     string
	}{
		{
			name:     "short text untouched",
			text:     "Short.",
			maxChars: 100,
			want:     "Short.",
		},
		{
			name:     "sentence boundary",
			text:     "The first sentence is here. The second sentence runs past the limit.",
			maxChars: 40,
			want:     "The first sentence is here.",
		},
		{
			name:     "word boundary when no sentence end in back half",
			text:     "Short. then a very long run of words without any stop at all",
			maxChars: 30,
			want:     "Short. then a very long run of",
		},
		{
			name:     "hard cut without spaces",
			text:     strings.Repeat("x", 50),
			maxChars: 20,
			want:     strings.Repeat("x", 20),
		},
		{
			name:     "rune safe",
			text:     strings.Repeat("é", 50),
			maxChars: 10,
			want:     strings.Repeat("é", 10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateForEmbedding(tt.text, tt.maxChars)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.maxChars)
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
	assert.Equal(t, 400, CharsForTokens(100))
}
