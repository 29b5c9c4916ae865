package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validAnalysisJSON = `{
  "objectives": ["Launch the partner portal"],
  "scope": {"inScope": ["portal"], "outOfScope": ["mobile app"]},
  "stakeholders": [{"name": "Operations", "role": "sponsor"}],
  "timeline": {"startDate": "2025-01-01", "endDate": "2025-06-30", "milestones": []},
  "resources": [{"type": "people", "description": "two engineers"}],
  "risks": [{"description": "vendor delay", "impact": "High", "likelihood": "medium"}],
  "dependencies": ["identity provider"],
  "successCriteria": ["portal live"],
  "kpis": [{"name": "active partners", "target": "50"}],
  "confidence": 0.7
}`

func TestParseStructuredAnalysis(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		analysis, err := ParseStructuredAnalysis([]byte(validAnalysisJSON))
		require.NoError(t, err)
		assert.Equal(t, []string{"Launch the partner portal"}, analysis.Objectives)
		assert.Equal(t, "high", analysis.Risks[0].Impact)
		require.NotNil(t, analysis.Confidence)
		assert.InDelta(t, 0.7, analysis.ConfidenceScore(), 1e-9)
	})

	t.Run("missing section", func(t *testing.T) {
		_, err := ParseStructuredAnalysis([]byte(`{"objectives": []}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidAnalysis))
		assert.True(t, errors.Is(err, ErrMissingField))
	})

	t.Run("wrong type", func(t *testing.T) {
		raw := `{"objectives": "x", "scope": {}, "stakeholders": [], "timeline": {}, "resources": [],
			"risks": [], "dependencies": [], "successCriteria": [], "kpis": []}`
		_, err := ParseStructuredAnalysis([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidAnalysis)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		raw := `{"objectives": [], "scope": {}, "stakeholders": [], "timeline": {}, "resources": [],
			"risks": [], "dependencies": [], "successCriteria": [], "kpis": [], "confidence": 1.5}`
		_, err := ParseStructuredAnalysis([]byte(raw))
		assert.ErrorIs(t, err, ErrConfidenceRange)
	})

	t.Run("bad risk rating", func(t *testing.T) {
		raw := `{"objectives": [], "scope": {}, "stakeholders": [], "timeline": {}, "resources": [],
			"risks": [{"description": "x", "impact": "severe", "likelihood": "low"}],
			"dependencies": [], "successCriteria": [], "kpis": []}`
		_, err := ParseStructuredAnalysis([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidRating)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseStructuredAnalysis([]byte("not json"))
		assert.ErrorIs(t, err, ErrInvalidAnalysis)
	})
}

func TestConfidenceScoreFallsBackToCompleteness(t *testing.T) {
	analysis := &StructuredAnalysis{
		Objectives:   []string{"a"},
		Stakeholders: []Stakeholder{{Name: "b"}},
		Risks:        []Risk{{Description: "c", Impact: "low", Likelihood: "low"}},
	}

	assert.InDelta(t, 3.0/9.0, analysis.ConfidenceScore(), 1e-9)
	assert.Equal(t, ConfidenceLow, LevelForScore(analysis.ConfidenceScore()))
}
