package mock

import (
	"context"
	"sync"

	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/core"
)

// MockAnalyzer is a test double for ai.Analyzer.
type MockAnalyzer struct {
	// AnalyzeFunc is called by Analyze if set.
	// If nil, returns DefaultAnalysis with default usage.
	AnalyzeFunc func(ctx context.Context, text string, opts ai.AnalyzeOptions) ai.AnalysisResult

	mu          sync.Mutex
	callCount   int
	lastText    string
	lastOptions ai.AnalyzeOptions
}

// NewMockAnalyzer creates a mock analyzer that always succeeds.
func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{}
}

// DefaultUsage is the token usage reported by the default mock behavior.
var DefaultUsage = ai.Usage{PromptTokens: 800, CompletionTokens: 200, TotalTokens: 1000}

// Analyze records the request and returns the injected or default result.
func (m *MockAnalyzer) Analyze(ctx context.Context, text string, opts ai.AnalyzeOptions) ai.AnalysisResult {
	m.mu.Lock()
	m.callCount++
	m.lastText = text
	m.lastOptions = opts
	m.mu.Unlock()

	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, text, opts)
	}
	return ai.OK(DefaultAnalysis(0.7), DefaultUsage, "stop")
}

// CallCount returns the number of Analyze calls.
func (m *MockAnalyzer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastRequest returns the text and options of the most recent call.
func (m *MockAnalyzer) LastRequest() (string, ai.AnalyzeOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastText, m.lastOptions
}

// Reset clears the call count and injected behavior.
func (m *MockAnalyzer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.lastText = ""
	m.lastOptions = ai.AnalyzeOptions{}
	m.AnalyzeFunc = nil
}

// DefaultAnalysis returns a complete analysis reporting the given confidence.
func DefaultAnalysis(confidence float64) *core.StructuredAnalysis {
	return &core.StructuredAnalysis{
		Objectives: []string{"Launch the partner portal"},
		Scope: core.Scope{
			InScope:    []string{"partner registration", "document upload"},
			OutOfScope: []string{"mobile application"},
		},
		Stakeholders: []core.Stakeholder{{Name: "Operations", Role: "sponsor"}},
		Timeline: core.Timeline{
			StartDate:  "2025-01-01",
			EndDate:    "2025-06-30",
			Milestones: []core.Milestone{{Name: "Phase one", Date: "2025-03-31"}},
		},
		Resources:       []core.Resource{{Type: "people", Description: "two engineers"}},
		Risks:           []core.Risk{{Description: "vendor delay", Impact: "high", Likelihood: "medium"}},
		Dependencies:    []string{"identity provider"},
		SuccessCriteria: []string{"portal live by June"},
		KPIs:            []core.KPI{{Name: "active partners", Target: "50"}},
		Confidence:      &confidence,
	}
}
