package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/core"
)

const validResponse = `{
  "objectives": ["Launch the partner portal"],
  "scope": {"inScope": ["registration"], "outOfScope": []},
  "stakeholders": [{"name": "Operations", "role": "sponsor"}],
  "timeline": {"startDate": "2025-01-01", "endDate": "2025-06-30", "milestones": []},
  "resources": [],
  "risks": [{"description": "vendor delay", "impact": "high", "likelihood": "low"}],
  "dependencies": [],
  "successCriteria": ["portal live"],
  "kpis": [],
  "confidence": 0.7
}`

// scriptedModel replays canned responses in order.
type scriptedModel struct {
	responses []string
	err       error
	calls     int
	messages  []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	content := m.responses[min(m.calls-1, len(m.responses)-1)]
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    content,
			StopReason: "stop",
			GenerationInfo: map[string]any{
				"PromptTokens":     120,
				"CompletionTokens": 80,
				"TotalTokens":      200,
			},
		}},
	}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func testConfig() *ai.Config {
	return ai.NewConfig(ai.WithCompliance(true, true))
}

func TestAnalyzeOK(t *testing.T) {
	model := &scriptedModel{responses: []string{"```json\n" + validResponse + "\n```"}}
	a := newAnalyzerWithModel(model, testConfig())

	res := a.Analyze(context.Background(), "document text", ai.AnalyzeOptions{Depth: core.DepthBasic})
	require.Equal(t, ai.ResultOK, res.Kind, "err: %v", res.Err)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, []string{"Launch the partner portal"}, res.Analysis.Objectives)
	assert.InDelta(t, 0.7, res.Analysis.ConfidenceScore(), 1e-9)
	assert.Equal(t, ai.Usage{PromptTokens: 120, CompletionTokens: 80, TotalTokens: 200}, res.Usage)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Equal(t, 1, model.calls)
}

func TestAnalyzeRetriesMalformedJSON(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"objectives": [`, validResponse}}
	a := newAnalyzerWithModel(model, testConfig())

	res := a.Analyze(context.Background(), "document text", ai.AnalyzeOptions{Depth: core.DepthDetailed})
	require.Equal(t, ai.ResultOK, res.Kind)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, 400, res.Usage.TotalTokens)
}

func TestAnalyzeMalformedJSONExhaustsAttempts(t *testing.T) {
	model := &scriptedModel{responses: []string{`not json at all {`}}
	a := newAnalyzerWithModel(model, ai.NewConfig(ai.WithParseAttempts(3)))

	res := a.Analyze(context.Background(), "document text", ai.AnalyzeOptions{Depth: core.DepthBasic})
	assert.Equal(t, ai.ResultSchemaError, res.Kind)
	assert.Equal(t, 3, model.calls)
	assert.Error(t, res.Err)
}

func TestAnalyzeSchemaErrorIsImmediate(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"objectives": ["x"]}`}}
	a := newAnalyzerWithModel(model, testConfig())

	res := a.Analyze(context.Background(), "document text", ai.AnalyzeOptions{Depth: core.DepthBasic})
	assert.Equal(t, ai.ResultSchemaError, res.Kind)
	assert.ErrorIs(t, res.Err, core.ErrMissingField)
	assert.Equal(t, 1, model.calls)
	assert.Nil(t, res.Analysis)
}

func TestAnalyzeProviderError(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection refused")}
	a := newAnalyzerWithModel(model, testConfig())

	res := a.Analyze(context.Background(), "document text", ai.AnalyzeOptions{Depth: core.DepthBasic})
	assert.Equal(t, ai.ResultProviderError, res.Kind)
	assert.EqualError(t, res.Err, "connection refused")
}

func TestAnalyzeUnavailableWithoutKey(t *testing.T) {
	a := NewAnalyzer(ai.DefaultConfig())

	res := a.Analyze(context.Background(), "document text", ai.AnalyzeOptions{Depth: core.DepthBasic})
	assert.Equal(t, ai.ResultProviderUnavailable, res.Kind)
	assert.Equal(t, ai.Usage{}, res.Usage)
	assert.Equal(t, ai.FinishReasonUnavailable, res.FinishReason)
	assert.ErrorIs(t, res.Err, ai.ErrProviderUnavailable)
	assert.ErrorIs(t, res.Err, core.ErrProviderDegraded)
}

func TestAnalyzeUnavailableAfterMarkInvalid(t *testing.T) {
	model := &scriptedModel{responses: []string{validResponse}}
	a := newAnalyzerWithModel(model, testConfig())
	a.MarkInvalid("quota exhausted")

	res := a.Analyze(context.Background(), "document text", ai.AnalyzeOptions{Depth: core.DepthBasic})
	assert.Equal(t, ai.ResultProviderUnavailable, res.Kind)
	assert.Contains(t, res.Err.Error(), "quota exhausted")
	assert.Equal(t, 0, model.calls)
	assert.False(t, a.Available())
}

func TestAnalyzeNonCompliantStillServes(t *testing.T) {
	model := &scriptedModel{responses: []string{validResponse}}
	a := newAnalyzerWithModel(model, ai.NewConfig(ai.WithCompliance(false, false)))

	res := a.Analyze(context.Background(), "document text", ai.AnalyzeOptions{Depth: core.DepthBasic})
	assert.Equal(t, ai.ResultOK, res.Kind)
}

func TestAnalyzeTruncatesToTokenBudget(t *testing.T) {
	model := &scriptedModel{responses: []string{validResponse}}
	a := newAnalyzerWithModel(model, ai.NewConfig(ai.WithTokenBudget(10, 100)))

	a.Analyze(context.Background(), strings.Repeat("word ", 100), ai.AnalyzeOptions{Depth: core.DepthBasic})
	require.Len(t, model.messages, 2)
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.LessOrEqual(t, len(human), 40)
}

func TestBuildSystemPrompt(t *testing.T) {
	basic := buildSystemPrompt(ai.AnalyzeOptions{Depth: core.DepthBasic})
	comprehensive := buildSystemPrompt(ai.AnalyzeOptions{
		Depth:         core.DepthComprehensive,
		ExtractFields: []string{"budget", "owner"},
		DocumentType:  core.DocumentTypeContract,
		DocumentName:  "msa.docx",
	})

	assert.Contains(t, basic, "brief overview")
	assert.NotContains(t, basic, "extractedFields\" with")
	assert.Contains(t, comprehensive, "exhaustive analysis")
	assert.Contains(t, comprehensive, `"budget", "owner"`)
	assert.Contains(t, comprehensive, "CONTRACT")
	assert.Contains(t, comprehensive, `"successCriteria"`)
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"preamble", "Here is the analysis: {\"a\": 1} hope this helps", `{"a": 1}`},
		{"missing key quote", `{"a": 1, b": 2}`, `{"a": 1, "b": 2}`},
		{"trailing comma", `{"a": [1, 2,], "b": 3,}`, `{"a": [1, 2], "b": 3}`},
		{"comma in string kept", `{"a": "x,]"}`, `{"a": "x,]"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanResponse(tt.in))
		})
	}
}

func TestNewProviderDegradesWithoutConfig(t *testing.T) {
	provider, err := NewProvider(ai.NewConfig(ai.WithHost("")))
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.Embedder().EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)

	res := provider.Analyzer().Analyze(context.Background(), "x", ai.AnalyzeOptions{Depth: core.DepthBasic})
	assert.Equal(t, ai.ResultProviderUnavailable, res.Kind)
}

func TestNewProviderInvalidConfig(t *testing.T) {
	provider, err := NewProvider(ai.NewConfig(ai.WithEmbeddingBatching(0, 0), ai.WithAnalyzerAPIKey("k")))
	require.NoError(t, err)

	res := provider.Analyzer().Analyze(context.Background(), "x", ai.AnalyzeOptions{Depth: core.DepthBasic})
	assert.Equal(t, ai.ResultProviderUnavailable, res.Kind)
	assert.ErrorIs(t, res.Err, ai.ErrProviderUnavailable)
}
