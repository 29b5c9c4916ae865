package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/core"
)

var errNoChoices = errors.New("model returned no choices")

// Analyzer implements ai.Analyzer using OpenAI-compatible chat APIs.
type Analyzer struct {
	client          llms.Model
	maxInputChars   int
	maxOutputTokens int
	parseAttempts   int
	compliant       bool
	logger          *slog.Logger

	mu            sync.RWMutex
	invalidReason string
}

var _ ai.Analyzer = (*Analyzer)(nil)

// newAnalyzer builds an analyzer. Missing settings or a client that cannot be
// constructed leave the analyzer marked invalid rather than failing.
func newAnalyzer(config *ai.Config) *Analyzer {
	a := &Analyzer{
		maxInputChars:   ai.CharsForTokens(config.MaxInputTokens),
		maxOutputTokens: config.MaxOutputTokens,
		parseAttempts:   max(config.ParseAttempts, 1),
		compliant:       config.Compliant(),
		logger:          slog.Default().With("component", "openai-analyzer"),
	}

	if !config.AnalyzerConfigured() {
		a.MarkInvalid("analyzer host, model or API key not configured")
		return a
	}

	client, err := openai.New(
		openai.WithBaseURL(config.AnalyzerHost),
		openai.WithToken(config.AnalyzerAPIKey),
		openai.WithModel(config.AnalyzerModel),
	)
	if err != nil {
		a.MarkInvalid(err.Error())
		return a
	}
	a.client = client
	return a
}

// NewAnalyzer creates a new analyzer using the provided configuration.
//
// Returns ai.Analyzer interface to enforce abstraction.
func NewAnalyzer(config *ai.Config) ai.Analyzer {
	return newAnalyzer(config)
}

// newAnalyzerWithModel wires an existing llms.Model. Used by tests.
func newAnalyzerWithModel(model llms.Model, config *ai.Config) *Analyzer {
	a := newAnalyzer(&ai.Config{
		MaxInputTokens:         config.MaxInputTokens,
		MaxOutputTokens:        config.MaxOutputTokens,
		ParseAttempts:          config.ParseAttempts,
		DataRetentionOptOut:    config.DataRetentionOptOut,
		DataCollectionDisabled: config.DataCollectionDisabled,
	})
	a.client = model
	a.clearInvalid()
	return a
}

// MarkInvalid puts the analyzer into service-unavailable mode.
func (a *Analyzer) MarkInvalid(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidReason = reason
}

func (a *Analyzer) clearInvalid() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidReason = ""
}

// Available reports whether requests will be sent to the provider.
func (a *Analyzer) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.invalidReason == "" && a.client != nil
}

func (a *Analyzer) unavailableReason() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.invalidReason != "" {
		return a.invalidReason
	}
	if a.client == nil {
		return "analyzer client not initialized"
	}
	return ""
}

// Analyze sends the document to the model and validates the response.
// Unparseable JSON is retried up to the configured attempts; a response that
// parses but violates the schema is reported immediately.
func (a *Analyzer) Analyze(ctx context.Context, documentText string, opts ai.AnalyzeOptions) ai.AnalysisResult {
	if reason := a.unavailableReason(); reason != "" {
		a.logger.Warn("analysis service unavailable", "reason", reason)
		return ai.Unavailable(reason)
	}
	if !a.compliant {
		a.logger.Warn("analysis provider is not configured for compliant data handling",
			"document", opts.DocumentName)
	}

	text := ai.TruncateForEmbedding(documentText, a.maxInputChars)
	if len(text) < len(documentText) {
		a.logger.Debug("truncated document text to token budget",
			"original_chars", len(documentText), "chars", len(text))
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildSystemPrompt(opts))},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(text)},
		},
	}

	var (
		usage   ai.Usage
		finish  string
		lastErr error
	)
	for attempt := 0; attempt < a.parseAttempts; attempt++ {
		response, err := a.client.GenerateContent(ctx, content,
			llms.WithTemperature(0.0),
			llms.WithJSONMode(),
			llms.WithMaxTokens(a.maxOutputTokens),
		)
		if err != nil {
			a.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			res := ai.ProviderError(err)
			res.Usage = usage
			return res
		}

		if len(response.Choices) < 1 {
			lastErr = errNoChoices
			a.logger.Warn("no choices returned from model", "attempt", attempt+1)
			continue
		}

		choice := response.Choices[0]
		usage = addUsage(usage, choice.GenerationInfo)
		finish = choice.StopReason

		analysis, err := core.ParseStructuredAnalysis([]byte(cleanResponse(choice.Content)))
		if err == nil {
			a.logger.Debug("analysis complete", "attempt", attempt+1, "total_tokens", usage.TotalTokens)
			return ai.OK(analysis, usage, finish)
		}

		lastErr = err
		var syntaxErr *json.SyntaxError
		if !errors.As(err, &syntaxErr) {
			a.logger.Warn("analysis response failed schema validation", "err", err)
			return ai.SchemaError(err, usage, finish)
		}
		a.logger.Warn("error parsing analysis response", "attempt", attempt+1, "err", err)
	}

	a.logger.Error("failed to parse analysis response after retries", "err", lastErr)
	return ai.SchemaError(lastErr, usage, finish)
}

// addUsage accumulates the token counts langchaingo reports in GenerationInfo.
func addUsage(u ai.Usage, info map[string]any) ai.Usage {
	prompt := intValue(info["PromptTokens"])
	completion := intValue(info["CompletionTokens"])
	total := intValue(info["TotalTokens"])
	if total == 0 {
		total = prompt + completion
	}
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.TotalTokens += total
	return u
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
