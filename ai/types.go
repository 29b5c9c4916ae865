package ai

import "github.com/poiesic/docanalysis/core"

// FinishReasonUnavailable marks a result produced without calling the provider.
const FinishReasonUnavailable = "service_unavailable"

// AnalyzeOptions controls a single analysis request.
type AnalyzeOptions struct {
	Depth         core.AnalysisDepth
	ExtractFields []string
	DocumentType  core.DocumentType
	DocumentName  string
}

// ResultKind tags the outcome of an analysis call.
type ResultKind int

const (
	// ResultOK carries a schema-valid analysis.
	ResultOK ResultKind = iota
	// ResultSchemaError means the provider answered but the answer did not
	// match the analysis schema.
	ResultSchemaError
	// ResultProviderUnavailable means the provider is unconfigured or marked
	// invalid. No request was sent.
	ResultProviderUnavailable
	// ResultProviderError means the provider call itself failed.
	ResultProviderError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultSchemaError:
		return "schema_error"
	case ResultProviderUnavailable:
		return "provider_unavailable"
	case ResultProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// Usage is the token accounting of a provider call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AnalysisResult is the tagged outcome of Analyzer.Analyze.
type AnalysisResult struct {
	Kind         ResultKind
	Analysis     *core.StructuredAnalysis // set only for ResultOK
	Usage        Usage
	FinishReason string
	Err          error // set for every kind except ResultOK
}

// OK wraps a validated analysis.
func OK(analysis *core.StructuredAnalysis, usage Usage, finishReason string) AnalysisResult {
	return AnalysisResult{Kind: ResultOK, Analysis: analysis, Usage: usage, FinishReason: finishReason}
}

// SchemaError reports a response that failed schema validation.
func SchemaError(err error, usage Usage, finishReason string) AnalysisResult {
	return AnalysisResult{Kind: ResultSchemaError, Err: err, Usage: usage, FinishReason: finishReason}
}

// ProviderError reports a failed provider call.
func ProviderError(err error) AnalysisResult {
	return AnalysisResult{Kind: ResultProviderError, Err: err}
}

// Unavailable is the degraded response returned without contacting the
// provider. Usage is always zero.
func Unavailable(reason string) AnalysisResult {
	return AnalysisResult{
		Kind:         ResultProviderUnavailable,
		FinishReason: FinishReasonUnavailable,
		Err:          &unavailableError{reason: reason},
	}
}

type unavailableError struct {
	reason string
}

func (e *unavailableError) Error() string {
	return "analysis service unavailable: " + e.reason
}

func (e *unavailableError) Unwrap() error {
	return ErrProviderUnavailable
}
