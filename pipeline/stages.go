package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

// parse loads the document bytes and splits them into chunks.
// Parse failures are deterministic and never retried.
func (o *Orchestrator) parse(ctx context.Context, run *jobRun) error {
	record := run.record

	data, err := o.documents.Get(ctx, record.ID)
	if err != nil {
		return &core.StageError{
			Stage:     core.StageParse,
			Retryable: !errors.Is(err, storage.ErrNotFound),
			Err:       fmt.Errorf("loading document: %w", err),
		}
	}

	chunks, err := o.chunker.Parse(data, record.DocumentName, record.ID)
	if err != nil {
		return &core.StageError{Stage: core.StageParse, Err: err}
	}

	run.chunks = chunks
	record.Metadata.ChunkCount = len(chunks)
	run.logger.Debug("document parsed", "chunks", len(chunks))
	return nil
}

// embed generates one vector per chunk. Any batch failure fails the stage
// and no vectors are kept.
func (o *Orchestrator) embed(ctx context.Context, run *jobRun) error {
	record := run.record

	texts := make([]string, len(run.chunks))
	tokens := 0
	for i, chunk := range run.chunks {
		texts[i] = ai.TruncateForEmbedding(chunk.Content, o.embedder.MaxChars())
		tokens += ai.EstimateTokens(texts[i])
	}

	start := time.Now()
	vectors, err := o.embedder.Embed(ctx, texts)
	call := core.ExternalServiceCall{
		Service:   core.ServiceEmbedding,
		Operation: "embed_texts",
		Duration:  time.Since(start),
	}
	if err == nil && len(vectors) != len(run.chunks) {
		err = fmt.Errorf("%w: %d chunks, %d vectors", ai.ErrEmbeddingMismatch, len(run.chunks), len(vectors))
	}
	if err != nil {
		call.Status = callStatus(err)
		call.Error = err.Error()
		o.recordCall(ctx, record, call)
		return &core.StageError{
			Stage:     core.StageEmbed,
			Retryable: !errors.Is(err, ai.ErrEmptyText) && !errors.Is(err, ai.ErrTextTooLong),
			Err:       err,
		}
	}

	call.Status = core.CallSuccess
	call.Tokens = tokens
	call.Cost = price(tokens, o.config.EmbeddingCostPer1K)
	record.Cost += call.Cost
	o.recordCall(ctx, record, call)

	run.vectors = vectors
	run.logger.Debug("chunks embedded", "vectors", len(vectors), "tokens", tokens)
	return nil
}

// index writes the vectors. An unconfigured index or SkipIndexing skips the
// stage. A partial write fails the stage and removes what was stored.
func (o *Orchestrator) index(ctx context.Context, run *jobRun) error {
	record := run.record
	call := core.ExternalServiceCall{Service: core.ServiceVectorIndex, Operation: "upsert"}

	skip := func(status core.IndexStatus, reason string) error {
		record.Metadata.IndexStatus = status
		call.Status = core.CallSkipped
		call.Error = reason
		o.recordCall(ctx, record, call)
		run.logger.Info("skipping vector indexing", "reason", reason)
		return nil
	}
	if record.ProcessingOptions.SkipIndexing {
		return skip(core.IndexStatusSkipped, "indexing disabled for this analysis")
	}
	if !o.vectors.Configured() {
		return skip(core.IndexStatusNotConfigured, "vector index not configured")
	}

	records := make([]core.VectorRecord, len(run.chunks))
	for i, chunk := range run.chunks {
		records[i] = core.NewVectorRecord(record.OrganizationID, chunk, run.vectors[i])
	}

	callCtx, cancel := o.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := o.vectors.Upsert(callCtx, record.ID, records)
	call.Duration = time.Since(start)
	if err == nil && result.NotConfigured {
		return skip(core.IndexStatusNotConfigured, "vector index not configured")
	}
	if err != nil {
		call.Status = core.CallError
		call.Error = fmt.Sprintf("stored %d of %d: %v", result.Stored, len(records), err)
		o.recordCall(ctx, record, call)
		if result.Stored > 0 {
			if delErr := o.vectors.DeleteByDocument(context.WithoutCancel(ctx), record.ID); delErr != nil {
				run.logger.Warn("error removing partial vectors", "stored", result.Stored, "err", delErr)
			}
		}
		return &core.StageError{
			Stage:     core.StageIndex,
			Retryable: !errors.Is(err, storage.ErrDimensionMismatch),
			Err:       err,
		}
	}

	call.Status = core.CallSuccess
	o.recordCall(ctx, record, call)
	record.Metadata.VectorCount = result.Stored
	record.Metadata.IndexStatus = core.IndexStatusIndexed
	run.logger.Debug("vectors indexed", "count", result.Stored)
	return nil
}

// analyze asks the language model for a structured analysis and derives
// the confidence score.
func (o *Orchestrator) analyze(ctx context.Context, run *jobRun) error {
	record := run.record

	callCtx, cancel := o.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result := o.analyzer.Analyze(callCtx, documentText(run.chunks), ai.AnalyzeOptions{
		Depth:         record.ProcessingOptions.Depth,
		ExtractFields: record.ProcessingOptions.ExtractFields,
		DocumentType:  record.DocumentType,
		DocumentName:  record.DocumentName,
	})

	call := core.ExternalServiceCall{
		Service:   core.ServiceLLM,
		Operation: "analyze",
		Duration:  time.Since(start),
		Tokens:    result.Usage.TotalTokens,
		Cost:      price(result.Usage.TotalTokens, o.config.LLMCostPer1K),
	}
	record.Cost += call.Cost

	var stageErr *core.StageError
	switch result.Kind {
	case ai.ResultOK:
		call.Status = core.CallSuccess
	case ai.ResultSchemaError:
		call.Status = core.CallError
		stageErr = &core.StageError{Stage: core.StageAnalyze, Err: result.Err}
	case ai.ResultProviderUnavailable:
		call.Status = core.CallUnavailable
		stageErr = &core.StageError{Stage: core.StageAnalyze, Retryable: true, Err: result.Err}
	default:
		call.Status = core.CallError
		stageErr = &core.StageError{Stage: core.StageAnalyze, Retryable: true, Err: result.Err}
	}
	if stageErr != nil {
		if stageErr.Err == nil {
			stageErr.Err = fmt.Errorf("analyzer returned %s", result.Kind)
		}
		call.Error = stageErr.Err.Error()
		o.recordCall(ctx, record, call)
		return stageErr
	}
	o.recordCall(ctx, record, call)

	score := result.Analysis.ConfidenceScore()
	record.AnalysisResult = result.Analysis
	record.ConfidenceScore = &score
	record.ConfidenceLevel = core.LevelForScore(score)
	run.logger.Debug("document analyzed", "tokens", result.Usage.TotalTokens,
		"finish_reason", result.FinishReason, "confidence", score)
	return nil
}

// documentText reassembles chunk text for the analysis prompt.
func documentText(chunks []core.Chunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(chunk.Content)
	}
	return b.String()
}

func callStatus(err error) core.CallStatus {
	if errors.Is(err, core.ErrProviderDegraded) {
		return core.CallUnavailable
	}
	return core.CallError
}

func price(tokens int, per1K float64) float64 {
	return float64(tokens) / 1000 * per1K
}
