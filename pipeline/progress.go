package pipeline

import (
	"fmt"
	"time"

	"github.com/poiesic/docanalysis/core"
)

var stageDescriptions = map[core.Stage]string{
	core.StageParse:   "Parsing document",
	core.StageEmbed:   "Generating embeddings",
	core.StageIndex:   "Indexing vectors",
	core.StageAnalyze: "Analyzing content",
}

// stepDescription summarizes where a job is.
func stepDescription(record *core.AnalysisRecord) string {
	switch record.Status {
	case core.StatusPending:
		if record.RetryCount > 0 {
			return fmt.Sprintf("Queued for retry %d of %d", record.RetryCount, record.MaxRetries)
		}
		return "Queued for processing"
	case core.StatusProcessing:
		if record.CancelRequested {
			return "Cancelling"
		}
		if desc, ok := stageDescriptions[record.CurrentStage]; ok {
			return desc
		}
		return "Processing"
	case core.StatusCompleted:
		return "Analysis complete"
	case core.StatusCancelled:
		return "Cancelled"
	case core.StatusFailed:
		if record.NextRetryAt != nil {
			return fmt.Sprintf("Failed during %s, retry %d of %d scheduled",
				record.CurrentStage, record.RetryCount, record.MaxRetries)
		}
		return fmt.Sprintf("Failed during %s", record.CurrentStage)
	}
	return string(record.Status)
}

// estimateCompletion projects the finish time of a PROCESSING job from the
// rate at which it has progressed so far. Returns nil when there is nothing
// to project from.
func estimateCompletion(record *core.AnalysisRecord, now time.Time) *time.Time {
	if record.Status != core.StatusProcessing || record.StartedAt == nil || record.Progress <= 0 {
		return nil
	}
	elapsed := now.Sub(*record.StartedAt)
	if elapsed <= 0 {
		return nil
	}
	rate := float64(record.Progress) / elapsed.Seconds()
	remaining := time.Duration(float64(100-record.Progress) / rate * float64(time.Second))
	eta := now.Add(remaining)
	return &eta
}
