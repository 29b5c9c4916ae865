package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/pipeline"
	"github.com/poiesic/docanalysis/search"
	"github.com/poiesic/docanalysis/storage"
)

const timeLayout = time.RFC3339

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, s *pipeline.JobStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Job:\t%s\n", s.JobID)
	fmt.Fprintf(tw, "Status:\t%s\n", s.Status)
	fmt.Fprintf(tw, "Progress:\t%d%% (%s)\n", s.Progress, s.CurrentStepDescription)
	if s.EstimatedCompletion != nil {
		fmt.Fprintf(tw, "Estimated completion:\t%s\n", s.EstimatedCompletion.Format(timeLayout))
	}
	if s.ConfidenceScore != nil {
		fmt.Fprintf(tw, "Confidence:\t%.2f (%s)\n", *s.ConfidenceScore, s.ConfidenceLevel)
	}
	fmt.Fprintf(tw, "Retries:\t%d of %d\n", s.RetryCount, s.MaxRetries)
	if s.NextRetryAt != nil {
		fmt.Fprintf(tw, "Next retry:\t%s\n", s.NextRetryAt.Format(timeLayout))
	}
	if s.Error != nil {
		fmt.Fprintf(tw, "Error:\t[%s] %s\n", s.Error.Kind, s.Error.Message)
	}
	fmt.Fprintf(tw, "Cost:\t%.4f\n", s.Cost)
	fmt.Fprintf(tw, "Created:\t%s\n", s.CreatedAt.Format(timeLayout))
	fmt.Fprintf(tw, "Updated:\t%s\n", s.UpdatedAt.Format(timeLayout))
	tw.Flush()
}

func printRecords(w io.Writer, records []*core.AnalysisRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOCUMENT\tTYPE\tSTATUS\tCONFIDENCE\tCOST\tCREATED")
	for _, r := range records {
		confidence := "-"
		if r.ConfidenceScore != nil {
			confidence = fmt.Sprintf("%.2f %s", *r.ConfidenceScore, r.ConfidenceLevel)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.4f\t%s\n",
			r.ID, r.DocumentName, r.DocumentType, r.Status, confidence, r.Cost, r.CreatedAt.Format(timeLayout))
	}
	tw.Flush()
}

func printStats(w io.Writer, s *storage.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total:\t%d\n", s.Total)
	for _, status := range sortedKeys(s.ByStatus) {
		fmt.Fprintf(tw, "  %s:\t%d\n", status, s.ByStatus[status])
	}
	for _, level := range sortedKeys(s.ByConfidenceLevel) {
		fmt.Fprintf(tw, "  confidence %s:\t%d\n", level, s.ByConfidenceLevel[level])
	}
	fmt.Fprintf(tw, "Success rate:\t%.1f%%\n", s.SuccessRate*100)
	fmt.Fprintf(tw, "Error rate:\t%.1f%%\n", s.ErrorRate*100)
	fmt.Fprintf(tw, "Average processing time:\t%s\n", s.AverageProcessingTime.Round(time.Millisecond))
	fmt.Fprintf(tw, "Total cost:\t%.4f\n", s.TotalCost)
	tw.Flush()
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func printResults(w io.Writer, results []*search.Result) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, r := range results {
		var tags []string
		if r.Verbatim {
			tags = append(tags, "verbatim")
		}
		if r.Kind == core.ChunkKindHeading {
			tags = append(tags, "heading")
		}
		label := ""
		if len(tags) > 0 {
			label = " (" + strings.Join(tags, ", ") + ")"
		}
		fmt.Fprintf(w, "%d: [%0.3f]%s %s #%d\n", i+1, r.Score, label, r.DocumentID, r.ChunkIndex)
		if r.PrecedingHeading != "" {
			fmt.Fprintf(w, "   under %q\n", r.PrecedingHeading)
		}
		fmt.Fprintf(w, "   %s\n", preview(r.Content, 160))
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// explainMonitor prints each phase of a search.
type explainMonitor struct {
	w io.Writer
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func (m *explainMonitor) Start(organizationID, query string) {
	fmt.Fprintf(m.w, "search %q for organization %s\n", query, organizationID)
}

func (m *explainMonitor) AfterEmbedding(dimension int) {
	fmt.Fprintf(m.w, "  embedded query, %d dimensions\n", dimension)
}

func (m *explainMonitor) AfterSemanticSearch(matches []storage.VectorMatch) {
	fmt.Fprintf(m.w, "  %d semantic candidates\n", len(matches))
}

func (m *explainMonitor) VerbatimHit(r *search.Result) {
	fmt.Fprintf(m.w, "  verbatim boost: %s #%d\n", r.DocumentID, r.ChunkIndex)
}

func (m *explainMonitor) HeadingHit(r *search.Result) {
	fmt.Fprintf(m.w, "  heading boost: %s #%d\n", r.DocumentID, r.ChunkIndex)
}

func (m *explainMonitor) Finish(results []*search.Result) {
	fmt.Fprintf(m.w, "  %d results\n\n", len(results))
}
