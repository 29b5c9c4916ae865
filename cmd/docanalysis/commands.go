package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/pipeline"
	"github.com/poiesic/docanalysis/reindex"
	"github.com/poiesic/docanalysis/search"
	"github.com/poiesic/docanalysis/storage"
	"github.com/urfave/cli/v2"
)

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func jobArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one JOB_ID argument, got %d", c.NArg())
	}
	return c.Args().First(), nil
}

func (a *app) runCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one FILE argument, got %d", c.NArg())
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signalContext(c)
	defer stop()

	orch := svc.Orchestrator()
	organizationID := c.String("org")
	resp, err := orch.Submit(ctx, pipeline.SubmitRequest{
		Data:           data,
		Filename:       filepath.Base(path),
		DocumentType:   core.DocumentType(strings.ToUpper(c.String("type"))),
		Depth:          core.AnalysisDepth(strings.ToLower(c.String("depth"))),
		ExtractFields:  c.StringSlice("field"),
		OrganizationID: organizationID,
		UserID:         c.String("user"),
		SkipIndexing:   c.Bool("skip-indexing"),
	})
	if err != nil {
		return fmt.Errorf("submission rejected: %w", err)
	}
	fmt.Fprintf(a.out, "Submitted job %s\n", resp.JobID)
	if c.Bool("no-wait") {
		return nil
	}

	status, err := waitForJob(ctx, orch, organizationID, resp.JobID, orch.Config().PollInterval)
	if err != nil {
		return err
	}
	printStatus(a.out, status)

	switch status.Status {
	case core.StatusCompleted:
		fmt.Fprintln(a.out)
		return printJSON(a.out, status.Result)
	case core.StatusFailed:
		if status.Error != nil {
			return fmt.Errorf("analysis failed during %s: %s", status.Error.Stage, status.Error.Message)
		}
		return fmt.Errorf("analysis failed")
	}
	return nil
}

// waitForJob processes due jobs until the given one settles. A FAILED job
// with a scheduled retry is not settled.
func waitForJob(ctx context.Context, orch *pipeline.Orchestrator, organizationID, jobID string, poll time.Duration) (*pipeline.JobStatus, error) {
	for {
		status, err := orch.Status(ctx, organizationID, jobID)
		if err != nil {
			return nil, err
		}
		if settled(status) {
			return status, nil
		}

		found, err := orch.ProcessNext(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil && !errors.Is(err, core.ErrStage) {
			return nil, err
		}
		if found {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

func settled(status *pipeline.JobStatus) bool {
	switch status.Status {
	case core.StatusCompleted, core.StatusCancelled:
		return true
	case core.StatusFailed:
		return status.NextRetryAt == nil
	}
	return false
}

func (a *app) serveCommand(c *cli.Context) error {
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signalContext(c)
	defer stop()

	fmt.Fprintf(a.out, "Serving from %s, press Ctrl-C to stop\n", svc.Config().DataDir)
	return svc.Orchestrator().Run(ctx)
}

func (a *app) statusCommand(c *cli.Context) error {
	jobID, err := jobArg(c)
	if err != nil {
		return err
	}
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	status, err := svc.Orchestrator().Status(c.Context, c.String("org"), jobID)
	if err != nil {
		return err
	}
	printStatus(a.out, status)
	return nil
}

func (a *app) resultCommand(c *cli.Context) error {
	jobID, err := jobArg(c)
	if err != nil {
		return err
	}
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Orchestrator().Result(c.Context, c.String("org"), jobID)
	if err != nil {
		return err
	}
	return printJSON(a.out, result)
}

func (a *app) listCommand(c *cli.Context) error {
	filter := storage.ListFilter{
		Status:          core.Status(strings.ToUpper(c.String("status"))),
		DocumentType:    core.DocumentType(strings.ToUpper(c.String("type"))),
		ConfidenceLevel: core.ConfidenceLevel(strings.ToUpper(c.String("confidence"))),
		Page:            c.Int("page"),
		PageSize:        c.Int("page-size"),
		SortBy:          c.String("sort"),
		SortOrder:       c.String("order"),
	}
	if c.IsSet("errors") {
		hasErrors := c.Bool("errors")
		filter.HasErrors = &hasErrors
	}

	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	page, err := svc.Orchestrator().List(c.Context, c.String("org"), filter)
	if err != nil {
		return err
	}
	printRecords(a.out, page.Records)
	fmt.Fprintf(a.out, "\nPage %d of %d, %d analyses\n", page.Page, max(page.TotalPages, 1), page.Total)
	return nil
}

func (a *app) statsCommand(c *cli.Context) error {
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Orchestrator().Stats(c.Context, c.String("org"))
	if err != nil {
		return err
	}
	printStats(a.out, stats)
	return nil
}

func (a *app) cancelCommand(c *cli.Context) error {
	jobID, err := jobArg(c)
	if err != nil {
		return err
	}
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	orch := svc.Orchestrator()
	if err := orch.Cancel(c.Context, c.String("org"), jobID); err != nil {
		return err
	}
	status, err := orch.Status(c.Context, c.String("org"), jobID)
	if err != nil {
		return err
	}
	if status.Status == core.StatusCancelled {
		fmt.Fprintf(a.out, "Job %s cancelled\n", jobID)
	} else {
		fmt.Fprintf(a.out, "Cancellation of job %s requested, it stops at the next stage\n", jobID)
	}
	return nil
}

func (a *app) retryCommand(c *cli.Context) error {
	jobID, err := jobArg(c)
	if err != nil {
		return err
	}
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Orchestrator().Retry(c.Context, c.String("org"), jobID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Job %s queued for retry\n", jobID)
	return nil
}

func (a *app) similarCommand(c *cli.Context) error {
	jobID, err := jobArg(c)
	if err != nil {
		return err
	}
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	records, err := svc.Orchestrator().SimilarAnalyses(c.Context, c.String("org"), jobID, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No similar analyses")
		return nil
	}
	printRecords(a.out, records)
	return nil
}

func (a *app) searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a search query is required")
	}

	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := search.SearchOptions{
		DocumentID:    c.String("document"),
		TopK:          c.Int("top-k"),
		MinSimilarity: float32(c.Float64("min-similarity")),
	}
	var monitor search.SearchMonitor
	if c.Bool("explain") {
		monitor = &explainMonitor{w: a.out}
	}

	results, err := svc.SearchWithMonitor(c.Context, c.String("org"), query, opts, monitor)
	if err != nil {
		return err
	}
	printResults(a.out, results)
	return nil
}

func (a *app) cleanupCommand(c *cli.Context) error {
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	purged, err := svc.Orchestrator().Cleanup(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Purged %d analyses older than %s\n", purged, svc.Config().Pipeline.Retention.Duration)
	return nil
}

func (a *app) reindexCommand(c *cli.Context) error {
	svc, err := a.openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signalContext(c)
	defer stop()

	cfg := reindex.DefaultConfig()
	cfg.OrganizationID = c.String("org")
	cfg.BatchSize = c.Int("batch-size")
	cfg.MaxRetries = c.Int("max-retries")
	cfg.ReportInterval = cfg.BatchSize

	summary, err := svc.Reindex(ctx, cfg, c.App.ErrWriter)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Reindexed %d documents (%d vectors), skipped %d\n",
		summary.Reindexed, summary.Vectors, summary.Skipped)
	return nil
}

func (a *app) configCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	redacted := *cfg
	for _, key := range []*string{&redacted.Provider.EmbeddingAPIKey, &redacted.Provider.AnalyzerAPIKey} {
		if *key != "" {
			*key = "********"
		}
	}
	return redacted.Write(a.out)
}
