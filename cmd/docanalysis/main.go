// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/docanalysis"
	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/config"
	"github.com/poiesic/docanalysis/reindex"
	"github.com/urfave/cli/v2"
)

// app carries what commands share: the output stream and, in tests, a
// provider replacing the configured one.
type app struct {
	out      io.Writer
	provider ai.AIProvider
}

func main() {
	a := &app{out: os.Stdout}
	if err := a.cli().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func (a *app) cli() *cli.App {
	orgFlag := func() *cli.StringFlag {
		return &cli.StringFlag{
			Name:     "org",
			Aliases:  []string{"o"},
			Usage:    "Organization the command acts for",
			EnvVars:  []string{"DOCANALYSIS_ORG"},
			Required: true,
		}
	}

	return &cli.App{
		Name:      "docanalysis",
		Usage:     "Analyze project documents into structured, searchable records",
		Writer:    a.out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the TOML configuration file",
				Value:   "docanalysis.toml",
				EnvVars: []string{"DOCANALYSIS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Data directory, overrides the configuration file",
				EnvVars: []string{"DOCANALYSIS_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "embedding-api-key",
				Usage:   "API key for the embedding service",
				EnvVars: []string{"DOCANALYSIS_EMBEDDING_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "analyzer-api-key",
				Usage:   "API key for the analysis service",
				EnvVars: []string{"DOCANALYSIS_ANALYZER_API_KEY", "OPENAI_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Submit a document and process it to completion",
				ArgsUsage: "FILE",
				Action:    a.runCommand,
				Flags: []cli.Flag{
					orgFlag(),
					&cli.StringFlag{
						Name:    "user",
						Aliases: []string{"u"},
						Usage:   "User submitting the document",
						EnvVars: []string{"DOCANALYSIS_USER", "USER"},
						Value:   "cli",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Document type (PROJECT_PROPOSAL, REQUIREMENTS, STATEMENT_OF_WORK, CONTRACT, BUSINESS_PLAN, REPORT, OTHER)",
					},
					&cli.StringFlag{
						Name:  "depth",
						Usage: "Analysis depth (basic, detailed, comprehensive)",
					},
					&cli.StringSliceFlag{
						Name:  "field",
						Usage: "Extra field to extract, may be repeated",
					},
					&cli.BoolFlag{
						Name:  "skip-indexing",
						Usage: "Do not write the document's vectors to the index",
					},
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Submit and return without processing",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Run the workers, scheduler and cleanup until interrupted",
				Action: a.serveCommand,
			},
			{
				Name:      "status",
				Usage:     "Show the status of a job",
				ArgsUsage: "JOB_ID",
				Action:    a.statusCommand,
				Flags:     []cli.Flag{orgFlag()},
			},
			{
				Name:      "result",
				Usage:     "Print the analysis of a completed job as JSON",
				ArgsUsage: "JOB_ID",
				Action:    a.resultCommand,
				Flags:     []cli.Flag{orgFlag()},
			},
			{
				Name:   "list",
				Usage:  "List analyses",
				Action: a.listCommand,
				Flags: []cli.Flag{
					orgFlag(),
					&cli.StringFlag{Name: "status", Usage: "Only analyses in this status"},
					&cli.StringFlag{Name: "type", Usage: "Only analyses of this document type"},
					&cli.StringFlag{Name: "confidence", Usage: "Only analyses at this confidence level"},
					&cli.BoolFlag{Name: "errors", Usage: "Only analyses carrying errors"},
					&cli.IntFlag{Name: "page", Usage: "Page number", Value: 1},
					&cli.IntFlag{Name: "page-size", Usage: "Analyses per page", Value: 20},
					&cli.StringFlag{Name: "sort", Usage: "Sort field (createdAt, updatedAt, confidenceScore, cost, documentName, documentSize, status)", Value: "createdAt"},
					&cli.StringFlag{Name: "order", Usage: "Sort order (asc, desc)", Value: "desc"},
				},
			},
			{
				Name:   "stats",
				Usage:  "Summarize an organization's analyses",
				Action: a.statsCommand,
				Flags:  []cli.Flag{orgFlag()},
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a pending or processing job",
				ArgsUsage: "JOB_ID",
				Action:    a.cancelCommand,
				Flags:     []cli.Flag{orgFlag()},
			},
			{
				Name:      "retry",
				Usage:     "Retry a failed job now",
				ArgsUsage: "JOB_ID",
				Action:    a.retryCommand,
				Flags:     []cli.Flag{orgFlag()},
			},
			{
				Name:      "similar",
				Usage:     "List completed analyses similar to a job",
				ArgsUsage: "JOB_ID",
				Action:    a.similarCommand,
				Flags: []cli.Flag{
					orgFlag(),
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of analyses", Value: 5},
				},
			},
			{
				Name:      "search",
				Usage:     "Search document chunks",
				ArgsUsage: "QUERY...",
				Action:    a.searchCommand,
				Flags: []cli.Flag{
					orgFlag(),
					&cli.IntFlag{Name: "top-k", Usage: "Maximum number of results, defaults to the configuration"},
					&cli.Float64Flag{Name: "min-similarity", Usage: "Similarity floor, defaults to the configuration"},
					&cli.StringFlag{Name: "document", Usage: "Only chunks of this job's document"},
					&cli.BoolFlag{Name: "explain", Usage: "Print each search phase"},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Purge terminal analyses past the retention period",
				Action: a.cleanupCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed stored documents and replace their vectors",
				Action: a.reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "org", Aliases: []string{"o"}, Usage: "Only this organization, defaults to all"},
					&cli.IntFlag{Name: "batch-size", Usage: "Analyses embedded per call", Value: reindex.DefaultConfig().BatchSize},
					&cli.IntFlag{Name: "max-retries", Usage: "Attempts per embedding call", Value: reindex.DefaultConfig().MaxRetries},
				},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: a.configCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads the configuration file and applies the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if key := c.String("embedding-api-key"); key != "" {
		cfg.Provider.EmbeddingAPIKey = key
	}
	if key := c.String("analyzer-api-key"); key != "" {
		cfg.Provider.AnalyzerAPIKey = key
	}
	return cfg, nil
}

func (a *app) openService(c *cli.Context) (*docanalysis.Service, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	var opts []docanalysis.ServiceOption
	if a.provider != nil {
		opts = append(opts, docanalysis.WithProvider(a.provider))
	}
	svc, err := docanalysis.Open(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory %s: %w", cfg.DataDir, err)
	}
	return svc, nil
}
