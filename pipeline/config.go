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


package pipeline

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds orchestrator settings. The zero value of a field is replaced
// by its default in DefaultConfig; Validate rejects negative values.
type Config struct {
	// Workers is the size of the worker pool.
	// Default: runtime.NumCPU() / 2, with a minimum of 1
	Workers int

	// MaxRetries is the retry budget recorded on each new analysis.
	// Default: 3
	MaxRetries int

	// RetryBaseDelay is the delay before the first retry. Each further
	// retry doubles it.
	// Default: 2s
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the backoff.
	// Default: 5m
	RetryMaxDelay time.Duration

	// CallTimeout bounds every external call: an embedding batch, an index
	// write or an analysis request.
	// Default: 2m
	CallTimeout time.Duration

	// LeaseDuration is how long a worker holds a job before it is redelivered.
	// Default: 15m
	LeaseDuration time.Duration

	// PollInterval is the dispatcher's wait when the queue has nothing due.
	// Default: 500ms
	PollInterval time.Duration

	// SchedulerInterval is the period of the recovery sweep that re-enqueues
	// due retries and pending jobs missing from the queue.
	// Default: 30s
	SchedulerInterval time.Duration

	// CleanupInterval is the period of the retention sweep.
	// Default: 1h
	CleanupInterval time.Duration

	// Retention is how long terminal records are kept. Zero disables cleanup.
	// Default: 30 days
	Retention time.Duration

	// MaxConcurrentJobs is the per-organization ceiling on PROCESSING jobs.
	// Zero disables the gate.
	// Default: 5
	MaxConcurrentJobs int

	// DailyCostLimit is the per-organization budget for one UTC day.
	// Zero disables the gate.
	// Default: 25.0
	DailyCostLimit float64

	// EmbeddingCostPer1K is the price of 1000 embedded tokens.
	// Default: 0.0001
	EmbeddingCostPer1K float64

	// LLMCostPer1K is the price of 1000 analysis tokens, prompt and completion.
	// Default: 0.002
	LLMCostPer1K float64

	// MaxDocumentSize is the largest accepted document in bytes.
	// Default: 10 MiB
	MaxDocumentSize int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Workers:            max(runtime.NumCPU()/2, 1),
		MaxRetries:         3,
		RetryBaseDelay:     2 * time.Second,
		RetryMaxDelay:      5 * time.Minute,
		CallTimeout:        2 * time.Minute,
		LeaseDuration:      15 * time.Minute,
		PollInterval:       500 * time.Millisecond,
		SchedulerInterval:  30 * time.Second,
		CleanupInterval:    time.Hour,
		Retention:          30 * 24 * time.Hour,
		MaxConcurrentJobs:  5,
		DailyCostLimit:     25.0,
		EmbeddingCostPer1K: 0.0001,
		LLMCostPer1K:       0.002,
		MaxDocumentSize:    10 << 20,
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	case c.RetryBaseDelay <= 0:
		return fmt.Errorf("%w: retry base delay must be positive", ErrInvalidConfig)
	case c.RetryMaxDelay < c.RetryBaseDelay:
		return fmt.Errorf("%w: retry max delay %s is below base delay %s",
			ErrInvalidConfig, c.RetryMaxDelay, c.RetryBaseDelay)
	case c.CallTimeout <= 0:
		return fmt.Errorf("%w: call timeout must be positive", ErrInvalidConfig)
	case c.LeaseDuration <= 0:
		return fmt.Errorf("%w: lease duration must be positive", ErrInvalidConfig)
	case c.PollInterval <= 0 || c.SchedulerInterval <= 0 || c.CleanupInterval <= 0:
		return fmt.Errorf("%w: loop intervals must be positive", ErrInvalidConfig)
	case c.Retention < 0:
		return fmt.Errorf("%w: retention cannot be negative", ErrInvalidConfig)
	case c.MaxConcurrentJobs < 0 || c.DailyCostLimit < 0:
		return fmt.Errorf("%w: tenant limits cannot be negative", ErrInvalidConfig)
	case c.EmbeddingCostPer1K < 0 || c.LLMCostPer1K < 0:
		return fmt.Errorf("%w: prices cannot be negative", ErrInvalidConfig)
	case c.MaxDocumentSize <= 0:
		return fmt.Errorf("%w: max document size must be positive", ErrInvalidConfig)
	}
	return nil
}
