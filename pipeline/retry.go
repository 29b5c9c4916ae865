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
	"context"
	"log/slog"
	"time"
)

// Settling a job in the queue is retried briefly before giving up to the
// lease expiry.
const (
	settleAttempts  = 3
	settleBaseDelay = 50 * time.Millisecond
)

// Backoff returns the delay before retry n (1-based): base * 2^(n-1),
// capped at maxDelay.
func Backoff(n int, base, maxDelay time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := base
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

// backoff applies the configured retry policy.
func (o *Orchestrator) backoff(n int) time.Duration {
	return Backoff(n, o.config.RetryBaseDelay, o.config.RetryMaxDelay)
}

// RetryWithBackoff retries an operation with exponential backoff.
// The operation runs at least once. Returns the error from the last attempt
// if all attempts fail.
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	maxAttempts = max(maxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", maxAttempts, "error", lastErr)

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(Backoff(attempt, baseDelay, baseDelay<<maxAttempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// ack removes a settled job from the queue.
func (o *Orchestrator) ack(ctx context.Context, jobID string) {
	err := RetryWithBackoff(ctx, func() error {
		return o.queue.Ack(ctx, jobID)
	}, settleAttempts, settleBaseDelay)
	if err != nil {
		o.logger.Warn("error acknowledging job, lease will expire", "job_id", jobID, "err", err)
	}
}

// release hands a leased job back to the queue, due at availableAt.
func (o *Orchestrator) release(ctx context.Context, jobID string, availableAt time.Time) {
	err := RetryWithBackoff(ctx, func() error {
		return o.queue.Release(ctx, jobID, availableAt)
	}, settleAttempts, settleBaseDelay)
	if err != nil {
		o.logger.Warn("error releasing job, lease will expire", "job_id", jobID, "err", err)
	}
}
