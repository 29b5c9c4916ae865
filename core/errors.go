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


package core

import (
	"errors"
	"fmt"
)

// Error taxonomy
var (
	// ErrValidation indicates bad caller input. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrStage indicates a pipeline stage failed.
	ErrStage = errors.New("stage error")

	// ErrProviderDegraded indicates an external provider is unconfigured or down.
	ErrProviderDegraded = errors.New("provider degraded")

	// ErrTenantLimit indicates an organization hit its concurrency or cost ceiling.
	ErrTenantLimit = errors.New("tenant limit exceeded")
)

// Analysis validation errors
var (
	// ErrInvalidAnalysis indicates a structured analysis failed schema validation.
	ErrInvalidAnalysis = errors.New("invalid analysis")

	// ErrMissingField indicates a required analysis field is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrConfidenceRange indicates a confidence value outside [0,1].
	ErrConfidenceRange = errors.New("confidence must be between 0 and 1")

	// ErrInvalidRating indicates a risk rating that is not low, medium or high.
	ErrInvalidRating = errors.New("invalid risk rating")

	// ErrInvalidTransition indicates a status change outside the allowed edges.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError describes bad input on a single field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// Unwrap exposes both ErrValidation and the underlying cause.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StageError is a failure of one pipeline stage.
type StageError struct {
	Stage     Stage
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap exposes both ErrStage and the underlying cause.
func (e *StageError) Unwrap() []error {
	return []error{ErrStage, e.Err}
}

// Kind classifies the stage failure for error details.
func (e *StageError) Kind() ErrorKind {
	if errors.Is(e.Err, ErrProviderDegraded) {
		return ErrorKindProviderDegraded
	}
	return ErrorKindStage
}

// TenantLimit names the gate that rejected a submission.
type TenantLimit string

const (
	LimitConcurrency TenantLimit = "concurrency"
	LimitDailyCost   TenantLimit = "daily_cost"
)

// TenantLimitError rejects a submission that would exceed an organization limit.
type TenantLimitError struct {
	OrganizationID string
	Limit          TenantLimit
	Current        float64
	Max            float64
}

func (e *TenantLimitError) Error() string {
	switch e.Limit {
	case LimitConcurrency:
		return fmt.Sprintf("organization %s has %d jobs processing, limit is %d",
			e.OrganizationID, int(e.Current), int(e.Max))
	default:
		return fmt.Sprintf("organization %s accrued %.4f today, daily budget is %.4f",
			e.OrganizationID, e.Current, e.Max)
	}
}

func (e *TenantLimitError) Unwrap() error {
	return ErrTenantLimit
}
