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

import "errors"

var (
	// ErrRecordStoreRequired is returned when an analysis repository is not provided.
	ErrRecordStoreRequired = errors.New("analysis repository required")

	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrQueueRequired is returned when a job queue is not provided.
	ErrQueueRequired = errors.New("job queue required")

	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrDuplicateDocument is returned when an identical document is already
	// pending or processing for the organization.
	ErrDuplicateDocument = errors.New("document is already being analyzed")

	// ErrNotCompleted is returned when a result is requested before the job completed.
	ErrNotCompleted = errors.New("analysis not completed")

	// ErrNotCancellable is returned when cancelling a job that is not pending or processing.
	ErrNotCancellable = errors.New("analysis cannot be cancelled")

	// ErrNotRetryable is returned when retrying a job that is not FAILED.
	ErrNotRetryable = errors.New("analysis cannot be retried")

	// ErrInvalidConfig is returned for out-of-range orchestrator settings.
	ErrInvalidConfig = errors.New("invalid pipeline config")
)
