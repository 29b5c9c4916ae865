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


// Package pipeline runs document analysis jobs.
//
// The Orchestrator admits submissions against per-organization limits,
// persists an analysis record, stores the document bytes and enqueues a job
// on a durable queue. Workers from a bounded pool lease jobs and drive each
// record through four stages:
//   - parse: document bytes into typed chunks
//   - embed: chunk text into vectors, in rate-limited batches
//   - index: vectors into the vector index, skipped when no index is configured
//   - analyze: document text into a structured project analysis
//
// A failed stage moves the record to FAILED and, while retry budget remains,
// schedules a delayed redelivery with exponential backoff. Cancellation is
// cooperative and observed at stage boundaries.
//
// Example usage:
//
//	orch, err := pipeline.NewOrchestrator(records, vectors, queue, documents, provider,
//	    pipeline.WithWorkers(4))
//	if err != nil {
//	    return err
//	}
//	defer orch.Release()
//
//	resp, err := orch.Submit(ctx, pipeline.SubmitRequest{...})
//	go orch.Run(ctx)
//	status, err := orch.Status(ctx, orgID, resp.JobID)
package pipeline
