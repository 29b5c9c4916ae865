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


// Package ai provides abstractions for the AI services used by the analysis pipeline.
//
// The package defines three interfaces:
//
//   - Embedder: generates vector embeddings from text
//   - Analyzer: produces a structured project analysis from document text
//   - AIProvider: aggregates the services for initialization and shutdown
//
// Around them it provides the provider-independent pieces of the pipeline:
// BatchEmbedder splits embedding work into provider-sized batches and paces
// successive calls, ValidateTextForEmbedding and TruncateForEmbedding guard
// embedding input, and AnalysisResult is the tagged result of an analysis
// call (ok, schema error, provider unavailable or provider error).
//
// # Implementation Packages
//
//   - ai/openai: implementation using OpenAI-compatible APIs via langchaingo
//   - ai/mock: test doubles for unit testing without external dependencies
//
// # Degraded Providers
//
// A missing host, model or analyzer key is not a construction error. The
// affected service reports ErrProviderUnavailable (embedding) or a
// ResultProviderUnavailable result (analysis) so callers can decide whether
// to continue with reduced functionality.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithAnalyzerAPIKey(key))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	batcher, err := ai.NewBatchEmbedderFromConfig(provider.Embedder(), cfg)
//	vectors, err := batcher.Embed(ctx, texts)
//	result := provider.Analyzer().Analyze(ctx, text, ai.AnalyzeOptions{Depth: core.DepthDetailed})
package ai
