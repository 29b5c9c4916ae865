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


// Package storage provides the storage abstraction layer for docanalysis.
//
// This package defines the repository interfaces that decouple persistence
// from the pipeline:
//
//   - AnalysisRepository: tenant-scoped analysis records, audit trail and
//     external call log (storage/sqlite)
//   - VectorIndex: chunk embeddings with filtered cosine search (storage/badger)
//   - JobQueue: durable, lease-based work queue with delayed delivery (storage/badger)
//   - DocumentStore: submitted document bytes, kept until retention expires (storage/badger)
//
// Every AnalysisRepository method takes the organization id, and no method
// returns records across organizations. ListTenants is the one exception and
// returns identifiers only.
//
// # Usage
//
//	records, err := sqlite.Open(filepath.Join(dir, "analyses.db"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer records.Close()
//
//	backend, err := badger.OpenBackend(filepath.Join(dir, "kv"), false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	index := badger.NewVectorIndex(backend, 768)
//
// When no vector store is configured use DisabledVectorIndex; the pipeline
// then skips indexing instead of failing.
package storage
