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


// Package search provides tenant-scoped semantic search over indexed document chunks.
//
// The Searcher embeds the query, runs a filtered cosine search against the
// vector index and re-ranks the candidates:
//   - Semantic similarity from the vector index is the base score
//   - Chunks containing every query term (stop words excluded) get a verbatim boost
//   - Headings matching the query get a smaller boost
//
// Searches always carry an organization id; the index filter never returns
// another organization's chunks.
package search
