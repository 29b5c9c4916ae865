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

// Package chunker turns raw document bytes into ordered, classified text chunks.
//
// Supported formats are plain text (including markdown) and Word .docx files.
// Extracted text is split into non-blank lines and each line is classified as
// a heading, list item or paragraph using line-shape heuristics. Tables in
// .docx files produce one chunk per non-empty cell.
//
// Classification is heuristic. It is deterministic, so the same bytes always
// produce the same chunks, but unusual layouts may be misclassified.
package chunker
