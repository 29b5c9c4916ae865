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
	"fmt"
	"slices"
	"strings"
)

// MaxExtractFields bounds the caller-supplied extract field list.
const MaxExtractFields = 25

// ValidateDocumentType validates that a DocumentType has a known value.
func ValidateDocumentType(t DocumentType) error {
	if !slices.Contains(DocumentTypes, t) {
		return NewValidationError("documentType", fmt.Sprintf("unknown document type %q", t))
	}
	return nil
}

// ValidateDepth validates that an AnalysisDepth has a known value.
func ValidateDepth(d AnalysisDepth) error {
	switch d {
	case DepthBasic, DepthDetailed, DepthComprehensive:
		return nil
	}
	return NewValidationError("depth", fmt.Sprintf("unknown analysis depth %q", d))
}

// ValidateProcessingOptions validates caller options.
//
// Validation rules:
//   - Depth must be basic, detailed or comprehensive
//   - At most MaxExtractFields extract fields, none blank
func ValidateProcessingOptions(opts ProcessingOptions) error {
	if err := ValidateDepth(opts.Depth); err != nil {
		return err
	}
	if len(opts.ExtractFields) > MaxExtractFields {
		return NewValidationError("extractFields",
			fmt.Sprintf("at most %d fields may be extracted", MaxExtractFields))
	}
	for i, field := range opts.ExtractFields {
		if strings.TrimSpace(field) == "" {
			return NewValidationError("extractFields", fmt.Sprintf("field %d is blank", i))
		}
	}
	return nil
}

// ValidateTransition returns ErrInvalidTransition for an edge that is not allowed.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
