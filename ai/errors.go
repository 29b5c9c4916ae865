package ai

import (
	"errors"
	"fmt"

	"github.com/poiesic/docanalysis/core"
)

var (
	// ErrProviderUnavailable indicates a provider is unconfigured or marked invalid.
	ErrProviderUnavailable = fmt.Errorf("%w: provider unavailable", core.ErrProviderDegraded)

	// ErrInvalidConfig indicates an inconsistent Config.
	ErrInvalidConfig = errors.New("ai config")

	// ErrEmptyText indicates a blank string was submitted for embedding.
	ErrEmptyText = errors.New("text is empty")

	// ErrTextTooLong indicates a string exceeds the embedding length limit.
	ErrTextTooLong = errors.New("text exceeds embedding limit")

	// ErrEmbeddingMismatch indicates the provider returned the wrong number or
	// shape of vectors.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")

	// ErrInvalidBatchSize indicates a batch size outside the provider limit.
	ErrInvalidBatchSize = errors.New("invalid batch size")
)
