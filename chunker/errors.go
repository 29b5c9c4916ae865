package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat indicates the file extension has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrParse indicates the document could not be decoded.
	ErrParse = errors.New("failed to parse document")

	// ErrEmptyDocument indicates the document contains no text.
	ErrEmptyDocument = errors.New("document contains no text")
)

// UnsupportedFormatError names the rejected extension.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return "unsupported document format: file has no extension"
	}
	return fmt.Sprintf("unsupported document format %q", e.Extension)
}

func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// ParseError reports a document that could not be decoded.
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}
