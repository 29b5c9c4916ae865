package chunker

import (
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/docanalysis/core"
)

// extractor pulls classified-ready lines out of raw bytes.
type extractor func(data []byte) ([]line, error)

// line is one non-blank unit of extracted text plus any structural hint the
// format provides.
type line struct {
	text         string
	headingLevel int  // explicit heading level from document styles
	tableCell    bool // text came from a table cell
}

var extractors = map[string]extractor{
	".txt":      extractPlainText,
	".text":     extractPlainText,
	".md":       extractPlainText,
	".markdown": extractPlainText,
	".csv":      extractPlainText,
	".log":      extractPlainText,
	".docx":     extractDocx,
}

// Chunker parses documents into chunks.
type Chunker struct {
	shortLine int
	logger    *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithShortLineThreshold sets the rune length below which a line may be a heading.
func WithShortLineThreshold(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.shortLine = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) {
		c.logger = logger
	}
}

// New creates a Chunker.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		shortLine: DefaultShortLineThreshold,
		logger:    slog.Default().With("component", "chunker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Supported reports whether filename has a parseable extension.
func Supported(filename string) bool {
	_, ok := extractors[extension(filename)]
	return ok
}

// Extensions returns the accepted file extensions in sorted order.
func Extensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Parse extracts and classifies the chunks of a document. Chunk IDs and
// SourceDocumentID are derived from documentID.
func (c *Chunker) Parse(data []byte, filename, documentID string) ([]core.Chunk, error) {
	ext := extension(filename)
	extract, ok := extractors[ext]
	if !ok {
		return nil, &UnsupportedFormatError{Extension: ext}
	}

	lines, err := extract(data)
	if err != nil {
		return nil, &ParseError{Filename: filename, Err: err}
	}
	if len(lines) == 0 {
		return nil, &ParseError{Filename: filename, Err: ErrEmptyDocument}
	}

	chunks := c.classify(lines, documentID)
	c.logger.Debug("parsed document", "filename", filename, "lines", len(lines), "chunks", len(chunks))
	return chunks, nil
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
