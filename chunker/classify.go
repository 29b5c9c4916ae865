package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/docanalysis/core"
)

const (
	// DefaultShortLineThreshold is the rune length below which a line may be a heading.
	DefaultShortLineThreshold = 80

	level1MaxRunes = 30
	level2MaxRunes = 55
)

var (
	bulletPattern   = regexp.MustCompile(`^\s*[-*+•◦▪‣]\s+(\S.*)$`)
	numberedPattern = regexp.MustCompile(`^\s*\d+(?:\.\d+)*[.)]\s+(\S.*)$`)
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(\S.*)$`)
)

// connectors may stay lowercase inside a capitalized phrase.
var connectors = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "by": true,
	"for": true, "in": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "vs": true, "with": true,
}

func (c *Chunker) classify(lines []line, documentID string) []core.Chunk {
	chunks := make([]core.Chunk, 0, len(lines))
	heading := ""

	for i, ln := range lines {
		chunk := core.Chunk{
			SourceDocumentID: documentID,
			PrecedingHeading: heading,
			Position:         len(chunks),
		}
		chunk.ID = core.ChunkID(documentID, chunk.Position)

		text := strings.TrimSpace(ln.text)
		next := ""
		if i+1 < len(lines) {
			next = strings.TrimSpace(lines[i+1].text)
		}

		switch {
		case ln.tableCell:
			chunk.Kind = core.ChunkKindTableCell
			chunk.Content = text
		case ln.headingLevel > 0:
			chunk.Kind = core.ChunkKindHeading
			chunk.HeadingLevel = min(ln.headingLevel, 3)
			chunk.Content = text
		default:
			c.classifyLine(&chunk, text, next)
		}

		if chunk.Kind == core.ChunkKindHeading {
			heading = strings.TrimSuffix(chunk.Content, ":")
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (c *Chunker) classifyLine(chunk *core.Chunk, text, next string) {
	if m := markdownHeading.FindStringSubmatch(text); m != nil {
		chunk.Kind = core.ChunkKindHeading
		chunk.HeadingLevel = min(len(m[1]), 3)
		chunk.Content = m[2]
		return
	}
	if m := bulletPattern.FindStringSubmatch(text); m != nil {
		chunk.Kind = core.ChunkKindListItem
		chunk.ListStyle = core.ListStyleBullet
		chunk.Content = m[1]
		return
	}
	if m := numberedPattern.FindStringSubmatch(text); m != nil {
		chunk.Kind = core.ChunkKindListItem
		chunk.ListStyle = core.ListStyleNumbered
		chunk.Content = m[1]
		return
	}

	chunk.Content = text
	if c.isHeading(text, next) {
		chunk.Kind = core.ChunkKindHeading
		chunk.HeadingLevel = headingLevel(text)
		return
	}
	chunk.Kind = core.ChunkKindParagraph
}

// isHeading applies the short-line heuristic: a short line is a heading when it
// ends with a colon, reads as a capitalized phrase, or introduces a line at
// least twice its length.
func (c *Chunker) isHeading(text, next string) bool {
	n := utf8.RuneCountInString(text)
	if n >= c.shortLine || !hasLetter(text) {
		return false
	}
	if strings.HasSuffix(text, ":") {
		return true
	}
	if endsSentence(text) {
		return false
	}
	if isCapitalizedPhrase(text) {
		return true
	}
	return next != "" && utf8.RuneCountInString(next) >= 2*n
}

func headingLevel(text string) int {
	switch n := utf8.RuneCountInString(text); {
	case n < level1MaxRunes:
		return 1
	case n < level2MaxRunes:
		return 2
	default:
		return 3
	}
}

func isCapitalizedPhrase(text string) bool {
	words := strings.Fields(strings.TrimSuffix(text, ":"))
	if len(words) == 0 {
		return false
	}
	for i, word := range words {
		r, _ := utf8.DecodeRuneInString(word)
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			continue
		}
		if i > 0 && connectors[strings.ToLower(word)] {
			continue
		}
		return false
	}
	return true
}

func endsSentence(text string) bool {
	r, _ := utf8.DecodeLastRuneInString(text)
	return r == '.' || r == '!' || r == '?' || r == ';' || r == ','
}

func hasLetter(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
