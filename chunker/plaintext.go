package chunker

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("text is not valid UTF-8")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractPlainText(data []byte) ([]line, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return splitLines(text), nil
}

func splitLines(text string) []line {
	var lines []line
	for raw := range strings.SplitSeq(text, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		lines = append(lines, line{text: raw})
	}
	return lines
}
