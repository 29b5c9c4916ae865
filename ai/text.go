package ai

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// charsPerToken is the rough character-to-token ratio used for budgeting.
const charsPerToken = 4

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// CharsForTokens converts a token budget into a character budget.
func CharsForTokens(tokens int) int {
	return tokens * charsPerToken
}

// ValidateTextForEmbedding rejects text that should not be sent to an
// embedding provider: empty or whitespace-only strings and strings longer
// than maxChars runes.
func ValidateTextForEmbedding(text string, maxChars int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if n := utf8.RuneCountInString(text); maxChars > 0 && n > maxChars {
		return fmt.Errorf("%w: %d runes, limit is %d", ErrTextTooLong, n, maxChars)
	}
	return nil
}

// TruncateForEmbedding shortens text to at most maxChars runes. It cuts at
// the last sentence end in the back half of the budget if there is one, then
// at the last word break, and only then mid-word.
func TruncateForEmbedding(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	runes := []rune(text)
	half := maxChars / 2

	for i := maxChars - 1; i >= half; i-- {
		if isSentenceEnd(runes[i]) && unicode.IsSpace(runes[i+1]) {
			return string(runes[:i+1])
		}
	}

	for i := maxChars; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimRightFunc(string(runes[:i]), unicode.IsSpace)
		}
	}

	return string(runes[:maxChars])
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
