package search

import "strings"

// Stop words to filter out when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "at": true, "this": true, "but": true, "by": true, "from": true,
	"or": true, "will": true, "shall": true, "must": true, "we": true, "our": true,
}

// terms splits text into lowercased words with punctuation trimmed and stop words removed.
func terms(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}*#`"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// termSet indexes the terms of text.
func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, term := range terms(text) {
		set[term] = true
	}
	return set
}

// containsAll reports whether every query term appears in set.
// An empty query matches nothing.
func containsAll(set map[string]bool, queryTerms []string) bool {
	if len(queryTerms) == 0 {
		return false
	}
	for _, term := range queryTerms {
		if !set[term] {
			return false
		}
	}
	return true
}

// containsAny reports whether some query term appears in set.
func containsAny(set map[string]bool, queryTerms []string) bool {
	for _, term := range queryTerms {
		if set[term] {
			return true
		}
	}
	return false
}
