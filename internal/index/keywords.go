// Package index implements the keyword tokenizer shared by the context and
// memory stores: lowercase word tokenization, stop-word stripping, and
// capitalized-token entity extraction.
package index

import (
	"strings"
	"unicode"
)

// =============================================================================
// TOKENIZATION
// =============================================================================

// Tokenize splits text into lowercase word tokens. Tokens are maximal runs
// of letters, digits, underscores and hyphens; everything else is a
// delimiter.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

// Keywords returns the search-relevant tokens of text: stop-words removed,
// tokens shorter than 3 runes dropped, duplicates removed, insertion order
// preserved.
func Keywords(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 3 || IsStopWord(tok) || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// KeywordSet returns Keywords as a membership set.
func KeywordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, kw := range Keywords(text) {
		set[kw] = true
	}
	return set
}

// =============================================================================
// ENTITY EXTRACTION
// =============================================================================

// Entities extracts candidate proper-noun entities: tokens that appear
// capitalized in the original text, are not stop-words, and are at least 3
// runes long. At most max entities are returned (0 means no cap), ordered by
// first appearance.
func Entities(text string, max int) []string {
	if text == "" {
		return nil
	}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})

	seen := make(map[string]bool)
	var entities []string
	for _, f := range fields {
		runes := []rune(f)
		if len(runes) < 3 || !unicode.IsUpper(runes[0]) {
			continue
		}
		if IsStopWord(strings.ToLower(f)) {
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		entities = append(entities, f)
		if max > 0 && len(entities) >= max {
			break
		}
	}
	return entities
}

// =============================================================================
// STOP WORDS
// =============================================================================

// IsStopWord reports whether the (lowercase) word is too common to carry
// search signal.
func IsStopWord(word string) bool {
	if len(word) <= 2 {
		return true
	}
	return stopWords[word]
}

var stopWords = map[string]bool{
	"the": true, "and": true, "but": true, "nor": true, "yet": true,
	"was": true, "were": true, "been": true, "being": true, "are": true,
	"have": true, "has": true, "had": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true, "can": true,
	"for": true, "with": true, "from": true, "into": true, "through": true,
	"during": true, "before": true, "after": true, "above": true,
	"below": true, "out": true, "off": true, "over": true, "under": true,
	"then": true, "else": true, "when": true, "where": true, "why": true,
	"how": true, "all": true, "each": true, "every": true, "both": true,
	"few": true, "more": true, "most": true, "other": true, "some": true,
	"such": true, "not": true, "only": true, "own": true, "same": true,
	"than": true, "too": true, "very": true, "just": true, "now": true,
	"this": true, "that": true, "these": true, "those": true, "its": true,
	"you": true, "your": true, "our": true, "their": true, "them": true,
	"they": true, "what": true, "which": true, "who": true, "whom": true,
	"about": true, "against": true, "between": true, "because": true,
	"there": true, "here": true, "any": true, "also": true,
	"get": true, "got": true, "let": true, "say": true, "said": true,
	"per": true, "via": true,
}
