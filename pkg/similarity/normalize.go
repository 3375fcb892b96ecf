// Package similarity provides text similarity scoring and greedy card clustering.
package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLength is the shortest token kept by Normalize, in runes.
const MinTokenLength = 3

// DefaultStopWordList is the English stop-word list used when no exclusions are configured.
var DefaultStopWordList = []string{
	"the", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by",
}

// StopWords is a lower-cased set of tokens ignored during keyword extraction.
type StopWords map[string]bool

// NewStopWords builds a StopWords set, lower-casing every word.
func NewStopWords(words ...string) StopWords {
	set := make(StopWords, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// DefaultStopWords returns a fresh set built from DefaultStopWordList.
func DefaultStopWords() StopWords {
	return NewStopWords(DefaultStopWordList...)
}

// Normalize tokenizes free text into comparable keywords.
//
// Text is lower-cased, every rune that is not a letter, digit or whitespace is removed,
// and the remainder is split on whitespace. Tokens shorter than MinTokenLength, stop
// words and purely numeric tokens are dropped. Order and duplicates are preserved.
func Normalize(text string, stop StopWords) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(text))

	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) < MinTokenLength {
			continue
		}
		if stop[tok] {
			continue
		}
		if isNumeric(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// KeywordSet returns the deduplicated keywords of text.
func KeywordSet(text string, stop StopWords) map[string]bool {
	tokens := Normalize(text, stop)
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func isNumeric(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return tok != ""
}
