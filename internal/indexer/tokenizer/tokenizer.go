// Package tokenizer extracts normalised word tokens from raw text. A token
// is a run of ASCII letters, optionally joined to a second run by a single
// hyphen or apostrophe-like glyph ("well-met", "o'er", "ne’er"), folded to
// lower case. Everything else is discarded.
package tokenizer

import (
	"iter"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile("[A-Za-z]+(?:[-'`’][A-Za-z]+)?")

// Tokens returns a lazy sequence over the tokens of line. The sequence can
// be ranged over any number of times.
func Tokens(line string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := line
		for {
			loc := wordPattern.FindStringIndex(rest)
			if loc == nil {
				return
			}
			if !yield(strings.ToLower(rest[loc[0]:loc[1]])) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}

// Tokenize returns every token of text in order.
func Tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/6)
	for tok := range Tokens(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}
