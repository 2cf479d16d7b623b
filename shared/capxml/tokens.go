package capxml

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// QuotedTokens splits a CAP list field such as addresses or references.
// A token is either a double-quoted run, returned without its quotes, or a
// maximal run of characters that are neither whitespace nor a quote.
func QuotedTokens(text string) ([]string, error) {
	var tokens []string
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '"':
			end := strings.IndexByte(text[i+1:], '"')
			if end < 0 {
				return nil, &TokenizeError{Text: text, Offset: i}
			}
			tokens = append(tokens, text[i+1:i+1+end])
			i += end + 2
		default:
			j := i
			for j < len(text) {
				r, size := utf8.DecodeRuneInString(text[j:])
				if r == '"' || unicode.IsSpace(r) {
					break
				}
				j += size
			}
			tokens = append(tokens, text[i:j])
			i = j
		}
	}
	return tokens, nil
}

func SpaceTokens(text string) []string {
	return strings.Fields(text)
}
