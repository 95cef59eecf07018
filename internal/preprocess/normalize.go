// Package preprocess prepares raw post text for classification: placeholder
// normalization, language detection and optional translation.
package preprocess

import "strings"

const (
	// MentionPlaceholder replaces any @handle token.
	MentionPlaceholder = "@user"
	// LinkPlaceholder replaces any token that starts with http.
	LinkPlaceholder = "http"
)

// Normalize replaces mentions and links with fixed placeholders and collapses
// whitespace to single spaces. It is pure and total.
func Normalize(text string) string {
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "@") && len(tok) > 1:
			tokens[i] = MentionPlaceholder
		case strings.HasPrefix(tok, "http"):
			tokens[i] = LinkPlaceholder
		}
	}
	return strings.Join(tokens, " ")
}
