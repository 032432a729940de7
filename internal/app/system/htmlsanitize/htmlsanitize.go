// Package htmlsanitize strips markup from user-supplied catalog text.
//
// Names and descriptions arrive as free chat text and are later echoed back
// in HTML parse mode, so they are stored as plain text and escaped on output.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// CleanText removes all tags (and the contents of script/style elements)
// and returns the remaining text unescaped and trimmed.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// CleanName is CleanText with internal whitespace runs collapsed to a
// single space, for category and tag names.
func CleanName(s string) string {
	return strings.Join(strings.Fields(CleanText(s)), " ")
}

// Escape prepares stored text for an HTML-formatted chat message.
func Escape(s string) string {
	return html.EscapeString(s)
}

// IsPlainText reports whether s contains no HTML tags.
func IsPlainText(s string) bool {
	return !strings.ContainsAny(s, "<>")
}
