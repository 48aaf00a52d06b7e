// Package render turns authored post text into platform-safe bodies.
//
// Everything here is pure and deterministic.
package render

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"schedbot/internal/transport"
)

// ErrInvalidText is returned for bodies that are not valid UTF-8.
var ErrInvalidText = errors.New("render: text is not valid UTF-8")

var tagSpan = regexp.MustCompile(`<[^>]+>`)

// MarkdownReserved is the MarkdownV2 reserved set escaped by Render.
const MarkdownReserved = "_*[]()~`>#+-=|{}.!"

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

var markdownEscaper = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(MarkdownReserved))
	for _, r := range MarkdownReserved {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}()

// Render produces the body for markup m:
//   - none: tag spans removed, rest verbatim
//   - html: verbatim when the author wrote tags, otherwise & < > escaped
//   - markdown: tag spans removed, then every reserved character backslash-escaped
func Render(text string, m transport.Markup) (string, error) {
	if !utf8.ValidString(text) {
		return "", ErrInvalidText
	}
	switch m {
	case transport.MarkupHTML:
		if HasTags(text) {
			return text, nil
		}
		return htmlEscaper.Replace(text), nil
	case transport.MarkupMarkdown:
		return markdownEscaper.Replace(StripTags(text)), nil
	default:
		return StripTags(text), nil
	}
}

// Fallback is the markup-free body sent when Render fails.
func Fallback(text string) string {
	return StripTags(strings.ToValidUTF8(text, ""))
}

func HasTags(s string) bool { return tagSpan.MatchString(s) }

func StripTags(s string) string { return tagSpan.ReplaceAllString(s, "") }
