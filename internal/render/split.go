package render

import (
	"strings"
	"unicode"
)

// Ellipsis terminates a caption that was cut short.
const Ellipsis = "…"

// Split fits body into a caption of at most budget characters and a continuation.
//
// It cuts at the last whitespace before budget when that whitespace lies past
// 80% of the budget; otherwise it hard-cuts at budget-3. Lengths are in runes.
func Split(body string, budget int) (caption, continuation string) {
	rs := []rune(body)
	if len(rs) <= budget {
		return body, ""
	}
	if budget <= 0 {
		return "", body
	}

	cut := -1
	for i := budget - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			cut = i
			break
		}
	}
	if float64(cut) > 0.8*float64(budget) {
		return string(rs[:cut]) + Ellipsis, strings.TrimLeftFunc(string(rs[cut:]), unicode.IsSpace)
	}

	hard := budget - 3
	if hard < 0 {
		hard = 0
	}
	return string(rs[:hard]) + Ellipsis, string(rs[budget:])
}
