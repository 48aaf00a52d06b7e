package render

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitShortBody(t *testing.T) {
	t.Parallel()
	c, r := Split("caption", 1000)
	if c != "caption" || r != "" {
		t.Fatalf("Split = (%q, %q)", c, r)
	}
	c, r = Split("", 10)
	if c != "" || r != "" {
		t.Fatalf("Split empty = (%q, %q)", c, r)
	}
}

func TestSplitOnWhitespace(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("a", 90) + " " + strings.Repeat("b", 20)
	c, r := Split(body, 100)
	if c != strings.Repeat("a", 90)+Ellipsis {
		t.Fatalf("caption = %q", c)
	}
	if r != strings.Repeat("b", 20) {
		t.Fatalf("continuation = %q", r)
	}
	joined := strings.TrimRight(strings.TrimSuffix(c, Ellipsis), " \t\n") + " " + r
	if joined != body {
		t.Fatalf("round trip mismatch: %q", joined)
	}
}

func TestSplitHardCut(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("a", 150)
	c, r := Split(body, 100)
	if utf8.RuneCountInString(c) != 98 || !strings.HasSuffix(c, Ellipsis) {
		t.Fatalf("caption = %q (%d runes)", c, utf8.RuneCountInString(c))
	}
	if r != strings.Repeat("a", 50) {
		t.Fatalf("continuation = %q", r)
	}
}

func TestSplitEarlyWhitespaceIsIgnored(t *testing.T) {
	t.Parallel()
	body := "a " + strings.Repeat("x", 200)
	c, r := Split(body, 100)
	if utf8.RuneCountInString(c) != 98 {
		t.Fatalf("expected hard cut, caption has %d runes", utf8.RuneCountInString(c))
	}
	if utf8.RuneCountInString(r) != 102 {
		t.Fatalf("continuation has %d runes", utf8.RuneCountInString(r))
	}
}

func TestSplitCaptionBudgets(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("word ", 240) // 1200 runes
	for _, budget := range []int{1000, 500} {
		c, r := Split(body, budget)
		if n := utf8.RuneCountInString(c); n > budget {
			t.Fatalf("budget %d: caption has %d runes", budget, n)
		}
		if r == "" {
			t.Fatalf("budget %d: expected continuation", budget)
		}
		joined := strings.TrimRight(strings.TrimSuffix(c, Ellipsis), " ") + " " + r
		if joined != body {
			t.Fatalf("budget %d: round trip mismatch", budget)
		}
	}
}

func TestSplitNeverExceedsBudget(t *testing.T) {
	t.Parallel()
	bodies := []string{
		strings.Repeat("ж", 1500),
		strings.Repeat("lorem ipsum dolor ", 100),
		strings.Repeat("x", 999) + " tail",
		strings.Repeat("y", 1000) + " tail",
	}
	for _, b := range bodies {
		for _, budget := range []int{5, 50, 500, 1000} {
			c, _ := Split(b, budget)
			if n := utf8.RuneCountInString(c); n > budget {
				t.Fatalf("budget %d: caption has %d runes", budget, n)
			}
		}
	}
}
