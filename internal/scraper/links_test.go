package scraper

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFilterLinksResolvesRelative(t *testing.T) {
	raw := []rawLink{
		{Href: "/about", Text: "About"},
		{Href: "docs/intro.html", Text: "Intro"},
		{Href: "https://other.example/page", Text: "Other"},
	}
	links := FilterLinks("https://example.com/blog/", raw, 10)

	if len(links) != 3 {
		t.Fatalf("links = %d, want 3", len(links))
	}
	if links[0].URL != "https://example.com/about" {
		t.Errorf("links[0] = %q", links[0].URL)
	}
	if links[1].URL != "https://example.com/blog/docs/intro.html" {
		t.Errorf("links[1] = %q", links[1].URL)
	}
	if links[2].URL != "https://other.example/page" {
		t.Errorf("links[2] = %q", links[2].URL)
	}
}

func TestFilterLinksDropsNonNavigable(t *testing.T) {
	raw := []rawLink{
		{Href: "#section"},
		{Href: "javascript:void(0)"},
		{Href: "JavaScript:alert(1)"},
		{Href: "mailto:x@example.com"},
		{Href: "tel:+123"},
		{Href: "data:text/html,hi"},
		{Href: ""},
		{Href: "/real", Text: "Real"},
	}
	links := FilterLinks("https://example.com/", raw, 10)

	if len(links) != 1 {
		t.Fatalf("links = %v, want only /real", links)
	}
	if links[0].URL != "https://example.com/real" {
		t.Errorf("links[0] = %q", links[0].URL)
	}
}

func TestFilterLinksDedupes(t *testing.T) {
	raw := []rawLink{
		{Href: "/a", Text: "first"},
		{Href: "https://example.com/a", Text: "same resolved"},
		{Href: "/a#frag", Text: "fragment stripped"},
		{Href: "/b"},
	}
	links := FilterLinks("https://example.com/", raw, 10)

	if len(links) != 2 {
		t.Fatalf("links = %v, want 2", links)
	}
	if links[0].Text != "first" {
		t.Errorf("first occurrence should win, got %q", links[0].Text)
	}
}

func TestFilterLinksCap(t *testing.T) {
	var raw []rawLink
	for i := 0; i < 50; i++ {
		raw = append(raw, rawLink{Href: "/p" + string(rune('a'+i%26)) + string(rune('a'+i/26))})
	}
	links := FilterLinks("https://example.com/", raw, 5)
	if len(links) != 5 {
		t.Errorf("links = %d, want capped at 5", len(links))
	}

	// Default cap applies when max is zero.
	links = FilterLinks("https://example.com/", raw, 0)
	if len(links) != defaultMaxLinks {
		t.Errorf("links = %d, want default cap %d", len(links), defaultMaxLinks)
	}
}

func TestCollapseText(t *testing.T) {
	if got := collapseText("  hello\n\t world  ", 0); got != "hello world" {
		t.Errorf("collapseText = %q", got)
	}
	long := strings.Repeat("x ", 300)
	if got := collapseText(long, 10); len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
}

func TestCollapseTextMultibyte(t *testing.T) {
	got := collapseText(strings.Repeat("日", 100), 10)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got)
	}
	if len(got) > 10 {
		t.Errorf("len = %d, want <= 10", len(got))
	}
	if got != strings.Repeat("日", 3) {
		t.Errorf("collapseText = %q, want whole runes only", got)
	}
}

func TestCutAtRune(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 3, "hel"},
		{"hello", 10, "hello"},
		{"日本語テスト", 7, "日本"},
		{"中文ab", 8, "中文ab"},
		{"abc", 0, "abc"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		got := cutAtRune(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("cutAtRune(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("cutAtRune(%q, %d) = %q, not valid UTF-8", tt.in, tt.max, got)
		}
	}
}
