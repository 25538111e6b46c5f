package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
)

const (
	defaultLinkSelector = "a[href]"
	defaultMaxLinks     = 20
	maxLinkTitleChars   = 200
)

type rawLink struct {
	Href  string `json:"href"`
	Text  string `json:"text"`
	Title string `json:"title"`
}

// harvestLinks queries the page for anchor-like elements matching selector
// and returns raw hrefs plus visible text. Resolution and filtering happen in
// FilterLinks so they stay testable without a browser.
func harvestLinks(ctx context.Context, selector string) (string, []rawLink, error) {
	if selector == "" {
		selector = defaultLinkSelector
	}

	js := fmt.Sprintf(`(() => {
		const out = [];
		for (const el of document.querySelectorAll(%q)) {
			const a = el.matches('a[href]') ? el : (el.querySelector('a[href]') || el.closest('a[href]'));
			if (!a) continue;
			out.push({
				href: a.getAttribute('href') || '',
				text: (a.innerText || a.textContent || ''),
				title: a.getAttribute('title') || '',
			});
		}
		return { base: location.href, links: out };
	})()`, selector)

	var result struct {
		Base  string    `json:"base"`
		Links []rawLink `json:"links"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &result)); err != nil {
		return "", nil, fmt.Errorf("harvest links: %w", err)
	}
	return result.Base, result.Links, nil
}

// FilterLinks resolves hrefs against base, drops anchors-only and
// script-scheme targets, deduplicates by resolved URL, and truncates to max.
func FilterLinks(base string, raw []rawLink, max int) []Link {
	if max <= 0 {
		max = defaultMaxLinks
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	seen := make(map[string]bool)
	out := make([]Link, 0, max)
	for _, r := range raw {
		href := strings.TrimSpace(r.Href)
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := ref
		if baseURL != nil {
			resolved = baseURL.ResolveReference(ref)
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		resolved.Fragment = ""
		abs := resolved.String()
		if seen[abs] {
			continue
		}
		seen[abs] = true

		out = append(out, Link{
			URL:   abs,
			Text:  collapseText(r.Text, maxLinkTitleChars),
			Title: collapseText(r.Title, maxLinkTitleChars),
		})
		if len(out) >= max {
			break
		}
	}
	return out
}

// collapseText squashes runs of whitespace and caps the length.
func collapseText(s string, max int) string {
	return cutAtRune(strings.Join(strings.Fields(s), " "), max)
}

// cutAtRune truncates s to at most max bytes without splitting a rune.
func cutAtRune(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// GetLinks harvests, filters, and caps links from the current page.
func GetLinks(ctx context.Context, selector string, max int) ([]Link, error) {
	base, raw, err := harvestLinks(ctx, selector)
	if err != nil {
		return nil, err
	}
	return FilterLinks(base, raw, max), nil
}
