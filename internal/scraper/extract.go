package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// elementsJS returns a JS expression evaluating to the array of elements
// matching selector, for either CSS or XPath lookup.
func elementsJS(selector, findBy string) string {
	if findBy == FindByXPath {
		return fmt.Sprintf(`(() => {
			const r = document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			const out = [];
			for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
			return out;
		})()`, selector)
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%q))`, selector)
}

// NavigatePage uses raw CDP Page.navigate then polls document.readyState for
// completion, so it works uniformly across redirects and SPA-style loads.
func NavigatePage(ctx context.Context, url string) error {
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return fmt.Errorf("navigate: %s", errText)
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var state string
			err = chromedp.Run(ctx, chromedp.Evaluate("document.readyState", &state))
			if err == nil && (state == "interactive" || state == "complete") {
				return nil
			}
		}
	}
}

// buildGetTextJS returns the extraction expression. Zero matches with
// multiple=false yields an empty string, not an error.
func buildGetTextJS(selector, findBy string, multiple, includeHTML bool) string {
	return fmt.Sprintf(`(() => {
		const els = %s;
		const txt = el => (el.innerText !== undefined ? el.innerText : (el.textContent || ''));
		if (%t) {
			const out = { texts: els.map(txt), count: els.length };
			if (%t) out.htmls = els.map(el => el.outerHTML);
			return out;
		}
		const out = { text: els.length ? txt(els[0]) : '' };
		if (%t && els.length) out.html = els[0].outerHTML;
		return out;
	})()`, elementsJS(selector, findBy), multiple, includeHTML, includeHTML)
}

func getText(ctx context.Context, selector, findBy string, multiple, includeHTML bool) (map[string]any, error) {
	js := buildGetTextJS(selector, findBy, multiple, includeHTML)

	var result map[string]any
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &result)); err != nil {
		return nil, fmt.Errorf("get text: %w", err)
	}
	return result, nil
}

// getAttribute reads one attribute from matching elements.
func getAttribute(ctx context.Context, selector, findBy, attribute string, multiple bool) (map[string]any, error) {
	if attribute == "" {
		return nil, fmt.Errorf("attribute required")
	}
	js := fmt.Sprintf(`(() => {
		const els = %s;
		const attr = el => el.getAttribute(%q);
		if (%t) {
			const values = els.map(attr);
			return { values: values, count: values.length };
		}
		return { value: els.length ? attr(els[0]) : null };
	})()`, elementsJS(selector, findBy), attribute, multiple)

	var result map[string]any
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &result)); err != nil {
		return nil, fmt.Errorf("get attribute: %w", err)
	}
	return result, nil
}

// loopElements enumerates matching elements for downstream per-element
// processing, capped by maxIterations.
func loopElements(ctx context.Context, selector, findBy string, maxIterations int) (map[string]any, error) {
	if maxIterations <= 0 {
		maxIterations = 100
	}
	js := fmt.Sprintf(`(() => {
		const els = %s.slice(0, %d);
		return {
			elements: els.map((el, i) => ({ index: i, html: el.outerHTML })),
			total: els.length,
		};
	})()`, elementsJS(selector, findBy), maxIterations)

	var result map[string]any
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &result)); err != nil {
		return nil, fmt.Errorf("loop elements: %w", err)
	}
	return result, nil
}

// getElements suggests candidate selectors for interactive elements on the
// page, for visual picker UIs. Heuristic: prefer ids, then distinctive
// classes, then tag paths.
func getElements(ctx context.Context, selector string) (map[string]any, error) {
	if selector == "" {
		selector = "a, button, input, select, textarea, [role=button], [onclick]"
	}
	js := fmt.Sprintf(`(() => {
		const sel = el => {
			if (el.id) return '#' + CSS.escape(el.id);
			let s = el.tagName.toLowerCase();
			const cls = Array.from(el.classList).slice(0, 2);
			if (cls.length) s += '.' + cls.map(c => CSS.escape(c)).join('.');
			return s;
		};
		const out = [];
		const seen = new Set();
		for (const el of document.querySelectorAll(%q)) {
			const r = el.getBoundingClientRect();
			if (r.width === 0 && r.height === 0) continue;
			const s = sel(el);
			const entry = seen.has(s) ? null : {
				selector: s,
				tag: el.tagName.toLowerCase(),
				text: (el.innerText || el.value || '').trim().slice(0, 80),
				count: document.querySelectorAll(s).length,
			};
			if (entry) { seen.add(s); out.push(entry); }
			if (out.length >= 50) break;
		}
		return { elements: out, total: out.length };
	})()`, selector)

	var result map[string]any
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &result)); err != nil {
		return nil, fmt.Errorf("get elements: %w", err)
	}
	return result, nil
}

// getLinkElements groups anchors by structural selector so pickers can offer
// "all links like this one" choices, most repeated first.
func getLinkElements(ctx context.Context) (map[string]any, error) {
	js := `(() => {
		const sel = a => {
			let s = 'a';
			const cls = Array.from(a.classList).slice(0, 2);
			if (cls.length) return s + '.' + cls.map(c => CSS.escape(c)).join('.');
			const p = a.parentElement;
			if (p && p.classList.length) return p.tagName.toLowerCase() + '.' + CSS.escape(p.classList[0]) + ' > a';
			return s;
		};
		const groups = new Map();
		for (const a of document.querySelectorAll('a[href]')) {
			const s = sel(a);
			const g = groups.get(s) || { selector: s, count: 0, sample: '' };
			g.count++;
			if (!g.sample) g.sample = (a.innerText || '').trim().slice(0, 80);
			groups.set(s, g);
		}
		const out = Array.from(groups.values()).sort((x, y) => y.count - x.count).slice(0, 20);
		return { groups: out, total: out.length };
	})()`

	var result map[string]any
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &result)); err != nil {
		return nil, fmt.Errorf("get link elements: %w", err)
	}
	return result, nil
}

// pageLocation returns the current URL and title, best-effort.
func pageLocation(ctx context.Context) (url, title string) {
	_ = chromedp.Run(ctx,
		chromedp.Location(&url),
		chromedp.Title(&title),
	)
	return url, title
}
