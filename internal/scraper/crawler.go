package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/errgroup"

	"github.com/flowvex/scraperd/internal/config"
	"github.com/flowvex/scraperd/internal/session"
	"github.com/flowvex/scraperd/internal/web"
)

// DefaultContentSelectors is the fallback chain tried in priority order when
// a crawl page has no caller-supplied selectors.
var DefaultContentSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"#content",
	".content",
	".post-content",
	".article-body",
}

// minContentChars is the threshold below which a selector's text is rejected
// and the next candidate tried.
const minContentChars = 100

const truncationMarker = "... [truncated]"

// CrawlOptions tune one batch crawl. Zero values inherit service defaults.
type CrawlOptions struct {
	Concurrency      int
	ItemTimeout      time.Duration
	ReuseContext     bool
	ContentSelectors []string
	MaxContentLength int
	CollectMetadata  bool
	BlockImages      bool
}

func (o *CrawlOptions) defaults(cfg *config.RuntimeConfig) {
	if o.Concurrency <= 0 {
		o.Concurrency = cfg.BatchConcurrency
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = cfg.BatchItemTimeout
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = 15 * time.Second
	}
	if len(o.ContentSelectors) == 0 {
		o.ContentSelectors = DefaultContentSelectors
	}
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = cfg.ContentMaxChars
	}
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = 5000
	}
}

// pageData is what one crawl page yields.
type pageData struct {
	Content     string
	Title       string
	Description string
}

// Crawler visits batches of links with bounded concurrency, isolating
// per-link failures and guaranteeing page/context cleanup per item.
type Crawler struct {
	registry *session.Registry
	cfg      *config.RuntimeConfig

	// visit is swapped out in tests.
	visit func(ctx context.Context, parent *session.Session, link Link, opts CrawlOptions) (pageData, error)
}

func NewCrawler(registry *session.Registry, cfg *config.RuntimeConfig) *Crawler {
	c := &Crawler{registry: registry, cfg: cfg}
	c.visit = c.visitLink
	return c
}

// Run crawls links in sequential batches of opts.Concurrency; items within a
// batch run concurrently. Results come back in input order, one per link,
// failures isolated to their item. Once started a batch runs to completion;
// timeouts apply per link, not to the batch.
func (c *Crawler) Run(ctx context.Context, parent *session.Session, links []Link, opts CrawlOptions) BatchResult {
	opts.defaults(c.cfg)

	results := make([]ScrapeItemResult, len(links))

	for start := 0; start < len(links); start += opts.Concurrency {
		end := start + opts.Concurrency
		if end > len(links) {
			end = len(links)
		}

		eg := new(errgroup.Group)
		for i := start; i < end; i++ {
			eg.Go(func() error {
				results[i] = c.crawlOne(ctx, parent, links[i], opts)
				return nil
			})
		}
		_ = eg.Wait()

		slog.Debug("batch complete", "done", end, "total", len(links))
	}

	res := BatchResult{Results: results, Total: len(links)}
	for _, r := range results {
		if r.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

func (c *Crawler) crawlOne(ctx context.Context, parent *session.Session, link Link, opts CrawlOptions) ScrapeItemResult {
	item := ScrapeItemResult{URL: link.URL, LinkText: link.Text}

	ictx, cancel := context.WithTimeout(ctx, opts.ItemTimeout)
	defer cancel()

	pd, err := c.visit(ictx, parent, link, opts)
	if err != nil {
		item.Error = err.Error()
		return item
	}

	item.Success = true
	item.Content = pd.Content
	item.Title = pd.Title
	item.Description = pd.Description
	return item
}

// visitLink opens the child page, installs the resource filter, navigates,
// runs the fallback selector chain, and always tears the page down.
func (c *Crawler) visitLink(ctx context.Context, parent *session.Session, link Link, opts CrawlOptions) (pageData, error) {
	pageCtx, cleanup, err := c.registry.OpenChildPage(ctx, parent, opts.ReuseContext)
	if err != nil {
		return pageData{}, fmt.Errorf("open page: %w", err)
	}
	defer cleanup()

	// The crawl context must not outlive the item timeout.
	navCtx, cancel := context.WithCancel(pageCtx)
	defer cancel()
	go web.CancelOnClientDone(ctx, cancel)

	patterns := session.FontBlockPatterns
	if opts.BlockImages {
		patterns = session.CombineBlockPatterns(patterns, session.ImageBlockPatterns)
	}
	if err := session.SetResourceBlocking(navCtx, patterns); err != nil {
		slog.Debug("resource blocking", "url", link.URL, "err", err)
	}

	if err := NavigatePage(navCtx, link.URL); err != nil {
		return pageData{}, fmt.Errorf("navigate: %w", err)
	}

	return extractContent(navCtx, opts)
}

// extractContent tries each selector in the chain, accepting the first whose
// text clears the minimum length, then falls back to the page body.
func extractContent(ctx context.Context, opts CrawlOptions) (pageData, error) {
	js := buildExtractJS(opts.ContentSelectors, opts.CollectMetadata)

	var raw struct {
		Content     string `json:"content"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &raw)); err != nil {
		return pageData{}, fmt.Errorf("extract: %w", err)
	}

	content := capContent(raw.Content, opts.MaxContentLength)
	return pageData{Content: content, Title: raw.Title, Description: raw.Description}, nil
}

// capContent truncates on a rune boundary and appends the marker.
func capContent(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return cutAtRune(s, max) + truncationMarker
}

func buildExtractJS(selectors []string, metadata bool) string {
	quoted := "["
	for i, s := range selectors {
		if i > 0 {
			quoted += ","
		}
		quoted += fmt.Sprintf("%q", s)
	}
	quoted += "]"

	meta := ""
	if metadata {
		meta = `
		const m = name => { const el = document.querySelector('meta[name="' + name + '"], meta[property="' + name + '"]'); return el ? (el.getAttribute('content') || '') : ''; };
		out.description = m('description') || m('og:description');`
	}

	return fmt.Sprintf(`(() => {
		const out = { content: '', title: document.title || '', description: '' };
		const candidates = %s;
		for (const sel of candidates) {
			let el;
			try { el = document.querySelector(sel); } catch (e) { continue; }
			if (!el) continue;
			const text = (el.innerText || '').trim();
			if (text.length >= %d) { out.content = text; break; }
		}
		if (!out.content) out.content = (document.body ? document.body.innerText : '').trim();%s
		return out;
	})()`, quoted, minContentChars, meta)
}
