package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/flowvex/scraperd/internal/config"
	"github.com/flowvex/scraperd/internal/profile"
	"github.com/flowvex/scraperd/internal/session"
	"github.com/flowvex/scraperd/internal/web"
)

// sessionRequired marks which command types need an existing session. open is
// absent: it creates one.
var sessionRequired = map[CommandType]bool{
	CmdClose:           true,
	CmdGetText:         true,
	CmdGetAttribute:    true,
	CmdClick:           true,
	CmdInput:           true,
	CmdScroll:          true,
	CmdWait:            true,
	CmdExecuteScript:   true,
	CmdScreenshot:      true,
	CmdGetLinks:        true,
	CmdDeepScrape:      true,
	CmdAutoDeepScrape:  true,
	CmdGetElements:     true,
	CmdGetLinkElements: true,
	CmdLoopElements:    true,
}

// Dispatcher validates commands, resolves sessions, runs the matching routine,
// and normalizes every outcome into the response envelope. It never panics
// through to the transport: failures are data.
type Dispatcher struct {
	registry *session.Registry
	crawler  *Crawler
	cfg      *config.RuntimeConfig
}

func NewDispatcher(registry *session.Registry, cfg *config.RuntimeConfig) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		crawler:  NewCrawler(registry, cfg),
		cfg:      cfg,
	}
}

// Execute runs one command: Validate → Resolve Session → Execute → Normalize.
func (d *Dispatcher) Execute(ctx context.Context, req Request) Response {
	a := req.Action

	if a.Type == CmdOpen {
		return d.execOpen(ctx, req)
	}
	if !sessionRequired[a.Type] {
		return Fail(req.SessionID, fmt.Errorf("unknown command type: %q", a.Type))
	}
	if a.Type == CmdClose {
		// Idempotent: unknown and already-closed ids succeed too.
		_ = d.registry.Close(req.SessionID)
		return OK(req.SessionID, map[string]any{"closed": true})
	}

	s, err := d.registry.Get(req.SessionID)
	if err != nil {
		return Fail(req.SessionID, err)
	}
	d.registry.Touch(s.ID)

	// Command routines run against the session's primary page, bounded by the
	// per-command timeout and released early if the caller goes away.
	tCtx, cancel := context.WithTimeout(s.PageCtx, d.execTimeout(a.Type, req.Config))
	defer cancel()
	go web.CancelOnClientDone(ctx, cancel)

	data, err := d.run(ctx, tCtx, s, req)
	if err != nil {
		return Fail(s.ID, err)
	}
	return OK(s.ID, data)
}

func (d *Dispatcher) run(reqCtx, tCtx context.Context, s *session.Session, req Request) (any, error) {
	a, cfg := req.Action, req.Config

	switch a.Type {
	case CmdGetText:
		return getText(tCtx, a.Selector, a.FindBy, cfg.Multiple, cfg.IncludeHTML)
	case CmdGetAttribute:
		return getAttribute(tCtx, a.Selector, a.FindBy, a.Attribute, cfg.Multiple)
	case CmdClick:
		return click(tCtx, a.Selector, a.FindBy, cfg.WaitForNavigation, time.Second)
	case CmdInput:
		clear := true
		if cfg.ClearBefore != nil {
			clear = *cfg.ClearBefore
		}
		return input(tCtx, a.Selector, a.FindBy, a.Value, clear, cfg.PressEnter)
	case CmdScroll:
		return scroll(tCtx, a.Scroll)
	case CmdWait:
		return waitFor(tCtx, a.Selector, a.FindBy, a.Condition, d.timeoutFor(CmdWait, cfg))
	case CmdExecuteScript:
		return executeScript(tCtx, a.Code)
	case CmdScreenshot:
		return screenshot(tCtx, a.Shot, cfg.Format, cfg.Quality)
	case CmdLoopElements:
		return loopElements(tCtx, a.Selector, a.FindBy, cfg.MaxIterations)
	case CmdGetElements:
		return getElements(tCtx, a.Selector)
	case CmdGetLinkElements:
		return getLinkElements(tCtx)
	case CmdGetLinks:
		links, err := GetLinks(tCtx, a.Selector, cfg.MaxLinks)
		if err != nil {
			return nil, err
		}
		return map[string]any{"links": links, "count": len(links)}, nil
	case CmdDeepScrape:
		if len(a.Links) == 0 {
			return nil, fmt.Errorf("links required for deepScrape")
		}
		return d.crawler.Run(reqCtx, s, a.Links, crawlOptions(cfg)), nil
	case CmdAutoDeepScrape:
		links, err := GetLinks(tCtx, a.Selector, cfg.MaxLinks)
		if err != nil {
			return nil, err
		}
		batch := d.crawler.Run(reqCtx, s, links, crawlOptions(cfg))
		return map[string]any{"links": links, "batch": batch}, nil
	default:
		return nil, fmt.Errorf("unknown command type: %q", a.Type)
	}
}

func (d *Dispatcher) execOpen(ctx context.Context, req Request) Response {
	if req.Action.URL == "" {
		return Fail("", fmt.Errorf("url required for open"))
	}

	prof := profile.New(profile.Overrides{
		UserAgent:  req.Config.UserAgent,
		Viewport:   req.Config.Viewport,
		Locale:     req.Config.Locale,
		TimezoneID: req.Config.TimezoneID,
	})

	s, err := d.registry.Create(ctx, prof)
	if err != nil {
		return Fail("", err)
	}

	navCtx, cancel := context.WithTimeout(s.PageCtx, d.timeoutFor(CmdOpen, req.Config))
	defer cancel()
	if err := NavigatePage(navCtx, req.Action.URL); err != nil {
		// A session whose first navigation failed is useless; reap it now.
		_ = d.registry.Close(s.ID)
		return Fail("", fmt.Errorf("navigate: %w", err))
	}

	url, title := pageLocation(navCtx)
	return OK(s.ID, map[string]any{"url": url, "title": title})
}

// waitGrace keeps the command context alive past the wait routine's soft-fail
// deadline, so an expired wait reports found:false instead of a context error.
const waitGrace = 2 * time.Second

// execTimeout is the context budget for one command. The wait routine owns
// its soft-fail deadline, so its context gets headroom beyond it.
func (d *Dispatcher) execTimeout(t CommandType, cfg CommandConfig) time.Duration {
	timeout := d.timeoutFor(t, cfg)
	if t == CmdWait {
		timeout += waitGrace
	}
	return timeout
}

// timeoutFor picks the per-command deadline: the caller's override, else the
// command family default.
func (d *Dispatcher) timeoutFor(t CommandType, cfg CommandConfig) time.Duration {
	if cfg.TimeoutMs > 0 {
		return time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	switch t {
	case CmdOpen:
		return d.cfg.NavigateTimeout
	case CmdWait:
		return d.cfg.WaitTimeout
	case CmdDeepScrape, CmdAutoDeepScrape:
		// Bounds the link harvest only. The batch itself runs to completion
		// once started, bounded per link, on the request context.
		return d.cfg.NavigateTimeout * 4
	default:
		return d.cfg.ActionTimeout
	}
}

func crawlOptions(cfg CommandConfig) CrawlOptions {
	return CrawlOptions{
		Concurrency:      cfg.Concurrency,
		ReuseContext:     cfg.ReuseContext,
		ContentSelectors: cfg.ContentSelectors,
		MaxContentLength: cfg.MaxContentLength,
		CollectMetadata:  cfg.CollectMetadata,
		BlockImages:      cfg.BlockImages,
	}
}
