// Package session tracks the logical browsing sessions multiplexed onto the
// shared browser process. The registry is the only owner of session resources
// and the single mutual-exclusion boundary between command traffic and the
// idle sweep.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flowvex/scraperd/internal/config"
	"github.com/flowvex/scraperd/internal/engine"
	"github.com/flowvex/scraperd/internal/profile"
)

type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// ErrNotFound is reported to the dispatcher as a "session not found"
// condition, never as a crash.
var ErrNotFound = errors.New("session not found")

// ErrPoolExhausted is returned when the registry is at its session cap.
var ErrPoolExhausted = errors.New("session limit reached")

// Session is one logical browsing identity: an isolated browser context plus
// its primary page. All commands against the session run on PageCtx.
type Session struct {
	ID               string
	Profile          profile.Profile
	BrowserContextID cdp.BrowserContextID
	TargetID         target.ID
	PageCtx          context.Context
	Cancel           context.CancelFunc
	CreatedAt        time.Time
	LastUsedAt       time.Time
	Status           Status
}

type Registry struct {
	engine *engine.Engine
	cfg    *config.RuntimeConfig

	mu       sync.RWMutex
	sessions map[string]*Session

	// open and release are swapped out in tests.
	open    func(ctx context.Context, p profile.Profile) (*Session, error)
	release func(s *Session)
}

func NewRegistry(eng *engine.Engine, cfg *config.RuntimeConfig) *Registry {
	r := &Registry{
		engine:   eng,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	r.open = r.openPage
	r.release = r.releaseResources
	return r
}

// Create acquires the engine, opens an isolated browsing context with the
// given profile, and registers the session under a fresh id.
func (r *Registry) Create(ctx context.Context, p profile.Profile) (*Session, error) {
	r.mu.RLock()
	count := len(r.sessions)
	r.mu.RUnlock()
	if r.cfg.MaxSessions > 0 && count >= r.cfg.MaxSessions {
		return nil, fmt.Errorf("%w (%d/%d)", ErrPoolExhausted, count, r.cfg.MaxSessions)
	}

	s, err := r.open(ctx, p)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.ID = uuid.NewString()
	s.Profile = p
	s.CreatedAt = now
	s.LastUsedAt = now
	s.Status = StatusActive

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	slog.Info("session created", "id", s.ID, "ua", p.UserAgent)
	return s, nil
}

// Get is a pure lookup; callers that go on to use the session must Touch it.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Touch records liveness for the idle sweep.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.LastUsedAt = time.Now()
	}
	r.mu.Unlock()
}

// Close tears a session down. Idempotent: closing an unknown or already
// closed id succeeds silently. Resource release failures are logged, not
// propagated, so cleanup always makes forward progress.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		s.Status = StatusClosed
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.release(s)
	slog.Info("session closed", "id", id)
	return nil
}

// CloseAll force-closes every session, in parallel. Used by /cleanup and at
// shutdown.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	eg := new(errgroup.Group)
	for _, id := range ids {
		eg.Go(func() error { return r.Close(id) })
	}
	_ = eg.Wait()
	return len(ids)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes every session idle past ttl and returns how many it reaped.
func (r *Registry) Sweep(ttl time.Duration) int {
	now := time.Now()
	r.mu.RLock()
	var idle []string
	for id, s := range r.sessions {
		if now.Sub(s.LastUsedAt) > ttl {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range idle {
		slog.Info("sweeping idle session", "id", id)
		_ = r.Close(id)
	}
	return len(idle)
}

// RunSweeper loops the idle sweep until ctx is cancelled. It runs off the
// request path so sweeping never blocks command processing.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.cfg.IdleTTL); n > 0 {
				slog.Info("idle sweep", "closed", n)
			}
		}
	}
}

// openPage creates an isolated browser context and its primary page on the
// shared browser, then applies the fingerprint before any navigation.
func (r *Registry) openPage(ctx context.Context, p profile.Profile) (*Session, error) {
	browserCtx, err := r.engine.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var bctxID cdp.BrowserContextID
	var tid target.ID
	createCtx, createCancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer createCancel()
	if err := chromedp.Run(createCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			bctxID, err = target.CreateBrowserContext().WithDisposeOnDetach(false).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			tid, err = target.CreateTarget("about:blank").WithBrowserContextID(bctxID).Do(ctx)
			return err
		}),
	); err != nil {
		return nil, fmt.Errorf("create browsing context: %w", err)
	}

	pageCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(tid))
	if err := chromedp.Run(pageCtx, r.setupActions(p)...); err != nil {
		cancel()
		r.disposeContext(browserCtx, bctxID)
		return nil, fmt.Errorf("page setup: %w", err)
	}

	return &Session{
		BrowserContextID: bctxID,
		TargetID:         tid,
		PageCtx:          pageCtx,
		Cancel:           cancel,
	}, nil
}

func (r *Registry) setupActions(p profile.Profile) []chromedp.Action {
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(p.UserAgent).
				WithPlatform(p.Platform).
				WithAcceptLanguage(p.Locale).
				Do(ctx)
		}),
		chromedp.EmulateViewport(int64(p.Viewport.Width), int64(p.Viewport.Height)),
	}
	if p.TimezoneID != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetTimezoneOverride(p.TimezoneID).Do(ctx)
		}))
	}
	if p.PatchScript != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(p.PatchScript).Do(ctx)
			return err
		}))
	}

	var blockPatterns []string
	if r.cfg.BlockMedia {
		blockPatterns = CombineBlockPatterns(blockPatterns, MediaBlockPatterns)
	} else if r.cfg.BlockImages {
		blockPatterns = CombineBlockPatterns(blockPatterns, ImageBlockPatterns)
	}
	if len(blockPatterns) > 0 {
		patterns := blockPatterns
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return SetResourceBlocking(ctx, patterns)
		}))
	}
	return actions
}

// OpenChildPage opens a transient page for batch crawling. With share set it
// lives in the parent session's browsing context (cookies and storage carry
// over); otherwise it gets a fresh isolated context. The returned cleanup
// closes the page and, when one was created, the isolated context. Each step
// is best-effort so a failure never leaks the rest.
func (r *Registry) OpenChildPage(ctx context.Context, parent *Session, share bool) (context.Context, func(), error) {
	browserCtx, err := r.engine.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	bctxID := parent.BrowserContextID
	ownsContext := false
	createCtx, createCancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer createCancel()

	if !share {
		if err := chromedp.Run(createCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			bctxID, err = target.CreateBrowserContext().WithDisposeOnDetach(false).Do(ctx)
			return err
		})); err != nil {
			return nil, nil, fmt.Errorf("create crawl context: %w", err)
		}
		ownsContext = true
	}

	var tid target.ID
	if err := chromedp.Run(createCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tid, err = target.CreateTarget("about:blank").WithBrowserContextID(bctxID).Do(ctx)
		return err
	})); err != nil {
		if ownsContext {
			r.disposeContext(browserCtx, bctxID)
		}
		return nil, nil, fmt.Errorf("create crawl page: %w", err)
	}

	pageCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(tid))
	if err := chromedp.Run(pageCtx); err != nil {
		cancel()
		if ownsContext {
			r.disposeContext(browserCtx, bctxID)
		}
		return nil, nil, fmt.Errorf("attach crawl page: %w", err)
	}

	if parent.Profile.PatchScript != "" {
		if err := chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(parent.Profile.PatchScript).Do(ctx)
			return err
		})); err != nil {
			slog.Warn("patch script on crawl page", "err", err)
		}
	}

	cleanup := func() {
		if cur, ok := r.engine.Current(); ok {
			closeCtx, closeCancel := context.WithTimeout(cur, 5*time.Second)
			exec := cdp.WithExecutor(closeCtx, chromedp.FromContext(cur).Browser)
			if err := target.CloseTarget(tid).Do(exec); err != nil {
				slog.Debug("close crawl page", "err", err)
			}
			if ownsContext {
				r.disposeContextExec(exec, bctxID)
			}
			closeCancel()
		}
		cancel()
	}
	return pageCtx, cleanup, nil
}

// releaseResources is best-effort: each step has its own ignore boundary.
func (r *Registry) releaseResources(s *Session) {
	browserCtx, ok := r.engine.Current()
	if ok {
		closeCtx, cancel := context.WithTimeout(browserCtx, 5*time.Second)
		exec := cdp.WithExecutor(closeCtx, chromedp.FromContext(browserCtx).Browser)
		if s.TargetID != "" {
			if err := target.CloseTarget(s.TargetID).Do(exec); err != nil {
				slog.Debug("close target", "id", s.ID, "err", err)
			}
		}
		if s.BrowserContextID != "" {
			r.disposeContextExec(exec, s.BrowserContextID)
		}
		cancel()
	}
	if s.Cancel != nil {
		s.Cancel()
	}
}

func (r *Registry) disposeContext(browserCtx context.Context, id cdp.BrowserContextID) {
	closeCtx, cancel := context.WithTimeout(browserCtx, 5*time.Second)
	defer cancel()
	r.disposeContextExec(cdp.WithExecutor(closeCtx, chromedp.FromContext(browserCtx).Browser), id)
}

func (r *Registry) disposeContextExec(exec context.Context, id cdp.BrowserContextID) {
	if err := target.DisposeBrowserContext(id).Do(exec); err != nil {
		slog.Debug("dispose browser context", "ctx", id, "err", err)
	}
}
