// Package engine owns the single Chrome process shared by every session.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/flowvex/scraperd/internal/config"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateDisconnected  State = "disconnected"
)

// Engine lazily launches Chrome on first Acquire and hands out the shared
// browser context. When the process dies the watcher flips the state to
// disconnected and the next Acquire launches a fresh one. At most one physical
// browser exists for the life of the service.
type Engine struct {
	cfg *config.RuntimeConfig

	mu            sync.Mutex
	state         State
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// launch is swapped out in tests.
	launch func(cfg *config.RuntimeConfig) (context.CancelFunc, context.Context, context.CancelFunc, error)
}

func New(cfg *config.RuntimeConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		state:  StateUninitialized,
		launch: launchChrome,
	}
}

// Acquire returns a ready browser context, launching Chrome if needed. A
// launch failure is returned to the caller; nothing is cached on failure.
func (e *Engine) Acquire(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateReady && e.browserCtx != nil && e.browserCtx.Err() == nil {
		return e.browserCtx, nil
	}

	// Stale handles from a previous life are released before relaunch.
	e.releaseLocked()

	allocCancel, browserCtx, browserCancel, err := e.launch(e.cfg)
	if err != nil {
		e.state = StateUninitialized
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	e.allocCancel = allocCancel
	e.browserCtx = browserCtx
	e.browserCancel = browserCancel
	e.state = StateReady

	go e.watch(browserCtx)

	slog.Info("browser engine ready", "headless", e.cfg.Headless)
	return browserCtx, nil
}

// watch observes the browser context and marks the engine disconnected once
// the underlying process goes away.
func (e *Engine) watch(browserCtx context.Context) {
	<-browserCtx.Done()

	e.mu.Lock()
	defer e.mu.Unlock()
	// A newer launch may already have replaced this context.
	if e.browserCtx == browserCtx && e.state == StateReady {
		e.state = StateDisconnected
		slog.Warn("browser engine disconnected")
	}
}

// Ready reports whether the cached browser handle is still usable.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateReady && e.browserCtx != nil && e.browserCtx.Err() == nil
}

func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns the cached browser context without launching. Used by
// cleanup paths that must never trigger a relaunch.
func (e *Engine) Current() (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady || e.browserCtx == nil || e.browserCtx.Err() != nil {
		return nil, false
	}
	return e.browserCtx, true
}

// Shutdown tears the browser process down. Idempotent.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseLocked()
	e.state = StateUninitialized
}

func (e *Engine) releaseLocked() {
	if e.browserCancel != nil {
		e.browserCancel()
		e.browserCancel = nil
	}
	if e.allocCancel != nil {
		e.allocCancel()
		e.allocCancel = nil
	}
	e.browserCtx = nil
}

func launchChrome(cfg *config.RuntimeConfig) (context.CancelFunc, context.Context, context.CancelFunc, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ChromeBinary != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromeBinary))
	}
	if cfg.StateDir != "" {
		dir := filepath.Join(cfg.StateDir, "chrome")
		if err := os.MkdirAll(dir, 0o755); err == nil {
			opts = append(opts, chromedp.UserDataDir(dir))
		}
	}

	w, h := randomWindowSize()
	opts = append(opts, chromedp.WindowSize(w, h))

	opts = append(opts,
		chromedp.Flag("disable-automation", ""),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", ""),
		chromedp.Flag("no-first-run", ""),
		chromedp.Flag("no-default-browser-check", ""),
	)

	for _, f := range strings.Fields(cfg.ChromeExtraFlags) {
		name, val, ok := strings.Cut(strings.TrimPrefix(f, "--"), "=")
		if ok {
			opts = append(opts, chromedp.Flag(name, val))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	start, cancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer cancel()
	if err := chromedp.Run(start); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, nil, fmt.Errorf("connect to chrome: %w", err)
	}

	return allocCancel, browserCtx, browserCancel, nil
}

func randomWindowSize() (int, int) {
	sizes := [][2]int{
		{1920, 1080}, {1366, 768}, {1536, 864}, {1440, 900},
		{1280, 720}, {1600, 900}, {2560, 1440}, {1280, 800},
	}
	s := sizes[rand.Intn(len(sizes))]
	return s[0], s[1]
}
