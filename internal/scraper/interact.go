package scraper

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// queryOpt maps the protocol's findBy to a chromedp selector strategy.
func queryOpt(findBy string) chromedp.QueryOption {
	if findBy == FindByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// click clicks the first matching element. With waitForNavigation set it
// gives an in-flight navigation a moment to commit before returning.
func click(ctx context.Context, selector, findBy string, waitForNavigation bool, navDelay time.Duration) (map[string]any, error) {
	if selector == "" {
		return nil, fmt.Errorf("selector required")
	}
	if err := chromedp.Run(ctx, chromedp.Click(selector, queryOpt(findBy))); err != nil {
		return nil, fmt.Errorf("click: %w", err)
	}
	if waitForNavigation {
		_ = chromedp.Run(ctx, chromedp.Sleep(navDelay))
	}
	return map[string]any{"clicked": true}, nil
}

// input types into the first matching element. clearBefore defaults to true;
// pressEnter submits after typing.
func input(ctx context.Context, selector, findBy, value string, clearBefore, pressEnter bool) (map[string]any, error) {
	if selector == "" {
		return nil, fmt.Errorf("selector required")
	}
	opt := queryOpt(findBy)

	actions := []chromedp.Action{chromedp.Click(selector, opt)}
	if clearBefore {
		actions = append(actions, chromedp.SetValue(selector, "", opt))
	}
	actions = append(actions, chromedp.SendKeys(selector, value, opt))
	if pressEnter {
		actions = append(actions, chromedp.KeyEvent(kb.Enter))
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	return map[string]any{"typed": true, "value": value}, nil
}

// scroll moves the viewport per the requested mode: pixels, element, bottom,
// or top. Default is a 500px step down.
func scroll(ctx context.Context, mode *ScrollMode) (map[string]any, error) {
	if mode == nil {
		mode = &ScrollMode{Type: "pixels", X: 0, Y: 500}
	}

	var js string
	var data map[string]any
	switch mode.Type {
	case "element":
		if mode.Selector == "" {
			return nil, fmt.Errorf("selector required for element scroll")
		}
		js = fmt.Sprintf(`(() => { const el = document.querySelector(%q); if (el) el.scrollIntoView({block: 'center'}); return !!el; })()`, mode.Selector)
		var found bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(js, &found)); err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}
		return map[string]any{"scrolledTo": mode.Selector, "found": found}, nil
	case "bottom":
		js = `window.scrollTo(0, document.body.scrollHeight)`
		data = map[string]any{"scrolledTo": "bottom"}
	case "top":
		js = `window.scrollTo(0, 0)`
		data = map[string]any{"scrolledTo": "top"}
	default:
		x, y := mode.X, mode.Y
		if x == 0 && y == 0 {
			y = 500
		}
		js = fmt.Sprintf(`window.scrollBy(%d, %d)`, x, y)
		data = map[string]any{"scrolledX": x, "scrolledY": y}
	}

	if err := chromedp.Run(ctx, chromedp.Evaluate(js, nil)); err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	return data, nil
}

// waitConditionJS builds a predicate for one wait condition.
func waitConditionJS(selector, findBy, condition string) string {
	els := elementsJS(selector, findBy)
	switch condition {
	case "hidden":
		return fmt.Sprintf(`(() => { const els = %s; if (!els.length) return true; const el = els[0]; const r = el.getBoundingClientRect(); return r.width === 0 && r.height === 0; })()`, els)
	case "attached":
		return fmt.Sprintf(`%s.length > 0`, els)
	case "detached":
		return fmt.Sprintf(`%s.length === 0`, els)
	default: // visible
		return fmt.Sprintf(`(() => { const els = %s; if (!els.length) return false; const r = els[0].getBoundingClientRect(); return r.width > 0 || r.height > 0; })()`, els)
	}
}

// waitFor polls the condition until it holds or the timeout passes. A
// condition that never holds is a soft-fail: success with found=false, since
// absence is a valid outcome for interrogation commands.
func waitFor(ctx context.Context, selector, findBy, condition string, timeout time.Duration) (map[string]any, error) {
	if selector == "" {
		return nil, fmt.Errorf("selector required")
	}
	if condition == "" {
		condition = "visible"
	}
	js := waitConditionJS(selector, findBy, condition)

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
			return nil, fmt.Errorf("wait: %w", err)
		}
		if ok {
			return map[string]any{"found": true, "condition": condition}, nil
		}
		// The wait's own deadline wins over context expiry: a condition that
		// never held is a completed wait, not a failed command.
		if !time.Now().Before(deadline) {
			return map[string]any{"found": false, "condition": condition}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// executeScript evaluates arbitrary code in page context.
func executeScript(ctx context.Context, code string) (map[string]any, error) {
	if code == "" {
		return nil, fmt.Errorf("code required")
	}
	var result any
	if err := chromedp.Run(ctx, chromedp.Evaluate(code, &result)); err != nil {
		return nil, fmt.Errorf("execute script: %w", err)
	}
	return map[string]any{"result": result}, nil
}

// screenshot captures the viewport, full page, or one element, as base64.
func screenshot(ctx context.Context, mode *ScreenshotMode, format string, quality int) (map[string]any, error) {
	if mode == nil {
		mode = &ScreenshotMode{Type: "viewport"}
	}
	if format == "" {
		format = "png"
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	var buf []byte
	var err error
	switch mode.Type {
	case "element":
		if mode.Selector == "" {
			return nil, fmt.Errorf("selector required for element screenshot")
		}
		err = chromedp.Run(ctx, chromedp.Screenshot(mode.Selector, &buf, chromedp.ByQuery))
	default:
		fullPage := mode.Type == "fullPage"
		err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			p := page.CaptureScreenshot().WithCaptureBeyondViewport(fullPage)
			if format == "jpeg" {
				p = p.WithFormat(page.CaptureScreenshotFormatJpeg).WithQuality(int64(quality))
			} else {
				p = p.WithFormat(page.CaptureScreenshotFormatPng)
			}
			var err error
			buf, err = p.Do(ctx)
			return err
		}))
	}
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	return map[string]any{
		"data":   base64.StdEncoding.EncodeToString(buf),
		"format": format,
		"mode":   mode.Type,
	}, nil
}
