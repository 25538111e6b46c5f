package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// HandleScreencast upgrades to WebSocket and streams JPEG frames from a
// session's page, for watching a live session during development.
// Query params: quality (1-100, default 40), maxWidth (default 800), fps (1-30, default 5)
func (h *Handlers) HandleScreencast(w http.ResponseWriter, r *http.Request) {
	s, err := h.Registry.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "session not found", 404)
		return
	}
	h.Registry.Touch(s.ID)
	ctx := s.PageCtx

	quality := queryParamInt(r, "quality", 40)
	maxWidth := queryParamInt(r, "maxWidth", 800)
	fps := queryParamInt(r, "fps", 5)
	if fps > 30 {
		fps = 30
	}
	minFrameInterval := time.Second / time.Duration(fps)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	frameCh := make(chan []byte, 3)
	var once sync.Once
	done := make(chan struct{})

	// Frames arrive faster than clients want them; drop above the fps cap.
	var lastFrame time.Time
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if e, ok := ev.(*page.EventScreencastFrame); ok {
			go func() {
				_ = chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
					return page.ScreencastFrameAck(e.SessionID).Do(c)
				}))
			}()

			now := time.Now()
			if now.Sub(lastFrame) < minFrameInterval {
				return
			}
			lastFrame = now

			data, err := base64.StdEncoding.DecodeString(e.Data)
			if err != nil {
				return
			}
			select {
			case frameCh <- data:
			default:
			}
		}
	})

	err = chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return page.StartScreencast().
			WithFormat(page.ScreencastFormatJpeg).
			WithQuality(int64(quality)).
			WithMaxWidth(int64(maxWidth)).
			WithMaxHeight(int64(maxWidth * 3 / 4)).
			WithEveryNthFrame(2).
			Do(c)
	}))
	if err != nil {
		slog.Error("start screencast failed", "err", err, "session", s.ID)
		return
	}

	defer func() {
		once.Do(func() { close(done) })
		_ = chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
			return page.StopScreencast().Do(c)
		}))
	}()

	slog.Info("screencast started", "session", s.ID, "quality", quality, "maxWidth", maxWidth)

	go func() {
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				once.Do(func() { close(done) })
				return
			}
		}
	}()

	for {
		select {
		case frame := <-frameCh:
			if err := wsutil.WriteServerBinary(conn, frame); err != nil {
				return
			}
		case <-done:
			return
		case <-time.After(10 * time.Second):
			if err := wsutil.WriteServerMessage(conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

func queryParamInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
		return def
	}
	return n
}
