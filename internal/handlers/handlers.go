// Package handlers provides the HTTP surface of the scraper service.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowvex/scraperd/internal/config"
	"github.com/flowvex/scraperd/internal/engine"
	"github.com/flowvex/scraperd/internal/scraper"
	"github.com/flowvex/scraperd/internal/session"
	"github.com/flowvex/scraperd/internal/web"
)

type Handlers struct {
	Dispatcher *scraper.Dispatcher
	Registry   *session.Registry
	Engine     *engine.Engine
	Config     *config.RuntimeConfig
	StartedAt  time.Time
}

func New(d *scraper.Dispatcher, reg *session.Registry, eng *engine.Engine, cfg *config.RuntimeConfig) *Handlers {
	return &Handlers{
		Dispatcher: d,
		Registry:   reg,
		Engine:     eng,
		Config:     cfg,
		StartedAt:  time.Now(),
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /execute", h.HandleExecute)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("POST /cleanup", h.HandleCleanup)
	mux.HandleFunc("GET /session/{id}/screencast", h.HandleScreencast)
}

// HandleExecute runs one command. Malformed JSON is the only transport-level
// failure; every command outcome, success or not, is a 200 with the envelope.
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req scraper.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, 400, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Action.Type == "" {
		web.Error(w, 400, fmt.Errorf("action.type required"))
		return
	}

	web.JSON(w, 200, h.Dispatcher.Execute(r.Context(), req))
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, 200, map[string]any{
		"status":       "ok",
		"browserState": string(h.Engine.CurrentState()),
		"browserReady": h.Engine.Ready(),
		"contexts":     h.Registry.Count(),
		"maxContexts":  h.Config.MaxSessions,
		"uptime":       int(time.Since(h.StartedAt).Seconds()),
	})
}

// HandleCleanup force-closes every session. Always succeeds.
func (h *Handlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	closed := h.Registry.CloseAll()
	web.JSON(w, 200, map[string]any{"success": true, "closed": closed})
}
