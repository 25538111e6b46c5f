// Package scraper implements the command protocol: dispatch, per-command
// extraction and interaction routines, link harvesting, and the batch crawler.
package scraper

import (
	"github.com/flowvex/scraperd/internal/profile"
)

type CommandType string

const (
	CmdOpen            CommandType = "open"
	CmdClose           CommandType = "close"
	CmdGetText         CommandType = "getText"
	CmdGetAttribute    CommandType = "getAttribute"
	CmdClick           CommandType = "click"
	CmdInput           CommandType = "input"
	CmdScroll          CommandType = "scroll"
	CmdWait            CommandType = "wait"
	CmdExecuteScript   CommandType = "executeScript"
	CmdScreenshot      CommandType = "screenshot"
	CmdGetLinks        CommandType = "getLinks"
	CmdDeepScrape      CommandType = "deepScrape"
	CmdAutoDeepScrape  CommandType = "autoDeepScrape"
	CmdGetElements     CommandType = "getElements"
	CmdGetLinkElements CommandType = "getLinkElements"
	CmdLoopElements    CommandType = "loopElements"
)

const (
	FindByCSS   = "cssSelector"
	FindByXPath = "xpath"
)

// ScrollMode mirrors the protocol's tagged scroll union: pixels, element,
// bottom, top.
type ScrollMode struct {
	Type     string `json:"type"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// ScreenshotMode: viewport (default), fullPage, or element.
type ScreenshotMode struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
}

// Action carries the command type plus its type-specific fields.
type Action struct {
	Type      CommandType     `json:"type"`
	URL       string          `json:"url,omitempty"`
	Selector  string          `json:"selector,omitempty"`
	FindBy    string          `json:"findBy,omitempty"`
	Attribute string          `json:"attribute,omitempty"`
	Value     string          `json:"value,omitempty"`
	Code      string          `json:"code,omitempty"`
	Condition string          `json:"condition,omitempty"`
	Scroll    *ScrollMode     `json:"mode,omitempty"`
	Shot      *ScreenshotMode `json:"screenshotMode,omitempty"`
	Links     []Link          `json:"links,omitempty"`
}

// CommandConfig holds the per-command tuning knobs. Zero values fall back to
// the service defaults.
type CommandConfig struct {
	TimeoutMs         int               `json:"timeout,omitempty"`
	Multiple          bool              `json:"multiple,omitempty"`
	IncludeHTML       bool              `json:"includeHtml,omitempty"`
	WaitForNavigation bool              `json:"waitForNavigation,omitempty"`
	ClearBefore       *bool             `json:"clearBefore,omitempty"`
	PressEnter        bool              `json:"pressEnter,omitempty"`
	MaxIterations     int               `json:"maxIterations,omitempty"`
	Format            string            `json:"format,omitempty"`
	Quality           int               `json:"quality,omitempty"`
	UserAgent         string            `json:"userAgent,omitempty"`
	Viewport          *profile.Viewport `json:"viewport,omitempty"`
	Locale            string            `json:"locale,omitempty"`
	TimezoneID        string            `json:"timezoneId,omitempty"`

	// Link harvesting and batch crawling.
	MaxLinks         int      `json:"maxLinks,omitempty"`
	ReuseContext     bool     `json:"reuseContext,omitempty"`
	Concurrency      int      `json:"maxConcurrent,omitempty"`
	ContentSelectors []string `json:"contentSelectors,omitempty"`
	MaxContentLength int      `json:"maxContentLength,omitempty"`
	CollectMetadata  bool     `json:"collectMetadata,omitempty"`
	BlockImages      bool     `json:"blockImages,omitempty"`
}

// Request is the protocol envelope: a stateless (type, sessionId, parameters)
// tuple.
type Request struct {
	Action    Action        `json:"action"`
	SessionID string        `json:"session_id,omitempty"`
	Config    CommandConfig `json:"config,omitempty"`
}

// Response is always returned, even on failure: the protocol never throws to
// the transport layer.
type Response struct {
	Success   bool   `json:"success"`
	ContextID string `json:"context_id,omitempty"`
	Data      any    `json:"data"`
	Error     string `json:"error,omitempty"`
}

func OK(contextID string, data any) Response {
	return Response{Success: true, ContextID: contextID, Data: data}
}

func Fail(contextID string, err error) Response {
	return Response{Success: false, ContextID: contextID, Error: err.Error()}
}

// Link is one harvested anchor.
type Link struct {
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
}

// ScrapeItemResult is the per-link outcome of a batch crawl.
type ScrapeItemResult struct {
	URL         string `json:"url"`
	LinkText    string `json:"linkText,omitempty"`
	Success     bool   `json:"success"`
	Content     string `json:"content"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResult is the ordered item list plus aggregate counts.
type BatchResult struct {
	Results   []ScrapeItemResult `json:"results"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}
