// Package profile builds randomized but plausible client fingerprints for new
// browsing contexts.
package profile

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/flowvex/scraperd/internal/assets"
)

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Profile describes the fingerprint applied to a browsing context: the
// user-agent and rendering hints plus the patch script injected before any
// navigation.
type Profile struct {
	UserAgent   string   `json:"userAgent"`
	Viewport    Viewport `json:"viewport"`
	Locale      string   `json:"locale"`
	TimezoneID  string   `json:"timezoneId"`
	Platform    string   `json:"platform"`
	PatchScript string   `json:"-"`
}

// Overrides pins individual profile fields instead of the random pick.
type Overrides struct {
	UserAgent  string
	Viewport   *Viewport
	Locale     string
	TimezoneID string
}

const chromeVersion = "133.0.0.0"

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + chromeVersion + " Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + chromeVersion + " Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + chromeVersion + " Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36",
}

var viewports = []Viewport{
	{1920, 1080}, {1366, 768}, {1536, 864}, {1440, 900},
	{1280, 720}, {1600, 900}, {2560, 1440}, {1280, 800},
}

// Locale and timezone are picked as a pair so they stay geographically
// consistent.
var locales = []struct {
	locale string
	tz     string
}{
	{"en-US", "America/New_York"},
	{"en-US", "America/Chicago"},
	{"en-US", "America/Los_Angeles"},
	{"en-GB", "Europe/London"},
	{"de-DE", "Europe/Berlin"},
	{"fr-FR", "Europe/Paris"},
}

// New returns a fingerprint, randomizing any field not pinned by overrides.
func New(ov Overrides) Profile {
	p := Profile{
		UserAgent: userAgents[rand.Intn(len(userAgents))],
		Viewport:  viewports[rand.Intn(len(viewports))],
	}
	loc := locales[rand.Intn(len(locales))]
	p.Locale, p.TimezoneID = loc.locale, loc.tz

	if ov.UserAgent != "" {
		p.UserAgent = ov.UserAgent
	}
	if ov.Viewport != nil {
		p.Viewport = *ov.Viewport
	}
	if ov.Locale != "" {
		p.Locale = ov.Locale
	}
	if ov.TimezoneID != "" {
		p.TimezoneID = ov.TimezoneID
	}

	p.Platform = platformFor(p.UserAgent)
	p.PatchScript = buildPatchScript(p)
	return p
}

func platformFor(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Macintosh"):
		return "MacIntel"
	case strings.Contains(userAgent, "Windows"):
		return "Win32"
	default:
		return "Linux x86_64"
	}
}

// buildPatchScript prefixes the shared stealth script with the per-profile
// variables it reads.
func buildPatchScript(p Profile) string {
	return fmt.Sprintf("var __scraperd_locale = %q;\nvar __scraperd_platform = %q;\n", p.Locale, p.Platform) + assets.StealthScript
}
