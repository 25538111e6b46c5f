package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type RuntimeConfig struct {
	Bind             string
	Port             string
	Token            string
	StateDir         string
	Headless         bool
	ChromeBinary     string
	ChromeExtraFlags string
	BlockImages      bool
	BlockMedia       bool
	MaxSessions      int

	ActionTimeout    time.Duration
	NavigateTimeout  time.Duration
	WaitTimeout      time.Duration
	ShutdownTimeout  time.Duration
	SweepInterval    time.Duration
	IdleTTL          time.Duration
	BatchConcurrency int
	BatchItemTimeout time.Duration
	ContentMaxChars  int
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}

func (c *RuntimeConfig) ListenAddr() string {
	return c.Bind + ":" + c.Port
}

// FileConfig is the optional JSON config file overlay. Env vars win.
type FileConfig struct {
	Port         string `json:"port"`
	Token        string `json:"token,omitempty"`
	StateDir     string `json:"stateDir"`
	Headless     *bool  `json:"headless,omitempty"`
	MaxSessions  *int   `json:"maxSessions,omitempty"`
	NavigateSec  int    `json:"navigateSec,omitempty"`
	IdleTTLSec   int    `json:"idleTtlSec,omitempty"`
	BatchWorkers *int   `json:"batchWorkers,omitempty"`
}

func Load() *RuntimeConfig {
	cfg := &RuntimeConfig{
		Bind:             envOr("SCRAPERD_BIND", "127.0.0.1"),
		Port:             envOr("SCRAPERD_PORT", "9855"),
		Token:            os.Getenv("SCRAPERD_TOKEN"),
		StateDir:         envOr("SCRAPERD_STATE_DIR", filepath.Join(homeDir(), ".scraperd")),
		Headless:         envBoolOr("SCRAPERD_HEADLESS", true),
		ChromeBinary:     os.Getenv("CHROME_BINARY"),
		ChromeExtraFlags: os.Getenv("CHROME_FLAGS"),
		BlockImages:      envBoolOr("SCRAPERD_BLOCK_IMAGES", false),
		BlockMedia:       envBoolOr("SCRAPERD_BLOCK_MEDIA", false),
		MaxSessions:      envIntOr("SCRAPERD_MAX_SESSIONS", 20),

		ActionTimeout:    15 * time.Second,
		NavigateTimeout:  time.Duration(envIntOr("SCRAPERD_NAV_TIMEOUT_MS", 30000)) * time.Millisecond,
		WaitTimeout:      time.Duration(envIntOr("SCRAPERD_WAIT_TIMEOUT_MS", 5000)) * time.Millisecond,
		ShutdownTimeout:  10 * time.Second,
		SweepInterval:    time.Duration(envIntOr("SCRAPERD_SWEEP_INTERVAL_MS", 60000)) * time.Millisecond,
		IdleTTL:          time.Duration(envIntOr("SCRAPERD_IDLE_TTL_MS", 300000)) * time.Millisecond,
		BatchConcurrency: envIntOr("SCRAPERD_BATCH_CONCURRENCY", 3),
		BatchItemTimeout: time.Duration(envIntOr("SCRAPERD_BATCH_TIMEOUT_MS", 15000)) * time.Millisecond,
		ContentMaxChars:  envIntOr("SCRAPERD_CONTENT_MAX_CHARS", 5000),
	}

	configPath := envOr("SCRAPERD_CONFIG", filepath.Join(homeDir(), ".scraperd", "config.json"))

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg
	}

	if fc.Port != "" && os.Getenv("SCRAPERD_PORT") == "" {
		cfg.Port = fc.Port
	}
	if fc.Token != "" && os.Getenv("SCRAPERD_TOKEN") == "" {
		cfg.Token = fc.Token
	}
	if fc.StateDir != "" && os.Getenv("SCRAPERD_STATE_DIR") == "" {
		cfg.StateDir = fc.StateDir
	}
	if fc.Headless != nil && os.Getenv("SCRAPERD_HEADLESS") == "" {
		cfg.Headless = *fc.Headless
	}
	if fc.MaxSessions != nil && os.Getenv("SCRAPERD_MAX_SESSIONS") == "" {
		cfg.MaxSessions = *fc.MaxSessions
	}
	if fc.NavigateSec > 0 && os.Getenv("SCRAPERD_NAV_TIMEOUT_MS") == "" {
		cfg.NavigateTimeout = time.Duration(fc.NavigateSec) * time.Second
	}
	if fc.IdleTTLSec > 0 && os.Getenv("SCRAPERD_IDLE_TTL_MS") == "" {
		cfg.IdleTTL = time.Duration(fc.IdleTTLSec) * time.Second
	}
	if fc.BatchWorkers != nil && *fc.BatchWorkers > 0 && os.Getenv("SCRAPERD_BATCH_CONCURRENCY") == "" {
		cfg.BatchConcurrency = *fc.BatchWorkers
	}

	return cfg
}

func MaskToken(t string) string {
	if t == "" {
		return "(none)"
	}
	if len(t) <= 8 {
		return "***"
	}
	return t[:4] + "..." + t[len(t)-4:]
}
