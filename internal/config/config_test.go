package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	key := "SCRAPERD_TEST_ENV"
	fallback := "default"

	_ = os.Unsetenv(key)
	if got := envOr(key, fallback); got != fallback {
		t.Errorf("envOr() = %v, want %v", got, fallback)
	}

	val := "set"
	_ = os.Setenv(key, val)
	defer os.Unsetenv(key)
	if got := envOr(key, fallback); got != val {
		t.Errorf("envOr() = %v, want %v", got, val)
	}
}

func TestEnvIntOr(t *testing.T) {
	key := "SCRAPERD_TEST_INT"
	fallback := 42

	_ = os.Unsetenv(key)
	if got := envIntOr(key, fallback); got != fallback {
		t.Errorf("envIntOr() = %v, want %v", got, fallback)
	}

	_ = os.Setenv(key, "7")
	defer os.Unsetenv(key)
	if got := envIntOr(key, fallback); got != 7 {
		t.Errorf("envIntOr() = %v, want 7", got)
	}

	_ = os.Setenv(key, "not-a-number")
	if got := envIntOr(key, fallback); got != fallback {
		t.Errorf("envIntOr() = %v, want fallback on garbage", got)
	}

	_ = os.Setenv(key, "-5")
	if got := envIntOr(key, fallback); got != fallback {
		t.Errorf("envIntOr() = %v, want fallback on negative", got)
	}
}

func TestEnvBoolOr(t *testing.T) {
	key := "SCRAPERD_TEST_BOOL"

	_ = os.Unsetenv(key)
	if got := envBoolOr(key, true); !got {
		t.Error("envBoolOr() should return fallback when unset")
	}

	cases := map[string]bool{
		"1": true, "true": true, "YES": true, "on": true,
		"0": false, "false": false, "No": false, "off": false,
	}
	defer os.Unsetenv(key)
	for v, want := range cases {
		_ = os.Setenv(key, v)
		if got := envBoolOr(key, !want); got != want {
			t.Errorf("envBoolOr(%q) = %v, want %v", v, got, want)
		}
	}

	_ = os.Setenv(key, "maybe")
	if got := envBoolOr(key, true); !got {
		t.Error("envBoolOr() should return fallback on garbage")
	}
}

func TestLoadDefaults(t *testing.T) {
	// Point the file config somewhere that does not exist so env defaults win.
	_ = os.Setenv("SCRAPERD_CONFIG", "/nonexistent/config.json")
	defer os.Unsetenv("SCRAPERD_CONFIG")

	cfg := Load()

	if cfg.Port != "9855" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.NavigateTimeout != 30*time.Second {
		t.Errorf("NavigateTimeout = %v", cfg.NavigateTimeout)
	}
	if cfg.WaitTimeout != 5*time.Second {
		t.Errorf("WaitTimeout = %v", cfg.WaitTimeout)
	}
	if cfg.BatchConcurrency != 3 {
		t.Errorf("BatchConcurrency = %d", cfg.BatchConcurrency)
	}
	if cfg.BatchItemTimeout != 15*time.Second {
		t.Errorf("BatchItemTimeout = %v", cfg.BatchItemTimeout)
	}
	if cfg.ContentMaxChars != 5000 {
		t.Errorf("ContentMaxChars = %d", cfg.ContentMaxChars)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}
	if cfg.IdleTTL != 5*time.Minute {
		t.Errorf("IdleTTL = %v", cfg.IdleTTL)
	}
	if !cfg.Headless {
		t.Error("Headless should default to true")
	}
}

func TestListenAddr(t *testing.T) {
	cfg := &RuntimeConfig{Bind: "0.0.0.0", Port: "1234"}
	if got := cfg.ListenAddr(); got != "0.0.0.0:1234" {
		t.Errorf("ListenAddr() = %q", got)
	}
}

func TestMaskToken(t *testing.T) {
	if MaskToken("") != "(none)" {
		t.Error("empty token should mask to (none)")
	}
	if MaskToken("short") != "***" {
		t.Error("short token should mask fully")
	}
	if got := MaskToken("abcdefghijkl"); got != "abcd...ijkl" {
		t.Errorf("MaskToken() = %q", got)
	}
}
