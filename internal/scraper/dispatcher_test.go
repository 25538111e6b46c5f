package scraper

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/flowvex/scraperd/internal/config"
	"github.com/flowvex/scraperd/internal/session"
)

func newTestDispatcher() *Dispatcher {
	cfg := &config.RuntimeConfig{
		NavigateTimeout: 30 * time.Second,
		ActionTimeout:   15 * time.Second,
		WaitTimeout:     5 * time.Second,
		MaxSessions:     20,
	}
	return NewDispatcher(session.NewRegistry(nil, cfg), cfg)
}

func TestExecuteUnknownCommand(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Execute(context.Background(), Request{Action: Action{Type: "teleport"}})
	if resp.Success {
		t.Fatal("unknown command must fail")
	}
	if !strings.Contains(resp.Error, "unknown command type") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestExecuteEmptyCommand(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Execute(context.Background(), Request{})
	if resp.Success {
		t.Fatal("empty command must fail")
	}
}

func TestExecuteMissingSession(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Execute(context.Background(), Request{
		Action:    Action{Type: CmdGetText, Selector: "h1"},
		SessionID: "no-such-session",
	})
	if resp.Success {
		t.Fatal("command against a missing session must fail")
	}
	if !strings.Contains(resp.Error, "session not found") {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.ContextID != "no-such-session" {
		t.Errorf("context_id = %q, want the requested id echoed", resp.ContextID)
	}
}

func TestExecuteCloseIsIdempotent(t *testing.T) {
	d := newTestDispatcher()

	for range 2 {
		resp := d.Execute(context.Background(), Request{
			Action:    Action{Type: CmdClose},
			SessionID: "already-gone",
		})
		if !resp.Success {
			t.Fatalf("close must succeed for unknown ids, got error %q", resp.Error)
		}
		data, ok := resp.Data.(map[string]any)
		if !ok || data["closed"] != true {
			t.Errorf("data = %#v", resp.Data)
		}
	}
}

func TestExecuteOpenRequiresURL(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Execute(context.Background(), Request{Action: Action{Type: CmdOpen}})
	if resp.Success {
		t.Fatal("open without a url must fail")
	}
	if !strings.Contains(resp.Error, "url required") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestTimeoutFor(t *testing.T) {
	d := newTestDispatcher()

	tests := []struct {
		name string
		cmd  CommandType
		cfg  CommandConfig
		want time.Duration
	}{
		{"override wins", CmdGetText, CommandConfig{TimeoutMs: 2500}, 2500 * time.Millisecond},
		{"open uses navigate default", CmdOpen, CommandConfig{}, 30 * time.Second},
		{"wait uses wait default", CmdWait, CommandConfig{}, 5 * time.Second},
		{"action default", CmdClick, CommandConfig{}, 15 * time.Second},
		{"batch ceiling", CmdDeepScrape, CommandConfig{}, 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.timeoutFor(tt.cmd, tt.cfg); got != tt.want {
				t.Errorf("timeoutFor(%s) = %v, want %v", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestExecTimeoutGivesWaitHeadroom(t *testing.T) {
	d := newTestDispatcher()

	// The wait routine owns its soft-fail deadline; if the command context
	// expires at the same instant, the found:false outcome can never be
	// reported. The budget must strictly exceed the deadline.
	if got, want := d.execTimeout(CmdWait, CommandConfig{}), d.timeoutFor(CmdWait, CommandConfig{}); got <= want {
		t.Errorf("execTimeout(wait) = %v, want > soft-fail deadline %v", got, want)
	}
	if got := d.execTimeout(CmdWait, CommandConfig{TimeoutMs: 700}); got <= 700*time.Millisecond {
		t.Errorf("execTimeout(wait, override) = %v, want headroom past 700ms", got)
	}

	// Other commands have no internal deadline and get the budget as-is.
	if got, want := d.execTimeout(CmdClick, CommandConfig{}), d.timeoutFor(CmdClick, CommandConfig{}); got != want {
		t.Errorf("execTimeout(click) = %v, want %v", got, want)
	}
}

func TestCrawlOptionsFromConfig(t *testing.T) {
	opts := crawlOptions(CommandConfig{
		Concurrency:      5,
		ReuseContext:     true,
		ContentSelectors: []string{".story"},
		MaxContentLength: 800,
		CollectMetadata:  true,
		BlockImages:      true,
	})

	if opts.Concurrency != 5 || !opts.ReuseContext || !opts.CollectMetadata || !opts.BlockImages {
		t.Errorf("opts = %+v", opts)
	}
	if opts.MaxContentLength != 800 || len(opts.ContentSelectors) != 1 {
		t.Errorf("opts = %+v", opts)
	}
}
