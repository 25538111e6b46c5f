package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowvex/scraperd/internal/config"
)

// fakeLaunch returns a cancellable context standing in for a live browser, and
// reports how many times it was called.
func fakeLaunch(calls *int) func(*config.RuntimeConfig) (context.CancelFunc, context.Context, context.CancelFunc, error) {
	return func(*config.RuntimeConfig) (context.CancelFunc, context.Context, context.CancelFunc, error) {
		*calls++
		ctx, cancel := context.WithCancel(context.Background())
		return func() {}, ctx, cancel, nil
	}
}

func TestAcquireLaunchesOnce(t *testing.T) {
	calls := 0
	e := New(&config.RuntimeConfig{})
	e.launch = fakeLaunch(&calls)

	if e.CurrentState() != StateUninitialized {
		t.Errorf("state = %v, want uninitialized", e.CurrentState())
	}

	c1, err := e.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	c2, err := e.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if c1 != c2 {
		t.Error("second acquire should reuse the cached context")
	}
	if calls != 1 {
		t.Errorf("launch calls = %d, want 1", calls)
	}
	if !e.Ready() {
		t.Error("engine should be ready after acquire")
	}
}

func TestAcquireRelaunchesAfterDisconnect(t *testing.T) {
	calls := 0
	e := New(&config.RuntimeConfig{})
	e.launch = fakeLaunch(&calls)

	c1, err := e.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate the browser process dying.
	e.mu.Lock()
	cancel := e.browserCancel
	e.mu.Unlock()
	cancel()

	waitFor(t, func() bool { return e.CurrentState() == StateDisconnected })
	if e.Ready() {
		t.Error("engine should not be ready after disconnect")
	}

	c2, err := e.Acquire(context.Background())
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if c1 == c2 {
		t.Error("re-acquire should not return the dead context")
	}
	if calls != 2 {
		t.Errorf("launch calls = %d, want 2", calls)
	}
	if !e.Ready() {
		t.Error("engine should be ready again after relaunch")
	}
}

func TestAcquireLaunchFailure(t *testing.T) {
	e := New(&config.RuntimeConfig{})
	e.launch = func(*config.RuntimeConfig) (context.CancelFunc, context.Context, context.CancelFunc, error) {
		return nil, nil, nil, errors.New("no chrome binary")
	}

	if _, err := e.Acquire(context.Background()); err == nil {
		t.Fatal("expected launch error")
	}
	if e.Ready() {
		t.Error("engine must not report ready after failed launch")
	}
	if e.CurrentState() != StateUninitialized {
		t.Errorf("state = %v, want uninitialized", e.CurrentState())
	}
}

func TestShutdown(t *testing.T) {
	calls := 0
	e := New(&config.RuntimeConfig{})
	e.launch = fakeLaunch(&calls)

	ctx, err := e.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	e.Shutdown()
	if e.Ready() {
		t.Error("engine should not be ready after shutdown")
	}
	if ctx.Err() == nil {
		t.Error("browser context should be cancelled on shutdown")
	}

	// Shutdown twice must not panic.
	e.Shutdown()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
