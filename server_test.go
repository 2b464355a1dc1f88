package worklogmcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/worklog-dev/worklog-mcp-go/internal/config"
	"github.com/worklog-dev/worklog-mcp-go/sessions"
)

func testConfig() *config.Config {
	return &config.Config{
		APIToken:   "tok-test",
		AccountID:  "acct-1",
		APIBaseURL: "http://127.0.0.1:1", // never dialed by these tests
		Port:       0,                    // ephemeral
		Host:       "127.0.0.1",
		BasePath:   "/mcp",
		Stateful:   true,
	}
}

func TestServerLifecycle(t *testing.T) {
	srv, err := NewServer(testConfig())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.WaitUntilReady(ctx); err != nil {
		t.Fatalf("WaitUntilReady failed: %v", err)
	}
	if !srv.Listening() {
		t.Fatal("server should report listening after ready")
	}
	addr := srv.Addr()
	if addr == nil {
		t.Fatal("Addr should be non-nil while listening")
	}

	// The transport gate is reachable on the bound socket.
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/mcp", addr),
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`))
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("initialize request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("initialize: want 200 got %d", res.StatusCode)
	}
	if srv.Registry().Len() != 1 {
		t.Errorf("registry should hold the new session, got %d", srv.Registry().Len())
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if srv.Listening() {
		t.Error("server should not report listening after shutdown")
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start should return nil after graceful shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}

	// Sessions were drained: the registry refuses new ones.
	if _, err := srv.Registry().CreateSession(); !errors.Is(err, sessions.ErrRegistryDraining) {
		t.Errorf("want ErrRegistryDraining after shutdown, got %v", err)
	}

	// Idempotent.
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown should be a no-op, got %v", err)
	}
}

func TestStartServerStopIsOneShot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, stop, err := StartServer(ctx, testConfig())
	if err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}
	if !srv.Listening() {
		t.Fatal("server should be listening after StartServer returns")
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	if err := stop(shCtx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if srv.Listening() {
		t.Error("server should be stopped")
	}
	// Further invocations, including the ctx-cancel path, are absorbed.
	if err := stop(shCtx); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
	cancel()
}

func TestStartBindFailurePropagates(t *testing.T) {
	// Occupy a port so the server cannot bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	cfg := testConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := StartServer(ctx, cfg); err == nil {
		t.Fatal("expected a bind error")
	}
}

func TestNewServerRequiresConfig(t *testing.T) {
	if _, err := NewServer(nil); err == nil {
		t.Fatal("expected an error for a nil config")
	}
	cfg := testConfig()
	cfg.APIToken = ""
	if _, err := NewServer(cfg); err == nil {
		t.Fatal("expected an error for a missing upstream token")
	}
}
