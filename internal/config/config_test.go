package config

import (
	"log/slog"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("WORKLOG_API_TOKEN", "tok-123")
	t.Setenv("WORKLOG_ACCOUNT_ID", "acct-1")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("port: want %d got %d", DefaultPort, cfg.Port)
	}
	if cfg.Host != DefaultHost {
		t.Errorf("host: want %q got %q", DefaultHost, cfg.Host)
	}
	if cfg.BasePath != DefaultBasePath {
		t.Errorf("base path: want %q got %q", DefaultBasePath, cfg.BasePath)
	}
	if !cfg.Stateful {
		t.Error("expected stateful mode by default")
	}
	if cfg.AllowedHosts != nil || cfg.AllowedOrigins != nil {
		t.Error("expected no host/origin restriction by default")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("log level: want info got %v", cfg.LogLevel)
	}
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("api base url: want %q got %q", DefaultAPIBaseURL, cfg.APIBaseURL)
	}
}

func TestLoadMissingCredential(t *testing.T) {
	t.Setenv("WORKLOG_ACCOUNT_ID", "acct-1")
	// Token deliberately unset.
	t.Setenv("WORKLOG_API_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing credential")
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("MCP_HTTP_PORT", "not-a-port")
	t.Setenv("MCP_SESSION_MODE", "bogus")
	t.Setenv("LOG_LEVEL", "shouting")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("malformed port should fall back: got %d", cfg.Port)
	}
	if !cfg.Stateful {
		t.Error("unknown session mode should fall back to stateful")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("unknown log level should fall back to info: got %v", cfg.LogLevel)
	}
}

func TestLoadStatelessMode(t *testing.T) {
	setRequired(t)
	t.Setenv("MCP_SESSION_MODE", "Stateless")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Stateful {
		t.Error("expected stateless mode")
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", DefaultBasePath},
		{"/mcp", "/mcp"},
		{"mcp", "/mcp"},
		{"/mcp/", "/mcp"},
		{"/", "/"},
		{"  /api/mcp/  ", "/api/mcp"},
	}
	for _, tc := range cases {
		if got := NormalizeBasePath(tc.in); got != tc.want {
			t.Errorf("NormalizeBasePath(%q): want %q got %q", tc.in, tc.want, got)
		}
	}
}

func TestAllowListParsing(t *testing.T) {
	setRequired(t)
	t.Setenv("MCP_ALLOWED_HOSTS", " localhost , 127.0.0.1, ,")
	t.Setenv("MCP_ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.AllowedHosts) != 2 {
		t.Fatalf("allowed hosts: want 2 entries got %v", cfg.AllowedHosts)
	}
	for _, h := range []string{"localhost", "127.0.0.1"} {
		if _, ok := cfg.AllowedHosts[h]; !ok {
			t.Errorf("allowed hosts missing %q", h)
		}
	}
	if _, ok := cfg.AllowedOrigins["https://app.example.com"]; !ok {
		t.Errorf("allowed origins missing entry: %v", cfg.AllowedOrigins)
	}
}
