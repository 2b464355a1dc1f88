// Package config resolves the process environment into an immutable snapshot
// consumed by the rest of the server. Resolution is deliberately forgiving:
// only the upstream Worklog credential and account are required; every other
// value falls back to a documented default when absent or malformed.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joeshaw/envdecode"
)

// Defaults applied when the environment is silent or malformed.
const (
	DefaultPort        = 8080
	DefaultHost        = "0.0.0.0"
	DefaultBasePath    = "/mcp"
	DefaultSessionMode = "stateful"
	DefaultAPIBaseURL  = "https://api.worklog.dev/v2"
)

// env mirrors the raw environment. Everything except the credential pair is
// kept as a string so a malformed value can fall back instead of failing.
type env struct {
	APIToken       string `env:"WORKLOG_API_TOKEN,required"`
	AccountID      string `env:"WORKLOG_ACCOUNT_ID,required"`
	APIBaseURL     string `env:"WORKLOG_API_BASE_URL,default=https://api.worklog.dev/v2"`
	Port           string `env:"MCP_HTTP_PORT,default=8080"`
	Host           string `env:"MCP_HTTP_HOST,default=0.0.0.0"`
	BasePath       string `env:"MCP_HTTP_PATH,default=/mcp"`
	SessionMode    string `env:"MCP_SESSION_MODE,default=stateful"`
	AllowedHosts   string `env:"MCP_ALLOWED_HOSTS"`
	AllowedOrigins string `env:"MCP_ALLOWED_ORIGINS"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
}

// Config is the immutable configuration snapshot shared read-only by all
// components.
type Config struct {
	APIToken   string
	AccountID  string
	APIBaseURL string

	Port     int
	Host     string
	BasePath string

	// Stateful controls whether the server retains session identity across
	// requests.
	Stateful bool

	// AllowedHosts and AllowedOrigins restrict the Host and Origin request
	// headers. A nil set means no restriction.
	AllowedHosts   map[string]struct{}
	AllowedOrigins map[string]struct{}

	LogLevel slog.Level
}

// Load resolves the environment into a Config. It fails only when the
// upstream credential or account identifier is missing; all other values
// normalize to defaults.
func Load() (*Config, error) {
	var e env
	if err := envdecode.Decode(&e); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return fromEnv(&e), nil
}

func fromEnv(e *env) *Config {
	cfg := &Config{
		APIToken:   e.APIToken,
		AccountID:  e.AccountID,
		APIBaseURL: strings.TrimRight(e.APIBaseURL, "/"),
		Port:       DefaultPort,
		Host:       DefaultHost,
		BasePath:   NormalizeBasePath(e.BasePath),
		Stateful:   !strings.EqualFold(strings.TrimSpace(e.SessionMode), "stateless"),
		LogLevel:   parseLogLevel(e.LogLevel),
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if p, err := strconv.Atoi(strings.TrimSpace(e.Port)); err == nil && p > 0 && p < 1<<16 {
		cfg.Port = p
	}
	if h := strings.TrimSpace(e.Host); h != "" {
		cfg.Host = h
	}
	cfg.AllowedHosts = parseList(e.AllowedHosts)
	cfg.AllowedOrigins = parseList(e.AllowedOrigins)
	return cfg
}

// NormalizeBasePath guarantees a single leading slash and strips one trailing
// slash unless the path is the root. An empty path maps to the default.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultBasePath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// parseList splits a comma-separated allow-list into a set. Whitespace is
// trimmed and empty entries discarded. An empty input yields nil, which
// downstream treats as "no restriction".
func parseList(s string) map[string]struct{} {
	var set map[string]struct{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{})
		}
		set[part] = struct{}{}
	}
	return set
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
