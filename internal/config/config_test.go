package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880
public_url = "https://proxy.example.net/"
admin_prefix = "/_admin"

[gateway]
param = "target"

[upstream]
timeout_seconds = 15
dial_timeout_seconds = 5
idle_connections = 50

[log]
level = "debug"
format = "text"

[metrics]
enabled = true
path = "/_admin/prom"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Server.PublicURL != "https://proxy.example.net" {
		t.Errorf("Server.PublicURL = %q, want trailing slash trimmed", cfg.Server.PublicURL)
	}
	if cfg.Server.AdminPrefix != "/_admin" {
		t.Errorf("Server.AdminPrefix = %q, want %q", cfg.Server.AdminPrefix, "/_admin")
	}
	if cfg.Gateway.Param != "target" {
		t.Errorf("Gateway.Param = %q, want %q", cfg.Gateway.Param, "target")
	}
	if cfg.Upstream.TimeoutSeconds != 15 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 15)
	}
	if cfg.Upstream.DialTimeoutSeconds != 5 {
		t.Errorf("Upstream.DialTimeoutSeconds = %d, want %d", cfg.Upstream.DialTimeoutSeconds, 5)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.Metrics.Path != "/_admin/prom" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/_admin/prom")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "# empty\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.BodyMaxBytes != 10*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 10*1024*1024)
	}
	if cfg.Server.AdminPrefix != "/_framegate" {
		t.Errorf("default Server.AdminPrefix = %q, want %q", cfg.Server.AdminPrefix, "/_framegate")
	}
	if cfg.Server.PublicURL != "" {
		t.Errorf("default Server.PublicURL = %q, want empty", cfg.Server.PublicURL)
	}
	if cfg.Gateway.Param != "url" {
		t.Errorf("default Gateway.Param = %q, want %q", cfg.Gateway.Param, "url")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("default Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Upstream.DialTimeoutSeconds != 30 {
		t.Errorf("default Upstream.DialTimeoutSeconds = %d, want %d", cfg.Upstream.DialTimeoutSeconds, 30)
	}
	if cfg.Upstream.IdleConnections != 100 {
		t.Errorf("default Upstream.IdleConnections = %d, want %d", cfg.Upstream.IdleConnections, 100)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Metrics.Path != "/_framegate/metrics" {
		t.Errorf("default Metrics.Path = %q, want %q", cfg.Metrics.Path, "/_framegate/metrics")
	}
}

func TestLoad_MetricsPathFollowsAdminPrefix(t *testing.T) {
	path := writeConfig(t, `
[server]
admin_prefix = "/ops"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/ops/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/ops/metrics")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing explicit file, got nil")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeConfig(t, "[server\nport = ")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for malformed TOML, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %q, want mention of parse", err)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[gateway]
param = "url"

[log]
level = "info"
`)

	cli := &CLI{
		Config:    path,
		Host:      "127.0.0.1",
		Port:      3000,
		Param:     "u",
		PublicURL: "https://gw.example.org",
		LogLevel:  "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Gateway.Param != "u" {
		t.Errorf("Gateway.Param = %q, want %q (CLI override)", cfg.Gateway.Param, "u")
	}
	if cfg.Server.PublicURL != "https://gw.example.org" {
		t.Errorf("Server.PublicURL = %q, want %q (CLI override)", cfg.Server.PublicURL, "https://gw.example.org")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"negative port", "[server]\nport = -1\n", "server.port"},
		{"port too large", "[server]\nport = 70000\n", "server.port"},
		{"negative body_max_bytes", "[server]\nbody_max_bytes = -1\n", "server.body_max_bytes"},
		{"negative timeout", "[upstream]\ntimeout_seconds = -5\n", "upstream.timeout_seconds"},
		{"negative dial timeout", "[upstream]\ndial_timeout_seconds = -1\n", "upstream.dial_timeout_seconds"},
		{"negative idle connections", "[upstream]\nidle_connections = -1\n", "upstream.idle_connections"},
		{"public_url ftp", "[server]\npublic_url = \"ftp://proxy.test\"\n", "server.public_url"},
		{"public_url without host", "[server]\npublic_url = \"https://\"\n", "server.public_url"},
		{"public_url with path", "[server]\npublic_url = \"https://proxy.test/app\"\n", "server.public_url"},
		{"param with space", "[gateway]\nparam = \"my url\"\n", "gateway.param"},
		{"param with ampersand", "[gateway]\nparam = \"a&b\"\n", "gateway.param"},
		{"admin prefix root", "[server]\nadmin_prefix = \"/\"\n", "server.admin_prefix"},
		{"admin prefix relative", "[server]\nadmin_prefix = \"admin\"\n", "server.admin_prefix"},
		{"admin prefix trailing slash", "[server]\nadmin_prefix = \"/admin/\"\n", "server.admin_prefix"},
		{"invalid log level", "[log]\nlevel = \"verbose\"\n", "log.level"},
		{"invalid log format", "[log]\nformat = \"xml\"\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatalf("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MetricsPathValidation(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"no leading slash", "metrics", "must start with '/'"},
		{"outside admin prefix", "/metrics", "admin prefix"},
		{"healthz", "/_framegate/healthz", "conflicts"},
		{"under status", "/_framegate/status/metrics", "conflicts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
[metrics]
enabled = true
path = "`+tt.path+`"
`)
			_, err := Load(cliWithPath(path))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = false
path = "bad-no-slash"
`)

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := writeConfig(t, "# test")

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestWarnPermissions_NoFile(t *testing.T) {
	cfg := &Config{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no output without a config file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	path := writeConfig(t, "[gateway]\nparam = \"url\"\n")

	got := findConfigInPaths([]string{path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	path1 := writeConfig(t, "")
	path2 := writeConfig(t, "")

	got := findConfigInPaths([]string{path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
