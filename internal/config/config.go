// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/framegate/config.toml",
	"configs/config.toml",
}

const (
	defaultAdminPrefix = "/_framegate"
	defaultParam       = "url"
)

// paramPattern restricts the target parameter to characters that need no
// escaping in a query string.
var paramPattern = regexp.MustCompile(`^[A-Za-z0-9_.~-]+$`)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Param     string `kong:"help='Query parameter carrying the target URL (overrides config).',env='FRAMEGATE_PARAM'"`
	PublicURL string `kong:"name='public-url',help='Externally visible gateway origin used in rewritten redirects (overrides config).',env='PUBLIC_URL'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64  `toml:"body_max_bytes"`
	// PublicURL overrides the origin derived from the inbound request when
	// rewriting redirects (useful behind TLS-terminating load balancers).
	PublicURL   string `toml:"public_url"`
	AdminPrefix string `toml:"admin_prefix"`
}

// GatewayConfig holds target resolution settings.
type GatewayConfig struct {
	Param string `toml:"param"`
}

// UpstreamConfig holds outbound connection settings.
type UpstreamConfig struct {
	// TimeoutSeconds bounds the wait for target response headers. Bodies
	// may stream for longer; client disconnects cancel them.
	TimeoutSeconds     int `toml:"timeout_seconds"`
	DialTimeoutSeconds int `toml:"dial_timeout_seconds"`
	IdleConnections    int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/framegate/config.toml then configs/config.toml; if neither exists the
// defaults are used.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Param != "" {
		c.Gateway.Param = cli.Param
	}
	if cli.PublicURL != "" {
		c.Server.PublicURL = cli.PublicURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.DialTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.dial_timeout_seconds must be non-negative; got %d", c.Upstream.DialTimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}

	// Public URL: optional, but must be a bare http(s) origin.
	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil {
			return fmt.Errorf("server.public_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server.public_url must use http or https; got %q", c.Server.PublicURL)
		}
		if u.Host == "" {
			return fmt.Errorf("server.public_url must include a host; got %q", c.Server.PublicURL)
		}
		if strings.TrimSuffix(u.Path, "/") != "" || u.RawQuery != "" {
			return fmt.Errorf("server.public_url must be an origin without path or query; got %q", c.Server.PublicURL)
		}
	}

	if c.Gateway.Param != "" && !paramPattern.MatchString(c.Gateway.Param) {
		return fmt.Errorf("gateway.param must match %s; got %q", paramPattern, c.Gateway.Param)
	}

	prefix := c.Server.AdminPrefix
	if prefix != "" {
		if prefix[0] != '/' || prefix == "/" || strings.HasSuffix(prefix, "/") {
			return fmt.Errorf("server.admin_prefix must start with '/', be non-root and have no trailing slash; got %q", prefix)
		}
	} else {
		prefix = defaultAdminPrefix
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Every path outside the admin prefix belongs to proxied targets, so the
	// metrics endpoint must live inside it (only checked when enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		return validateMetricsPath(c.Metrics.Path, prefix)
	}

	return nil
}

func validateMetricsPath(p, prefix string) error {
	if p[0] != '/' {
		return fmt.Errorf("metrics.path must start with '/'; got %q", p)
	}
	if !strings.HasPrefix(p, prefix+"/") {
		return fmt.Errorf("metrics.path %q must be under the admin prefix %q", p, prefix)
	}
	for _, reserved := range []string{prefix + "/healthz", prefix + "/status"} {
		if p == reserved || strings.HasPrefix(p, reserved+"/") {
			return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
		}
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	c.Server.PublicURL = strings.TrimSuffix(c.Server.PublicURL, "/")
	if c.Server.AdminPrefix == "" {
		c.Server.AdminPrefix = defaultAdminPrefix
	}
	if c.Gateway.Param == "" {
		c.Gateway.Param = defaultParam
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 60
	}
	if c.Upstream.DialTimeoutSeconds == 0 {
		c.Upstream.DialTimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = c.Server.AdminPrefix + "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("cannot stat config file", "path", c.filePath, "err", err)
		}
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
