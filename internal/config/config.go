// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/forward-proxy/config.toml",
	"configs/config.toml",
}

// defaultUserAgent is the identity the proxy presents to origin servers in
// place of whatever User-Agent the client sent.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:3.10.0) Gecko/20230411 Firefox/63.0.1"

// CLI holds command-line arguments parsed by Kong. The listen port is the
// single positional argument; everything else is an optional override.
type CLI struct {
	Port     string `kong:"arg,optional,help='TCP port to listen on (overrides config).'"`
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Proxy   ProxyConfig   `toml:"proxy"`
	Admin   AdminConfig   `toml:"admin"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ProxyConfig holds the forwarding listener settings.
type ProxyConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	UserAgent string `toml:"user_agent"`

	MaxLineBytes    int `toml:"max_line_bytes"`
	MaxRequestBytes int `toml:"max_request_bytes"`
	RelayChunkBytes int `toml:"relay_chunk_bytes"`

	MaxConnections        int     `toml:"max_connections"`         // 0 disables the cap
	SessionTimeoutSeconds int     `toml:"session_timeout_seconds"` // 0 disables the deadline
	AcceptRatePerSecond   float64 `toml:"accept_rate_per_second"`  // 0 disables the limiter
}

// AdminConfig holds the operational HTTP server settings.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
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

// Load reads the TOML config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/forward-proxy/config.toml then configs/config.toml. The proxy runs
// fine without a config file; the positional port argument is enough.
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

	if err := cfg.applyCLI(cli); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-empty CLI arguments.
func (c *Config) applyCLI(cli *CLI) error {
	if cli.Port != "" {
		port, err := strconv.Atoi(cli.Port)
		if err != nil {
			return fmt.Errorf("config: port argument %q is not a number", cli.Port)
		}
		c.Proxy.Port = port
	}
	if cli.Host != "" {
		c.Proxy.Host = cli.Host
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	return nil
}

func (c *Config) validate() error {
	if c.Proxy.Port < 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port must be 0–65535; got %d", c.Proxy.Port)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be 0–65535; got %d", c.Admin.Port)
	}
	if c.Proxy.MaxLineBytes < 0 {
		return fmt.Errorf("proxy.max_line_bytes must be non-negative; got %d", c.Proxy.MaxLineBytes)
	}
	if c.Proxy.MaxRequestBytes < 0 {
		return fmt.Errorf("proxy.max_request_bytes must be non-negative; got %d", c.Proxy.MaxRequestBytes)
	}
	if c.Proxy.RelayChunkBytes < 0 {
		return fmt.Errorf("proxy.relay_chunk_bytes must be non-negative; got %d", c.Proxy.RelayChunkBytes)
	}
	if c.Proxy.MaxConnections < 0 {
		return fmt.Errorf("proxy.max_connections must be non-negative; got %d", c.Proxy.MaxConnections)
	}
	if c.Proxy.SessionTimeoutSeconds < 0 {
		return fmt.Errorf("proxy.session_timeout_seconds must be non-negative; got %d", c.Proxy.SessionTimeoutSeconds)
	}
	if c.Proxy.AcceptRatePerSecond < 0 {
		return fmt.Errorf("proxy.accept_rate_per_second must be non-negative; got %v", c.Proxy.AcceptRatePerSecond)
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

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For most integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. MaxConnections,
// SessionTimeoutSeconds and AcceptRatePerSecond are the exception: in a
// config file zero genuinely means "disabled", so their defaults apply only
// when no config file was loaded at all.
func (c *Config) setDefaults() {
	if c.Proxy.Host == "" {
		c.Proxy.Host = "0.0.0.0"
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = 8080
	}
	if c.Proxy.UserAgent == "" {
		c.Proxy.UserAgent = defaultUserAgent
	}
	if c.Proxy.MaxLineBytes == 0 {
		c.Proxy.MaxLineBytes = 8 * 1024
	}
	if c.Proxy.MaxRequestBytes == 0 {
		c.Proxy.MaxRequestBytes = 64 * 1024
	}
	if c.Proxy.RelayChunkBytes == 0 {
		c.Proxy.RelayChunkBytes = 32 * 1024
	}
	if c.filePath == "" {
		// Bare invocation: cap workers and bound session lifetime so a
		// stalled peer cannot hold sockets forever.
		c.Proxy.MaxConnections = 1024
		c.Proxy.SessionTimeoutSeconds = 300
	}
	if c.Admin.Host == "" {
		c.Admin.Host = "0.0.0.0"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 8081
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
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

// Addr returns the proxy listen address as host:port.
func (c *ProxyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionTimeout returns the per-connection deadline, or zero when disabled.
func (c *ProxyConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
