// Package config loads client and proxy settings from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultHost is the address of a local Ollama server.
	DefaultHost = "http://127.0.0.1:11434"

	// DefaultModel is used when neither the config nor a flag names one.
	DefaultModel = "llama3.2"

	// DefaultListen is the proxy's listen address.
	DefaultListen = ":8080"

	// EnvHost and EnvAPIKey override the file.
	EnvHost   = "OLLAMA_HOST"
	EnvAPIKey = "OLLAMA_API_KEY"
)

// Config holds everything ollamactl and the client need to reach a server.
type Config struct {
	Host          string   `toml:"host"`            // Ollama server address
	APIKey        string   `toml:"api_key"`         // Bearer token, optional
	Model         string   `toml:"model"`           // Default model
	Timeout       Duration `toml:"timeout"`         // Per-request deadline; 0 means none
	MaxRecordSize int      `toml:"max_record_size"` // Largest accepted NDJSON record in bytes; 0 keeps the default
	Debug         bool     `toml:"debug"`

	Proxy Proxy `toml:"proxy"`
}

// Proxy configures the recording proxy.
type Proxy struct {
	Listen   string `toml:"listen"`   // Address to listen on (e.g., ":8080")
	Upstream string `toml:"upstream"` // Server to forward to; defaults to Host
	SQLite   string `toml:"sqlite"`   // Path to the SQLite transcript store; empty keeps it in memory
}

// Duration is a time.Duration written as a string ("30s", "2m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Host:  DefaultHost,
		Model: DefaultModel,
		Proxy: Proxy{Listen: DefaultListen},
	}
}

// DefaultPath returns ~/.config/ollamactl/config.toml, or "" if the user
// config directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ollamactl", "config.toml")
}

// Load reads the file at path over the defaults, then applies the
// environment. A missing file is not an error when path is the default one.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		_, err := toml.DecodeFile(path, cfg)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults without consulting the
// environment.
func Parse(data string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides the host and API key from OLLAMA_HOST and OLLAMA_API_KEY.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvHost); ok && strings.TrimSpace(v) != "" {
		c.Host = v
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.APIKey = v
	}
}

// Normalize fills defaults and turns host values such as "0.0.0.0:11434" or
// "localhost" into full URLs.
func (c *Config) Normalize() error {
	host, err := NormalizeHost(c.Host)
	if err != nil {
		return err
	}
	c.Host = host

	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxRecordSize < 0 {
		return fmt.Errorf("max_record_size must not be negative, got %d", c.MaxRecordSize)
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}

	if c.Proxy.Listen == "" {
		c.Proxy.Listen = DefaultListen
	}
	if c.Proxy.Upstream == "" {
		c.Proxy.Upstream = c.Host
	} else if c.Proxy.Upstream, err = NormalizeHost(c.Proxy.Upstream); err != nil {
		return fmt.Errorf("proxy upstream: %w", err)
	}
	return nil
}

// NormalizeHost returns host as an http(s) URL without a trailing slash.
// A bare host ("localhost", "0.0.0.0:11434") means http on port 11434 unless
// it names a port. A URL with a scheme keeps its port, or lack of one, as
// given. An unspecified bind address (0.0.0.0, ::) is replaced by the
// loopback address.
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return DefaultHost, nil
	}
	bare := !strings.Contains(host, "://")
	if bare {
		host = "http://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid host %q: scheme must be http or https", host)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid host %q: missing hostname", host)
	}

	hostname := u.Hostname()
	switch hostname {
	case "0.0.0.0":
		hostname = "127.0.0.1"
	case "::":
		hostname = "::1"
	}
	port := u.Port()
	if port == "" && bare {
		port = "11434"
	}
	if port != "" {
		u.Host = joinHostPort(hostname, port)
	} else if strings.Contains(hostname, ":") {
		u.Host = "[" + hostname + "]"
	} else {
		u.Host = hostname
	}

	return strings.TrimSuffix(u.String(), "/"), nil
}

func joinHostPort(host, port string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}
