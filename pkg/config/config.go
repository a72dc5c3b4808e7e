package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvListen       = "WEB_REQUEST_PRIVACY_LISTEN"
	EnvLogLevel     = "WEB_REQUEST_PRIVACY_LOG_LEVEL"
	EnvFullFidelity = "WEB_REQUEST_PRIVACY_FULL_FIDELITY"

	DefaultListenAddress = "127.0.0.1:8787"
	DefaultMaxScanBytes  = 1 << 20
)

var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"json", "console"}
)

type Config struct {
	ListenAddress       string        `yaml:"listen_address"`
	LogLevel            string        `yaml:"log_level"`
	LogFormat           string        `yaml:"log_format"`
	ExtraTrackerDomains []string      `yaml:"extra_tracker_domains"`
	Pii                 PiiConfig     `yaml:"pii"`
	Browser             BrowserConfig `yaml:"browser"`
}

type PiiConfig struct {
	MaxScanBytes int `yaml:"max_scan_bytes"`
}

// BrowserConfig configures the live DevTools feed. An empty ControlUrl launches a
// local browser.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless"`
	ControlUrl   string `yaml:"control_url"`
	FullFidelity bool   `yaml:"full_fidelity"`
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		LogLevel:      "info",
		LogFormat:     "json",
		Pii:           PiiConfig{MaxScanBytes: DefaultMaxScanBytes},
		Browser:       BrowserConfig{Headless: true},
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("os read file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("yaml unmarshal: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("os mkdir all: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("os write file: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if listen := os.Getenv(EnvListen); listen != "" {
		c.ListenAddress = listen
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = strings.ToLower(level)
	}
	if fullFidelity, err := strconv.ParseBool(os.Getenv(EnvFullFidelity)); err == nil {
		c.Browser.FullFidelity = fullFidelity
	}
}

// IsLoopback reports whether address binds only to a loopback interface.
func IsLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Config) Validate() error {
	if !IsLoopback(c.ListenAddress) {
		return fmt.Errorf("%w: %q", webRequestPrivacyErrors.ErrNonLoopbackListen, c.ListenAddress)
	}
	if !slices.Contains(ValidLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.LogLevel, ValidLogLevels)
	}
	if !slices.Contains(ValidLogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.LogFormat, ValidLogFormats)
	}
	if c.Pii.MaxScanBytes <= 0 {
		return fmt.Errorf("invalid pii max scan bytes: %d", c.Pii.MaxScanBytes)
	}
	return nil
}
