// Package config provides unified configuration loading for usersim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/usersim/internal/panel"
	"gopkg.in/yaml.v3"
)

// UsersimConfig contains all usersim configuration settings.
type UsersimConfig struct {
	// Backend locates the application whose users are simulated.
	Backend BackendConfig `json:"backend" yaml:"backend"`

	// Simulation contains poll loop settings.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Server configures the local control panel server.
	Server ServerConfig `json:"server" yaml:"server"`

	// Notify selects notification sinks.
	Notify NotifyConfig `json:"notify" yaml:"notify"`

	// Logging contains settings for operational and tick logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// BackendConfig configures the HTTP backend adapter.
type BackendConfig struct {
	// BaseURL is the application origin, e.g. http://localhost:3000.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIToken is sent as a bearer token. Supports ${VAR} syntax for env vars.
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`

	// Timeout bounds each backend request.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// RedactedAPIToken returns the token with most characters masked.
// Returns "" for empty tokens and "(set)" for tokens shorter than 12 chars.
func (c BackendConfig) RedactedAPIToken() string {
	if c.APIToken == "" {
		return ""
	}
	if len(c.APIToken) < 12 {
		return "(set)"
	}
	return c.APIToken[:4] + "..." + c.APIToken[len(c.APIToken)-4:]
}

// String implements fmt.Stringer to prevent accidental token logging.
func (c BackendConfig) String() string {
	return fmt.Sprintf("BackendConfig{BaseURL:%s, APIToken:%s, Timeout:%v}",
		c.BaseURL, c.RedactedAPIToken(), c.Timeout)
}

// SimulationConfig configures the poll loop.
type SimulationConfig struct {
	// Interval is the spacing between ticks while simulating.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// DefaultChangePercent is the initial change percentage (0-100).
	DefaultChangePercent float64 `json:"default_change_percent" yaml:"default_change_percent"`

	// Overlap is "allow" (default) or "skip".
	Overlap string `json:"overlap" yaml:"overlap"`
}

// ServerConfig configures `usersim serve`.
type ServerConfig struct {
	// Addr is the listen address. Empty picks a free localhost port.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// OpenBrowser opens the panel after the server starts.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`
}

// NotifyConfig selects notification sinks. The log sink is always on.
type NotifyConfig struct {
	// Desktop shows OS notifications.
	Desktop bool `json:"desktop" yaml:"desktop"`

	// Inbox records notifications in .usersim/usersim.db.
	Inbox bool `json:"inbox" yaml:"inbox"`
}

// LoggingConfig configures usersim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables tick logging to .usersim/ticks.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a UsersimConfig with sensible defaults.
func Default() *UsersimConfig {
	return &UsersimConfig{
		Backend: BackendConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 10 * time.Second,
		},
		Simulation: SimulationConfig{
			Interval:             panel.DefaultInterval,
			DefaultChangePercent: panel.DefaultChangeFraction * 100,
			Overlap:              string(panel.OverlapAllow),
		},
		Server: ServerConfig{
			OpenBrowser: true,
		},
		Notify: NotifyConfig{
			Desktop: false,
			Inbox:   true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns ~/.usersim/config.yaml.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".usersim", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.usersim/config.yaml -> environment variables
func Load() (*UsersimConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*UsersimConfig, error) {
	config, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	config.Backend.APIToken = expandEnvVars(config.Backend.APIToken)

	return config, nil
}

// ReadFile loads a YAML file over the defaults without expanding ${VAR}
// references. Use it when the config will be written back.
func ReadFile(path string) (*UsersimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Save writes the configuration to path, creating parent directories.
func Save(cfg *UsersimConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *UsersimConfig) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must be set")
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Backend.Timeout)
	}

	if c.Simulation.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Simulation.Interval)
	}

	if !panel.OverlapPolicy(c.Simulation.Overlap).Valid() {
		return fmt.Errorf("invalid overlap policy: %s (valid: allow, skip)", c.Simulation.Overlap)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *UsersimConfig) {
	if v := os.Getenv("USERSIM_BASE_URL"); v != "" {
		config.Backend.BaseURL = v
	}

	if v := os.Getenv("USERSIM_API_TOKEN"); v != "" {
		config.Backend.APIToken = v
	}

	if v := os.Getenv("USERSIM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Backend.Timeout = d
		}
	}

	if v := os.Getenv("USERSIM_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Simulation.Interval = d
		}
	}

	if v := os.Getenv("USERSIM_CHANGE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.DefaultChangePercent = f
		}
	}

	if v := os.Getenv("USERSIM_OVERLAP"); v != "" {
		config.Simulation.Overlap = v
	}

	if v := os.Getenv("USERSIM_DESKTOP_NOTIFY"); v != "" {
		config.Notify.Desktop = v == "true" || v == "1"
	}

	if v := os.Getenv("USERSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
