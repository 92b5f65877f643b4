package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/codefionn/netserver/internal/consts"
)

// Config represents server configuration
type Config struct {
	Host              string `json:"host" yaml:"host"`
	Port              int    `json:"port" yaml:"port"`
	MaxConnections    int    `json:"max_connections" yaml:"max_connections"`
	TimeoutSeconds    int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	BufferSize        int    `json:"buffer_size" yaml:"buffer_size"`                   // per-read chunk size in bytes
	MaxFrameSize      int    `json:"max_frame_size,omitempty" yaml:"max_frame_size"`   // 0 selects the codec default
	PollIntervalMs    int    `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms"` // 0 selects 1s
	LogLevel          string `json:"log_level" yaml:"log_level"`                       // debug, info, warn, error, fatal, none
	LogPath           string `json:"log_path,omitempty" yaml:"log_path"`               // empty logs to stdout
	MetricsAddr       string `json:"metrics_addr,omitempty" yaml:"metrics_addr"`       // empty disables the admin endpoint
	ChatHistoryPath   string `json:"chat_history_path,omitempty" yaml:"chat_history_path"`
	ChatHistoryReplay int    `json:"chat_history_replay,omitempty" yaml:"chat_history_replay"`
}

// ValidationError reports a configuration value outside its allowed bounds
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "netserver")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "netserver")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "netserver")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "netserver")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:              consts.DefaultHost,
		Port:              consts.DefaultPort,
		MaxConnections:    consts.DefaultMaxConnections,
		TimeoutSeconds:    consts.DefaultTimeoutSeconds,
		BufferSize:        consts.BufferSize1KB,
		LogLevel:          "info",
		ChatHistoryReplay: consts.DefaultChatHistoryReplay,
	}
}

// DefaultChatConfig returns the defaults used by the chat server
func DefaultChatConfig() *Config {
	cfg := DefaultConfig()
	cfg.Port = consts.DefaultChatPort
	cfg.MaxConnections = consts.DefaultChatMaxConnections
	return cfg
}

// Load loads configuration from file on top of DefaultConfig
func Load(path string) (*Config, error) {
	return LoadWithDefaults(path, DefaultConfig())
}

// LoadWithDefaults loads configuration from file, overriding only the fields
// the file provides. A missing file yields the defaults.
func LoadWithDefaults(path string, defaults *Config) (*Config, error) {
	config := *defaults

	if path == "" {
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return &config, nil
		}
		return nil, err
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Ensure critical fields have defaults if still empty
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return &config, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// ApplyEnv lets environment variables override logging settings
func (c *Config) ApplyEnv() {
	if envLevel := strings.TrimSpace(os.Getenv("NETSERVER_LOG_LEVEL")); envLevel != "" {
		c.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("NETSERVER_LOG_PATH")); envPath != "" {
		c.LogPath = envPath
	}
}

// Validate checks every bound the server relies on. It returns a
// *ValidationError describing the first violation.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Host) == "":
		return &ValidationError{Field: "host", Reason: "cannot be empty"}
	case c.Port < 1 || c.Port > consts.MaxPort:
		return &ValidationError{Field: "port", Reason: fmt.Sprintf("must be between 1 and %d, got %d", consts.MaxPort, c.Port)}
	case c.MaxConnections <= 0:
		return &ValidationError{Field: "max_connections", Reason: fmt.Sprintf("must be positive, got %d", c.MaxConnections)}
	case c.TimeoutSeconds <= 0:
		return &ValidationError{Field: "timeout_seconds", Reason: fmt.Sprintf("must be positive, got %d", c.TimeoutSeconds)}
	case c.BufferSize <= 0:
		return &ValidationError{Field: "buffer_size", Reason: fmt.Sprintf("must be positive, got %d", c.BufferSize)}
	case c.MaxFrameSize < 0:
		return &ValidationError{Field: "max_frame_size", Reason: "cannot be negative"}
	case c.PollIntervalMs < 0:
		return &ValidationError{Field: "poll_interval_ms", Reason: "cannot be negative"}
	case c.ChatHistoryReplay < 0:
		return &ValidationError{Field: "chat_history_replay", Reason: "cannot be negative"}
	}
	return nil
}

// IsValidationError reports whether err is a configuration bounds violation
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Address returns the host:port pair the server binds
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Timeout returns the write timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the bounded readiness wait of one reactor pass
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return consts.DefaultPollInterval
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (max_connections: %d, timeout: %ds, buffer: %d bytes)",
		c.Address(), c.MaxConnections, c.TimeoutSeconds, c.BufferSize)
}
