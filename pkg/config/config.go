// Package config loads and validates the gateway configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (LIFELINE_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dmoretti/lifeline/pkg/api"
)

// Config represents the lifeline gateway configuration.
//
// It captures the static aspects of the local relay:
//   - Logging and telemetry behavior
//   - The durable store location
//   - The upstream origin and request classification
//   - The remote emergency endpoint and sync schedule
//   - The local control API
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the local gateway HTTP server configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Store configures the durable key-value store backing the cache
	// tiers and the offline queue
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Gateway configures request classification and the upstream origin
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`

	// Remote configures the emergency endpoint queued alerts drain to
	Remote RemoteConfig `mapstructure:"remote" yaml:"remote"`

	// Sync configures the background synchronization schedule
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Notify configures delivery of user-facing notifications
	Notify NotifyConfig `mapstructure:"notify" yaml:"notify"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// StoreConfig configures the durable key-value store.
type StoreConfig struct {
	// Path is the directory for the store files (required)
	// Example: /var/lib/lifeline or ~/.local/share/lifeline
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// InMemory runs the store without disk persistence. Queued alerts do
	// not survive a restart; only useful for development.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory,omitempty"`

	// DisableSyncWrites turns off fsync on every write. Faster, but a
	// power loss can drop the most recent enqueue.
	// Default: false (every enqueue is synced before acknowledging)
	DisableSyncWrites bool `mapstructure:"disable_sync_writes" yaml:"disable_sync_writes,omitempty"`
}

// GatewayConfig configures request classification and the upstream origin.
type GatewayConfig struct {
	// Upstream is the origin base URL requests are forwarded to (required)
	// Example: https://app.example.com
	Upstream string `mapstructure:"upstream" validate:"required,url" yaml:"upstream"`

	// CriticalPrefixes are path prefixes handled network-first with a
	// durable queue fallback.
	// Default: ["/api/sos"]
	CriticalPrefixes []string `mapstructure:"critical_prefixes" yaml:"critical_prefixes"`

	// StaticAssets is the manifest fetched into the static tier at
	// install time.
	StaticAssets []string `mapstructure:"static_assets" yaml:"static_assets"`

	// OfflinePagePath points at an HTML file served when a page
	// navigation fails offline. Empty selects the built-in page.
	OfflinePagePath string `mapstructure:"offline_page_path" yaml:"offline_page_path,omitempty"`

	// RequestTimeout bounds one upstream round trip.
	// Default: 10s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// RemoteConfig configures the remote emergency endpoint.
type RemoteConfig struct {
	// Endpoint is the URL queued alerts are delivered to (required)
	// Example: https://alerts.example.com/api/sos
	Endpoint string `mapstructure:"endpoint" validate:"required,url" yaml:"endpoint"`

	// Timeout bounds a single delivery attempt.
	// Default: 15s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SyncConfig configures the background synchronization schedule.
type SyncConfig struct {
	// Interval is the periodic drain interval. Zero disables the
	// schedule; the online edge and manual triggers still drain.
	// Default: 1m
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// NotifyConfig configures user-facing notification delivery.
type NotifyConfig struct {
	// WebhookURL receives notification events as JSON POSTs, typically a
	// local desktop-notification bridge. Empty logs notifications only.
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url" yaml:"webhook_url,omitempty"`

	// Timeout bounds a webhook delivery.
	// Default: 5s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// Without a config file, defaults are all we have. They are not
	// validated: required fields like the upstream origin are only
	// enforced once the user actually writes a config.
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// config file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  lifeline init\n\n"+
				"Or specify a custom config file:\n"+
				"  lifeline <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  lifeline init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the config may carry private endpoints and webhook URLs.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variables and config file lookup.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the LIFELINE_ prefix and underscores.
	// Example: LIFELINE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("LIFELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/lifeline/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns the combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lifeline")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "lifeline")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
