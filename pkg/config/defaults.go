package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyStoreDefaults(&cfg.Store)
	applyGatewayDefaults(&cfg.Gateway)
	applyRemoteDefaults(&cfg.Remote)
	applySyncDefaults(&cfg.Sync)
	applyNotifyDefaults(&cfg.Notify)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStoreDefaults sets durable store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Path == "" {
		cfg.Path = getDefaultStorePath()
	}
}

// applyGatewayDefaults sets request classification defaults.
func applyGatewayDefaults(cfg *GatewayConfig) {
	if len(cfg.CriticalPrefixes) == 0 {
		cfg.CriticalPrefixes = []string{"/api/sos"}
	}
	if len(cfg.StaticAssets) == 0 {
		cfg.StaticAssets = []string{
			"/",
			"/index.html",
			"/app.js",
			"/styles.css",
			"/manifest.json",
		}
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
}

func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
}

func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
}

func applyNotifyDefaults(cfg *NotifyConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
}

// getDefaultStorePath returns the default durable store directory.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, falling back to
// the current directory as a last resort.
func getDefaultStorePath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "lifeline", "store")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "lifeline-store")
	}

	return filepath.Join(home, ".local", "share", "lifeline", "store")
}

// GetDefaultConfig returns a Config with all default values applied.
//
// Useful for generating sample configuration files and for tests. The
// result is not guaranteed to validate: required fields like the
// upstream origin have no defaults.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.API.ApplyDefaults()
	ApplyDefaults(cfg)
	return cfg
}
