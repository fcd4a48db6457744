// Package config loads galleryflow's TOML configuration with strict
// unknown-key rejection, environment overrides, and defaults that work
// without any config file.
package config

import "time"

// Config is the root configuration shape.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Storage  StorageConfig  `toml:"storage"`
	Delivery DeliveryConfig `toml:"delivery"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ProviderConfig carries the storage provider and identity endpoints.
type ProviderConfig struct {
	BaseURL  string   `toml:"base_url"`
	AuthURL  string   `toml:"auth_url"`
	TokenURL string   `toml:"token_url"`
	ClientID string   `toml:"client_id"`
	Scopes   []string `toml:"scopes"`
}

// StorageConfig locates the gallery database and upload watch behavior.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// DeliveryConfig tunes batch downloads.
type DeliveryConfig struct {
	DownloadDir string `toml:"download_dir"`
	PacingDelay string `toml:"pacing_delay"` // Go duration string, e.g. "1s"
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// Default values. Layer 0 of the override chain: defaults -> config file ->
// environment -> CLI flags.
const (
	defaultBaseURL     = "https://storage.example.com/api/v1"
	defaultAuthURL     = "https://id.example.com/oauth2/authorize"
	defaultTokenURL    = "https://id.example.com/oauth2/token"
	defaultDBPath      = "galleryflow.db"
	defaultDownloadDir = "."
	defaultPacingDelay = "1s"
	defaultLogLevel    = "info"
)

// defaultScopes requests read-only provider access; the import pipeline
// never mutates provider state.
var defaultScopes = []string{"storage.files.readonly"}

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:  defaultBaseURL,
			AuthURL:  defaultAuthURL,
			TokenURL: defaultTokenURL,
			Scopes:   defaultScopes,
		},
		Storage: StorageConfig{
			DBPath: defaultDBPath,
		},
		Delivery: DeliveryConfig{
			DownloadDir: defaultDownloadDir,
			PacingDelay: defaultPacingDelay,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
	}
}

// Pacing parses the configured pacing delay, falling back to the default
// when unset or malformed (validation catches malformed values earlier; the
// fallback keeps this method total).
func (c *Config) Pacing() time.Duration {
	d, err := time.ParseDuration(c.Delivery.PacingDelay)
	if err != nil || d < 0 {
		d, _ = time.ParseDuration(defaultPacingDelay)
	}

	return d
}
