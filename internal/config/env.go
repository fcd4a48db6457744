package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "GALLERYFLOW_CONFIG"
	EnvDBPath      = "GALLERYFLOW_DB"
	EnvDownloadDir = "GALLERYFLOW_DOWNLOAD_DIR"
	EnvClientID    = "GALLERYFLOW_CLIENT_ID"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // GALLERYFLOW_CONFIG: override config file path
	DBPath      string // GALLERYFLOW_DB: gallery database path
	DownloadDir string // GALLERYFLOW_DOWNLOAD_DIR: batch download directory
	ClientID    string // GALLERYFLOW_CLIENT_ID: OAuth2 client ID
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		DBPath:      os.Getenv(EnvDBPath),
		DownloadDir: os.Getenv(EnvDownloadDir),
		ClientID:    os.Getenv(EnvClientID),
	}
}

// Apply overlays non-empty override values onto the config.
// Environment sits between the config file and CLI flags in precedence.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.DBPath != "" {
		cfg.Storage.DBPath = e.DBPath
	}

	if e.DownloadDir != "" {
		cfg.Delivery.DownloadDir = e.DownloadDir
	}

	if e.ClientID != "" {
		cfg.Provider.ClientID = e.ClientID
	}
}
