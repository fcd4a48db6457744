package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions — silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Validate checks cross-field constraints that TOML decoding cannot express.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Provider.BaseURL == "" {
		errs = append(errs, errors.New("provider.base_url must not be empty"))
	}

	if cfg.Delivery.PacingDelay != "" {
		if d, err := time.ParseDuration(cfg.Delivery.PacingDelay); err != nil {
			errs = append(errs, fmt.Errorf("delivery.pacing_delay: %w", err))
		} else if d < 0 {
			errs = append(errs, errors.New("delivery.pacing_delay must not be negative"))
		}
	}

	switch cfg.Logging.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.log_level: unknown level %q", cfg.Logging.LogLevel))
	}

	return errors.Join(errs...)
}
