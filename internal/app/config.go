package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/storage"
)

// Config is the builder daemon configuration, loaded from a YAML file.
type Config struct {
	Store storage.Config `yaml:"store"`

	// CatalogPath optionally overrides the built-in section catalog and
	// plan table; the file is hot-reloaded while running.
	CatalogPath string `yaml:"catalog_path"`

	// Plan is the tier the editing session operates under.
	Plan domain.PlanTier `yaml:"plan"`

	// PollInterval is the reconciliation poll interval, e.g. "2s".
	PollInterval string `yaml:"poll_interval"`

	// ResyncSpec is the cron spec for periodic full resyncs.
	ResyncSpec string `yaml:"resync_spec"`
}

// DefaultConfig is used when no config file is given: a local SQLite
// store under the user's data directory, free plan.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Store: storage.Config{
			Driver: storage.DriverSQLite,
			Path:   home + "/.local/share/sitebuilder/builder.db",
		},
		Plan: domain.PlanFree,
	}
}

// LoadConfig reads a YAML config file, filling gaps with defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Plan == "" {
		cfg.Plan = domain.PlanFree
	}
	return cfg, nil
}
