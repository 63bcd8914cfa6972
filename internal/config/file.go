package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML configuration file on top of the defaults
// without applying environment variables
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	return cfg, nil
}

// loadFile unmarshals the YAML file at path into cfg. Keys absent from the
// file keep their current values.
func loadFile(path string, cfg *Config) error {
	if !filepath.IsAbs(path) {
		abspath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abspath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
