// Package config loads the CLI context configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/folio-tools/stripesctl/internal/okapi"
)

// FileName is the per-project configuration file looked up in the working
// directory and then the user's home directory.
const FileName = ".stripesctl.yaml"

// Config is the resolved CLI context: file values overridden by environment.
type Config struct {
	// OkapiURL is the gateway base URL. Passed through unvalidated; a bad
	// value surfaces when the first request fails.
	OkapiURL string `yaml:"okapi" env:"STRIPES_OKAPI_URL"`
	// Tenant is the gateway tenant identifier, also unvalidated.
	Tenant   string `yaml:"tenant" env:"STRIPES_TENANT"`
	LogLevel string `yaml:"logLevel" env:"STRIPES_LOG_LEVEL"`
	// Namespace keys the credential file under the user config directory.
	Namespace string `yaml:"namespace" env:"STRIPES_NAMESPACE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OkapiURL:  "http://localhost:9130",
		Tenant:    "diku",
		Namespace: "stripesctl",
	}
}

// Load resolves configuration from the nearest config file plus environment
// overrides. A missing file is fine; an unreadable or malformed one is a
// fatal CLI error.
func Load() (Config, error) {
	if path, ok := findFile(); ok {
		return LoadFromPath(path)
	}
	cfg := Default()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromPath loads a specific config file plus environment overrides.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, okapi.NewCLIError("unable to read config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, okapi.NewCLIError("unable to parse config %s: %v", path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration, falling back to defaults plus
// environment overrides when anything goes wrong.
func LoadOrDefault() Config {
	cfg, err := Load()
	if err != nil {
		cfg = Default()
		_ = applyEnv(&cfg)
	}
	return cfg
}

func applyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	return nil
}

func findFile() (string, bool) {
	if _, err := os.Stat(FileName); err == nil {
		return FileName, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(home, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return "", false
}
