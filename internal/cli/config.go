// Package cli implements the clawfactory installer commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the CLI's on-disk state, stored at ~/.clawfactory/config.toml.
type Config struct {
	APIURL   string `toml:"api_url"`
	Token    string `toml:"token,omitempty"`
	Username string `toml:"username,omitempty"`
}

const defaultAPIURL = "http://localhost:8080"

func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".clawfactory"), nil
}

func configPath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// InstallDir is where copies are unpacked.
func InstallDir() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "copies"), nil
}

// LoadConfig reads the config file, returning defaults when it doesn't exist.
// CLAWFACTORY_API overrides the stored API URL.
func LoadConfig() (*Config, error) {
	cfg := &Config{APIURL: defaultAPIURL}

	path, err := configPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if env := os.Getenv("CLAWFACTORY_API"); env != "" {
		cfg.APIURL = env
	}
	return cfg, nil
}

// Save writes the config file, creating ~/.clawfactory if needed.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
