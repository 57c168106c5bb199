// Package config carries the registry and install-root settings. All
// consumers receive configuration by value; nothing reads globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultRegistryURL is the hosted Nebula module registry.
const DefaultRegistryURL = "https://raw.githubusercontent.com/nebula-lang/modules/refs/heads/main"

// Config is the tool configuration consumed by the registry client and
// the installer.
type Config struct {
	RegistryURL string `yaml:"registry"`
	GlobalRoot  string `yaml:"global_root"`
	LocalRoot   string `yaml:"-"`
}

// Default returns the built-in configuration: the hosted registry,
// ~/.orbit/modules for global installs, ./.orbit/modules for local.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		RegistryURL: DefaultRegistryURL,
		GlobalRoot:  filepath.Join(home, ".orbit", "modules"),
		LocalRoot:   filepath.Join(".", ".orbit", "modules"),
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".orbit", "config.yaml")
}

// Load merges the YAML file at path over the defaults. A missing file
// is not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
