package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a Settings tree from a YAML document on disk (spec §4.6
// expansion: "config.LoadFile/config.Save (YAML, via gopkg.in/yaml.v3) read/
// write a config.Settings tree"). Grounded on
// config/streaming.go's LoadStreamingConfig, narrowed to a plain
// read-file-then-unmarshal (no env-var path fallback: the core never reads
// environment variables itself, spec §1 scope boundary).
func LoadFile(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var cfg Settings
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as a YAML document to path, overwriting any existing file.
func Save(path string, cfg Settings) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}
