// Package config loads the server's optional YAML config file (spec.md §6:
// "a single executable taking a config path and a data-directory path").
// Every field has a matching `flag` in main; an explicitly-set flag always
// wins over the file, and the file always wins over the built-in default.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors the server's command-line switches so a deployment can
// check one file into its ops repo instead of a long flag invocation.
type Config struct {
	Addr              string        `yaml:"addr"`
	TransferAddr      string        `yaml:"transfer_addr"`
	VoiceAddr         string        `yaml:"voice_addr"`
	APIAddr           string        `yaml:"api_addr"`
	DataDir           string        `yaml:"data_dir"`
	CertValidity      time.Duration `yaml:"cert_validity"`
	DefaultChannel    string        `yaml:"default_channel"`
	ServerName        string        `yaml:"name"`
	ServerDescription string        `yaml:"description"`
	MaxUsers          int           `yaml:"max_users"`
}

// Load reads and parses the YAML file at path. A missing path is not an
// error — it returns a zero Config so callers can layer flag defaults over
// it unconditionally.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
