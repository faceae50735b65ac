// Package config manages persistent user preferences for the Nexus
// client. Settings are stored as JSON at os.UserConfigDir()/nexus/config.json
// (spec §6: "a configuration file ... in the platform config directory.
// On Unix both are mode 0600").
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all persistent user preferences.
type Config struct {
	Theme          string        `json:"theme"`
	Username       string        `json:"username"`
	QueueTransfers bool          `json:"queue_transfers"`
	Servers        []ServerEntry `json:"servers"`
}

// ServerEntry is a saved server bookmark shown in the server browser,
// resolved by (host, port, username) when a nexus:// link's target isn't
// already an open connection (spec §4.13).
type ServerEntry struct {
	Name        string `json:"name"`
	Addr        string `json:"addr"`
	Username    string `json:"username,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"` // pinned cert SHA-256, TOFU (spec §6)
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Theme:          "dark",
		QueueTransfers: true,
		Servers: []ServerEntry{
			{Name: "Local Dev", Addr: "localhost:6667"},
		},
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nexus", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned — never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
