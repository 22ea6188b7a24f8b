package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the global hookline configuration.
type Config struct {
	Settings SettingsConfig `toml:"settings"`
}

// SettingsConfig holds global settings.
type SettingsConfig struct {
	// DataDir is where the append log lives. Defaults to the config dir.
	DataDir string `toml:"data_dir"`
	// LogFile is the append-log filename inside DataDir.
	LogFile string `toml:"log_file"`
	// Port is the server listen port.
	Port int `toml:"port"`
}

// DefaultDir returns the default config directory (~/.hookline).
// If HOOKLINE_DIR is set, uses that path instead.
func DefaultDir() (string, error) {
	if d := os.Getenv("HOOKLINE_DIR"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".hookline"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from the default path, applying defaults.
// If the file doesn't exist, returns a config with defaults.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from the given path, applying defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// SaveTo writes the config to the given path, creating parent directories.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// DataDir returns the expanded data directory path.
func (c *Config) DataDir() (string, error) {
	if c.Settings.DataDir != "" {
		return ExpandPath(c.Settings.DataDir)
	}
	return DefaultDir()
}

// LogPath returns the expanded path of the append log.
func (c *Config) LogPath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Settings.LogFile), nil
}

// EnsureDirs creates the data directory if it doesn't exist.
func (c *Config) EnsureDirs() error {
	dir, err := c.DataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Settings.LogFile == "" {
		c.Settings.LogFile = "events.jsonl"
	}
	if c.Settings.Port == 0 {
		c.Settings.Port = 8787
	}
}
