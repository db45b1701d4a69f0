/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ssargent/kvsnap/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config represents the kvsnap configuration
type Config struct {
	Dir        string   `yaml:"dir"`
	DBFilename string   `yaml:"dbfilename"`
	Port       int      `yaml:"port"`
	Bind       string   `yaml:"bind"`
	APIKey     string   `yaml:"api_key"`
	Logging    Logging  `yaml:"logging"`
	Snapshot   Snapshot `yaml:"snapshot"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Snapshot controls how and when the store is written to disk
type Snapshot struct {
	SaveInterval    time.Duration `yaml:"save_interval"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	Checksum        bool          `yaml:"checksum"`
	IntegerEncoding bool          `yaml:"integer_encoding"`
	ArchiveDir      string        `yaml:"archive_dir"`
	ArchiveOnSave   bool          `yaml:"archive_on_save"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Dir:        "./data",
		DBFilename: "dump.rdb",
		Port:       8080,
		Bind:       "127.0.0.1",
		APIKey:     "auto",
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Snapshot: Snapshot{
			SaveInterval:    5 * time.Minute,
			SweepInterval:   time.Second,
			Checksum:        true,
			IntegerEncoding: true,
		},
	}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields missing from the file keep their defaults
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file carries the API key
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates a new configuration with a generated API key and saves it
func BootstrapConfig(configPath string, dir string) (*Config, error) {
	config := DefaultConfig()
	if dir != "" {
		config.Dir = dir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./kvsnap.yaml"
	}

	// ~/.config/kvsnap/config.yaml on Linux and macOS
	return filepath.Join(homeDir, ".config", "kvsnap", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

// SnapshotPath is where the store is loaded from and saved to
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Dir, c.DBFilename)
}

// ArchivePath is the archive database directory, under Dir unless set explicitly
func (c *Config) ArchivePath() string {
	if c.Snapshot.ArchiveDir != "" {
		return c.Snapshot.ArchiveDir
	}
	return filepath.Join(c.Dir, "archive")
}

// Validate reports every problem with the configuration at once
func (c *Config) Validate() error {
	var errs []error

	if c.Dir == "" {
		errs = append(errs, errors.New("dir must not be empty"))
	}
	if c.DBFilename == "" {
		errs = append(errs, errors.New("dbfilename must not be empty"))
	} else if strings.ContainsAny(c.DBFilename, `/\`) {
		errs = append(errs, fmt.Errorf("dbfilename must be a file name, got %q", c.DBFilename))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format: %q", c.Logging.Format))
	}
	if c.Snapshot.SaveInterval < 0 {
		errs = append(errs, fmt.Errorf("snapshot.save_interval must not be negative: %s", c.Snapshot.SaveInterval))
	}
	if c.Snapshot.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("snapshot.sweep_interval must not be negative: %s", c.Snapshot.SweepInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
