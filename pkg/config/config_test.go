package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data", config.Dir)
	assert.Equal(t, "dump.rdb", config.DBFilename)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "127.0.0.1", config.Bind)
	assert.Equal(t, "auto", config.APIKey)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, 5*time.Minute, config.Snapshot.SaveInterval)
	assert.True(t, config.Snapshot.Checksum)
	assert.True(t, config.Snapshot.IntegerEncoding)
	assert.False(t, config.Snapshot.ArchiveOnSave)
	assert.NoError(t, config.Validate())
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64) // 32 bytes = 64 hex characters

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})

	t.Run("zero length", func(t *testing.T) {
		key, err := GenerateSecureKey(0)
		require.NoError(t, err)
		assert.Empty(t, key)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("load existing config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		expectedConfig := &Config{
			Dir:        "/custom/data",
			DBFilename: "snap.rdb",
			Port:       9000,
			Bind:       "0.0.0.0",
			APIKey:     "test-api-key",
			Logging: Logging{
				Level:  "debug",
				Format: "json",
			},
			Snapshot: Snapshot{
				SaveInterval:  30 * time.Second,
				SweepInterval: 250 * time.Millisecond,
				Checksum:      false,
				ArchiveDir:    "/custom/archive",
				ArchiveOnSave: true,
			},
		}

		err := SaveConfig(expectedConfig, configPath)
		require.NoError(t, err)

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, expectedConfig, loadedConfig)
	})

	t.Run("missing fields keep defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "partial.yaml")
		err := os.WriteFile(configPath, []byte("port: 7000\nsnapshot:\n  save_interval: 1m\n"), 0644)
		require.NoError(t, err)

		loaded, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, 7000, loaded.Port)
		assert.Equal(t, time.Minute, loaded.Snapshot.SaveInterval)
		assert.Equal(t, "dump.rdb", loaded.DBFilename)
		assert.True(t, loaded.Snapshot.Checksum)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
		require.NoError(t, err)

		_, err = LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	config := DefaultConfig()

	err := SaveConfig(config, configPath)
	require.NoError(t, err)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestBootstrapConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	dir := "/custom/data/dir"

	config, err := BootstrapConfig(configPath, dir)
	require.NoError(t, err)

	assert.Equal(t, dir, config.Dir)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "127.0.0.1", config.Bind)
	assert.Equal(t, "info", config.Logging.Level)

	assert.NotEqual(t, "auto", config.APIKey)
	_, err = hex.DecodeString(config.APIKey)
	assert.NoError(t, err)

	assert.True(t, ConfigExists(configPath))

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "kvsnap")
}

func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingPath := filepath.Join(tmpDir, "exists.yaml")
	nonExistentPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	err := os.WriteFile(existingPath, []byte("test"), 0644)
	require.NoError(t, err)

	assert.True(t, ConfigExists(existingPath))
	assert.False(t, ConfigExists(nonExistentPath))
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := &Config{
		Dir:        "/test/data",
		DBFilename: "test.rdb",
		Port:       9999,
		Bind:       "localhost",
		APIKey:     "api-key-123",
		Logging:    Logging{Level: "warn", Format: "text"},
		Snapshot:   Snapshot{SaveInterval: 90 * time.Second, IntegerEncoding: true},
	}

	data, err := yaml.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "save_interval: 1m30s")

	var unmarshalled Config
	err = yaml.Unmarshal(data, &unmarshalled)
	require.NoError(t, err)

	assert.Equal(t, config, &unmarshalled)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	config := DefaultConfig()

	// A regular file where a directory is expected
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := SaveConfig(config, filepath.Join(blocker, "sub", "config.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}

func TestPaths(t *testing.T) {
	config := DefaultConfig()
	config.Dir = "/var/lib/kvsnap"

	assert.Equal(t, filepath.Join("/var/lib/kvsnap", "dump.rdb"), config.SnapshotPath())
	assert.Equal(t, filepath.Join("/var/lib/kvsnap", "archive"), config.ArchivePath())

	config.Snapshot.ArchiveDir = "/backups"
	assert.Equal(t, "/backups", config.ArchivePath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "empty dir", mutate: func(c *Config) { c.Dir = "" }, want: "dir must not be empty"},
		{name: "empty filename", mutate: func(c *Config) { c.DBFilename = "" }, want: "dbfilename must not be empty"},
		{name: "filename with path", mutate: func(c *Config) { c.DBFilename = "a/b.rdb" }, want: "must be a file name"},
		{name: "port zero", mutate: func(c *Config) { c.Port = 0 }, want: "port out of range"},
		{name: "port too high", mutate: func(c *Config) { c.Port = 70000 }, want: "port out of range"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "chatty" }, want: "invalid log level"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, want: "unknown log format"},
		{name: "negative interval", mutate: func(c *Config) { c.Snapshot.SaveInterval = -time.Second }, want: "save_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		config := DefaultConfig()
		config.Dir = ""
		config.Port = -1
		err := config.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dir must not be empty")
		assert.Contains(t, err.Error(), "port out of range")
	})
}
