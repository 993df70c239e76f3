package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadJSONWithComments(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		// image host
		"server": {
			"address": "127.0.0.1:9000",
			"static_tokens": ["abc"],
		},
		"settings": {"backend": "sql"},
		"log": {"level": "debug"},
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	dir := filepath.Dir(path)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Server.PublicBaseURL)
	assert.Equal(t, []string{"abc"}, cfg.Server.StaticTokens)
	assert.Equal(t, filepath.Join(dir, "data/blobs"), cfg.Server.BlobDir)
	assert.Equal(t, SettingsBackendSQL, cfg.Settings.Backend)
	assert.Equal(t, filepath.Join(dir, "data/settings.json"), cfg.Settings.Path)
	assert.Equal(t, filepath.Join(dir, "data/imagetolink.db"), cfg.Databases[DefaultDatabase].DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.EqualValues(t, DefaultMaxUploadBytes, cfg.Server.MaxUploadBytes)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  address: ":7000"
  public_base_url: "https://img.example.com/"
databases:
  mysql:
    host: db
    port: 3306
    username: app
    dbname: images
redis:
  enabled: true
  host: cache
settings:
  backend: redis
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "db", cfg.Databases["mysql"].Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, SettingsBackendRedis, cfg.Settings.Backend)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "bad.json", `{"server": `))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "c.json", `{"settings": {"backend": "s3"}}`))
	assert.ErrorContains(t, err, "unknown settings backend")

	_, err = Load(writeConfig(t, "c.json", `{"settings": {"backend": "redis"}}`))
	assert.ErrorContains(t, err, "requires redis.enabled")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultServerAddress, cfg.Server.Address)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicBaseURL)
	assert.Equal(t, SettingsBackendFile, cfg.Settings.Backend)
	assert.Equal(t, DefaultDatabase, cfg.Server.Database)
}
