package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"imagetolink/internal/logging"
)

// Config represents runtime configuration for the CLI and the image host.
type Config struct {
	Server    ServerConfig              `json:"server" yaml:"server"`
	Databases map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis     RedisConfig               `json:"redis" yaml:"redis"`
	Settings  SettingsConfig            `json:"settings" yaml:"settings"`
	Log       logging.Config            `json:"log" yaml:"log"`
	Metrics   MetricsConfig             `json:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Address              string   `json:"address" yaml:"address"`
	PublicBaseURL        string   `json:"public_base_url" yaml:"public_base_url"`
	BlobDir              string   `json:"blob_dir" yaml:"blob_dir"`
	MaxUploadBytes       int64    `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	SweepIntervalMinutes int      `json:"sweep_interval_minutes" yaml:"sweep_interval_minutes"`
	StaticTokens         []string `json:"static_tokens" yaml:"static_tokens"`
	// Database picks the entry of Databases the host stores records in.
	Database string `json:"database" yaml:"database"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

const (
	SettingsBackendFile  = "file"
	SettingsBackendSQL   = "sql"
	SettingsBackendRedis = "redis"
)

// SettingsConfig says where the upload settings object lives.
type SettingsConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
}

const (
	DefaultServerAddress  = ":8080"
	DefaultMaxUploadBytes = 20 << 20
	DefaultSweepInterval  = 60
	DefaultDatabase       = "sqlite3"
)

// Default is the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are YAML; everything else is JSON with
// comments and trailing commas allowed.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults(filepath.Dir(absPath))
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Settings.Backend {
	case "", SettingsBackendFile, SettingsBackendSQL, SettingsBackendRedis:
	default:
		return fmt.Errorf("unknown settings backend %q", c.Settings.Backend)
	}
	if c.Settings.Backend == SettingsBackendRedis && !c.Redis.Enabled {
		return fmt.Errorf("settings backend redis requires redis.enabled")
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes must not be negative")
	}
	return nil
}

// applyDefaults fills unset values and resolves relative paths against base.
func (c *Config) applyDefaults(base string) {
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	if c.Server.PublicBaseURL == "" {
		if strings.HasPrefix(c.Server.Address, ":") {
			c.Server.PublicBaseURL = "http://localhost" + c.Server.Address
		} else {
			c.Server.PublicBaseURL = "http://" + c.Server.Address
		}
	}
	c.Server.PublicBaseURL = strings.TrimRight(c.Server.PublicBaseURL, "/")
	if c.Server.BlobDir == "" {
		c.Server.BlobDir = "data/blobs"
	}
	c.Server.BlobDir = resolve(base, c.Server.BlobDir)
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Server.SweepIntervalMinutes <= 0 {
		c.Server.SweepIntervalMinutes = DefaultSweepInterval
	}
	if c.Server.Database == "" {
		c.Server.Database = DefaultDatabase
	}

	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := c.Databases[DefaultDatabase]; !ok {
		c.Databases[DefaultDatabase] = DatabaseConfig{DSN: "data/imagetolink.db"}
	}
	for name, db := range c.Databases {
		if isSQLite(name) && db.DSN != "" && !strings.HasPrefix(db.DSN, "file:") && db.DSN != ":memory:" {
			db.DSN = resolve(base, db.DSN)
			c.Databases[name] = db
		}
	}

	if c.Settings.Backend == "" {
		c.Settings.Backend = SettingsBackendFile
	}
	if c.Settings.Path == "" {
		c.Settings.Path = "data/settings.json"
	}
	c.Settings.Path = resolve(base, c.Settings.Path)

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func isSQLite(name string) bool {
	name = strings.ToLower(name)
	return name == "sqlite" || name == "sqlite3"
}
