package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imagetolink/internal/config"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured under dbType.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		if !strings.HasPrefix(dbCfg.DSN, "file:") && dbCfg.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dbCfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// a single connection keeps in-memory databases shared and writes serialized
		db.SetMaxOpenConns(1)
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS plugin_settings (
				name TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS images (
				image_key TEXT PRIMARY KEY,
				hash TEXT NOT NULL,
				mime_type TEXT NOT NULL,
				size INTEGER NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_images_hash ON images(hash)`,
			`CREATE TABLE IF NOT EXISTS upload_tokens (
				token TEXT PRIMARY KEY,
				label TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME
			)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS plugin_settings (
				name VARCHAR(100) NOT NULL PRIMARY KEY,
				payload MEDIUMTEXT NOT NULL,
				updated_at DATETIME NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS images (
				image_key VARCHAR(512) NOT NULL PRIMARY KEY,
				hash CHAR(64) NOT NULL,
				mime_type VARCHAR(255) NOT NULL,
				size BIGINT NOT NULL,
				created_at DATETIME NOT NULL,
				INDEX idx_images_hash (hash)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS upload_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				label VARCHAR(255) NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

// OpenMemory opens a fresh, migrated in-memory sqlite database. Each call
// gets its own database.
func OpenMemory() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{
		"sqlite3": {DSN: dsn},
	}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, "sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
