package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultSettingsName = "upload"

// SQLStore keeps the settings object in the plugin_settings table.
type SQLStore struct {
	db   *sql.DB
	name string
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, name: defaultSettingsName}
}

func (s *SQLStore) Load(ctx context.Context) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM plugin_settings WHERE name = ?`, s.name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return []byte(payload), nil
}

func (s *SQLStore) Save(ctx context.Context, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plugin_settings WHERE name = ?`, s.name); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plugin_settings (name, payload, updated_at) VALUES (?, ?, ?)`,
		s.name, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
