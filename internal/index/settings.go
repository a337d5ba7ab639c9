package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/quire/internal/apperr"
)

// LoadSetting decodes the settings record kind into v.
// It returns apperr.ErrNotFound when the record was never saved.
func (db *DB) LoadSetting(kind string, v any) error {
	var data string
	err := db.conn.QueryRow(`SELECT data FROM settings WHERE kind = ?`, kind).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("index: setting %q: %w", kind, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("index: load setting %q: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("index: decode setting %q: %w", kind, err)
	}
	return nil
}

// SaveSetting stores v as the settings record kind, replacing any previous value.
func (db *DB) SaveSetting(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("index: encode setting %q: %w", kind, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO settings (kind, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(kind) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, kind, string(data))
	if err != nil {
		return fmt.Errorf("index: save setting %q: %w", kind, err)
	}
	return nil
}
