// Package cardstore provides the SQLite-backed store for local draft cards
// and persisted user settings, with optional FTS5 search over draft content.
package cardstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/settings"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cards (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	template_id   TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	source_title  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'draft',
	checksum      TEXT NOT NULL DEFAULT '',
	created       TEXT NOT NULL DEFAULT '',
	updated       TEXT NOT NULL DEFAULT '',
	obsidian_path TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cards_source_url ON cards(source_url);
CREATE INDEX IF NOT EXISTS idx_cards_status ON cards(status);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const settingsKey = "settings"

// Store wraps a sql.DB with card and settings operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cardstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cardstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cardstore: apply schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cardstore: apply fts schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Settings loads the persisted settings blob with defaults merged in.
// A missing or unreadable blob yields pure defaults.
func (s *Store) Settings() (*settings.Settings, error) {
	var raw string
	err := s.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return settings.Default(), nil
		}
		return nil, fmt.Errorf("cardstore: load settings: %w", err)
	}

	var cfg settings.Settings
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		// A corrupt blob is not fatal; the user gets defaults back.
		return settings.Default(), nil
	}
	return settings.Merge(&cfg), nil
}

// SaveSettings persists the full settings blob (last writer wins).
func (s *Store) SaveSettings(cfg *settings.Settings) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cardstore: marshal settings: %w", err)
	}
	_, err = s.conn.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, settingsKey, string(raw))
	if err != nil {
		return fmt.Errorf("cardstore: save settings: %w", err)
	}
	return nil
}
