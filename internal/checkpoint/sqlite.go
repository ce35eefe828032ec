package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists cursors in a single-table SQLite database. Useful
// when the data dir should hold one file instead of one file per room.
type SQLiteStore struct {
	db *sql.DB
}

// schema contains the full checkpoint schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS sync_cursors (
    room_id TEXT PRIMARY KEY,
    token TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// OpenSQLite creates or opens the checkpoint database at the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging checkpoint database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// OpenSQLiteMemory creates an in-memory checkpoint database for testing.
func OpenSQLiteMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory checkpoint database: %w", err)
	}
	// Each pooled connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Load(roomID string) (string, error) {
	var token string
	err := s.db.QueryRow(`SELECT token FROM sync_cursors WHERE room_id = ?`, roomID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading cursor for %s: %w", roomID, err)
	}
	return token, nil
}

func (s *SQLiteStore) Save(roomID, token string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_cursors (room_id, token, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(room_id) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at`,
		roomID, token)
	if err != nil {
		return fmt.Errorf("saving cursor for %s: %w", roomID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
