package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	user_id    TEXT PRIMARY KEY,
	events     TEXT NOT NULL DEFAULT '[]',
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite implements Provider with one row per user.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Load returns the stored collection for user.
func (s *SQLite) Load(ctx context.Context, user string) ([]models.Entity, error) {
	if err := ValidUser(user); err != nil {
		return nil, err
	}
	var raw string
	err := s.conn.QueryRowContext(ctx, `SELECT events FROM documents WHERE user_id = ?`, user).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.Entity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load %s: %w", user, err)
	}
	var out []models.Entity
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", user, err)
	}
	if out == nil {
		out = []models.Entity{}
	}
	return out, nil
}

// Save upserts the collection for user within a transaction.
func (s *SQLite) Save(ctx context.Context, user string, entities []models.Entity) error {
	if err := ValidUser(user); err != nil {
		return err
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", user, err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (user_id, events, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			events     = excluded.events,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, user, string(data), checksum.Sum(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: upsert %s: %w", user, err)
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
