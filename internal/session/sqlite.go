package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valetd/valet/internal/provider"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	agent      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	messages   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
`

// SQLiteStore keeps sessions in a single sessions.db file. Preferred
// once transcripts grow past what per-file JSON handles comfortably.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) sessions.db under the
// state directory.
func NewSQLiteStore(stateDir string) (*SQLiteStore, error) {
	path := filepath.Join(stateDir, "sessions.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sessions db: %w", err)
	}
	// The driver is in-process; one writer avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sessions schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the session.
func (s *SQLiteStore) Save(sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session: empty id")
	}
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, agent, created_at, updated_at, messages)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent = excluded.agent,
			updated_at = excluded.updated_at,
			messages = excluded.messages`,
		sess.ID, sess.Agent,
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(messages))
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads one session.
func (s *SQLiteStore) Load(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, agent, created_at, updated_at, messages FROM sessions WHERE id = ?`, id)

	var sess Session
	var created, updated, messages string
	err := row.Scan(&sess.ID, &sess.Agent, &created, &updated, &messages)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("load session %s: created_at: %w", id, err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("load session %s: updated_at: %w", id, err)
	}
	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return nil, fmt.Errorf("load session %s: messages: %w", id, err)
	}
	return &sess, nil
}

// List returns summaries, most recently updated first.
func (s *SQLiteStore) List() ([]Summary, error) {
	rows, err := s.db.Query(
		`SELECT id, agent, updated_at, messages FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var updated, messages string
		if err := rows.Scan(&sum.ID, &sum.Agent, &updated, &messages); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		if sum.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("list sessions: updated_at: %w", err)
		}
		var msgs []provider.Message
		if err := json.Unmarshal([]byte(messages), &msgs); err == nil {
			sum.Messages = len(msgs)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a session. Deleting an absent id is an error.
func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
