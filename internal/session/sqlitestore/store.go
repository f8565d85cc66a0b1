// Package sqlitestore persists sessions in a single SQLite database file.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/DrShushen/climb/internal/session"
)

// Store is a session.Store backed by SQLite. Each session is one JSON document row.
type Store struct {
	db *sql.DB
}

var _ session.Store = (*Store)(nil)

// Open opens (or creates) the database and initializes the schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	// WAL allows readers alongside the single writer.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		started_at  INTEGER NOT NULL,
		document    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS user_settings (
		id       INTEGER PRIMARY KEY CHECK (id = 1),
		document TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) GetSession(ctx context.Context, key string) (*session.Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM sessions WHERE session_key = ?`, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitestore.Store.GetSession(%q): %w", key, session.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetSession(%q): %w", key, err)
	}
	sess, err := session.Unmarshal([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetSession(%q): %w", key, err)
	}
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	doc, err := session.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sqlitestore.Store.UpdateSession(%q): %w", sess.SessionKey, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_key, started_at, document) VALUES (?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET started_at = excluded.started_at, document = excluded.document`,
		sess.SessionKey, sess.StartedAt.UnixNano(), string(doc))
	if err != nil {
		return fmt.Errorf("sqlitestore.Store.UpdateSession(%q): %w", sess.SessionKey, err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("sqlitestore.Store.DeleteSession(%q): %w", key, err)
	}
	return nil
}

func (s *Store) GetAllSessions(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM sessions ORDER BY started_at DESC, session_key`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetAllSessions: %w", err)
	}
	defer rows.Close()

	out := []*session.Session{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlitestore.Store.GetAllSessions: %w", err)
		}
		sess, err := session.Unmarshal([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("sqlitestore.Store.GetAllSessions: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) GetUserSettings(ctx context.Context) (*session.UserSettings, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM user_settings WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return &session.UserSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetUserSettings: %w", err)
	}
	var settings session.UserSettings
	if err := json.Unmarshal([]byte(doc), &settings); err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetUserSettings: %w", err)
	}
	return &settings, nil
}

func (s *Store) UpdateUserSettings(ctx context.Context, settings *session.UserSettings) error {
	doc, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("sqlitestore.Store.UpdateUserSettings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_settings (id, document) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document`, string(doc))
	if err != nil {
		return fmt.Errorf("sqlitestore.Store.UpdateUserSettings: %w", err)
	}
	return nil
}
