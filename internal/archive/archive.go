// Package archive keeps a history of generated summaries in SQLite.
// The message log itself stays in the CSV store; the archive only
// records pipeline output so past summaries can be listed per chat.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Summary is one archived pipeline result.
type Summary struct {
	ID        int64
	ChatID    int64
	Label     string
	Body      string
	MsgCount  int
	CreatedAt time.Time
}

// Store wraps the SQLite archive database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, q := range pragmas {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id    INTEGER NOT NULL,
	label      TEXT NOT NULL,
	body       TEXT NOT NULL,
	msg_count  INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_summaries_chat ON summaries(chat_id, created_at DESC);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init archive schema: %w", err)
	}
	return nil
}

// Save records one generated summary.
func (s *Store) Save(ctx context.Context, chatID int64, label, body string, msgCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (chat_id, label, body, msg_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		chatID, label, body, msgCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// Recent returns up to n summaries for chatID, newest first.
func (s *Store) Recent(ctx context.Context, chatID int64, n int) ([]Summary, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, label, body, msg_count, created_at
		 FROM summaries WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		chatID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.ChatID, &sum.Label, &sum.Body, &sum.MsgCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
