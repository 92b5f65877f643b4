package chat

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one stored chat line
type Entry struct {
	ID       int64
	Username string
	Text     string
	SentAt   time.Time
}

func (e Entry) String() string {
	return fmt.Sprintf("%s: %s", e.Username, e.Text)
}

// History stores chat lines in SQLite
type History struct {
	db     *sql.DB
	dbPath string
}

// OpenHistory opens or creates the history database at dbPath
func OpenHistory(dbPath string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// one writer keeps SQLite from reporting a busy database
	db.SetMaxOpenConns(1)

	h := &History{db: db, dbPath: dbPath}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return h, nil
}

// Path returns the database file path
func (h *History) Path() string {
	return h.dbPath
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		text TEXT NOT NULL,
		sent_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_sent_at ON chat_messages(sent_at);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Append stores one chat line
func (h *History) Append(ctx context.Context, username, text string) error {
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO chat_messages (username, text, sent_at) VALUES (?, ?, ?)",
		username, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append chat line: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest lines, oldest first
func (h *History) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := h.db.QueryContext(ctx,
		"SELECT id, username, text, sent_at FROM chat_messages ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Username, &e.Text, &e.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Count returns the number of stored lines
func (h *History) Count(ctx context.Context) (int, error) {
	var n int
	if err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chat lines: %w", err)
	}
	return n, nil
}
