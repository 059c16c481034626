package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Kind tags where a memory came from.
type Kind string

const (
	KindChat    Kind = "chat"
	KindWork    Kind = "work"
	KindThought Kind = "thought"
)

// Memory is a short note Arq can recall in later prompts.
type Memory struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxTextLength bounds a stored memory.
const MaxTextLength = 280

// Store keeps memories and per-source usage counters in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS memories_created ON memories(created_at);`,
		`CREATE TABLE IF NOT EXISTS usage (
			source TEXT PRIMARY KEY,
			count INTEGER NOT NULL,
			last_used INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores m, assigning an ID and timestamp when missing. Text is trimmed
// and bounded to MaxTextLength.
func (s *Store) Add(ctx context.Context, m Memory) (Memory, error) {
	m.Text = strings.TrimSpace(m.Text)
	if m.Text == "" {
		return Memory{}, fmt.Errorf("memory text cannot be empty")
	}
	if r := []rune(m.Text); len(r) > MaxTextLength {
		m.Text = string(r[:MaxTextLength])
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories(id, kind, text, location, created_at) VALUES(?, ?, ?, ?, ?)`,
		m.ID, string(m.Kind), m.Text, m.Location, m.CreatedAt.UnixNano())
	if err != nil {
		return Memory{}, fmt.Errorf("failed to insert memory: %w", err)
	}
	return m, nil
}

// Recent returns up to limit memories, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Memory, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, text, location, created_at FROM memories
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Memory
	for rows.Next() {
		var (
			m    Memory
			kind string
			ts   int64
		)
		if err := rows.Scan(&m.ID, &kind, &m.Text, &m.Location, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.Kind = Kind(kind)
		m.CreatedAt = time.Unix(0, ts).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentSnippets returns the text of up to limit memories, newest first.
func (s *Store) RecentSnippets(ctx context.Context, limit int) ([]string, error) {
	mems, err := s.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(mems))
	for i, m := range mems {
		out[i] = m.Text
	}
	return out, nil
}

// Prune deletes all but the newest keep memories and reports how many went.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id NOT IN (
			SELECT id FROM memories ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune memories: %w", err)
	}
	return res.RowsAffected()
}

// IncrementUsage bumps the counter for source.
func (s *Store) IncrementUsage(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage(source, count, last_used) VALUES(?, 1, ?)
		 ON CONFLICT(source) DO UPDATE SET count = count + 1, last_used = excluded.last_used`,
		source, s.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// Usage returns every counter keyed by source.
func (s *Store) Usage(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, count FROM usage ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			source string
			n      int64
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		out[source] = n
	}
	return out, rows.Err()
}
