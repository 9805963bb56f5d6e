// Package transcript persists chat turns to a local SQLite database so a
// conversation can be listed, replayed or resumed later.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ravi-parthasarathy/agenttrace/pkg/agent"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT    NOT NULL,
	role       TEXT    NOT NULL,
	text       TEXT    NOT NULL,
	details    TEXT    NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id);
`

// details holds the structured parts of a turn, stored as JSON.
type details struct {
	Images   []string      `json:"images,omitempty"`
	Traces   []trace.Entry `json:"traces,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// SessionInfo summarises one stored session.
type SessionInfo struct {
	ID     string
	Turns  int
	LastAt time.Time
}

// Store is a SQLite-backed transcript. It implements agent.TurnStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	// Single writer; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveTurn appends t to the session's transcript.
func (s *Store) SaveTurn(ctx context.Context, sessionID string, t agent.Turn) error {
	d, err := json.Marshal(details{Images: t.Images, Traces: t.Traces, Warnings: t.Warnings})
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns(session_id, role, text, details, created_at) VALUES(?, ?, ?, ?, ?)`,
		sessionID, string(t.Role), t.Text, string(d), at.UnixNano())
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// Load returns the turns of a session in the order they were saved.
func (s *Store) Load(ctx context.Context, sessionID string) ([]agent.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, details, created_at FROM turns WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	var turns []agent.Turn
	for rows.Next() {
		var (
			role, text, raw string
			created         int64
		)
		if err := rows.Scan(&role, &text, &raw, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		var d details
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode turn details: %w", err)
		}
		turns = append(turns, agent.Turn{
			Role:     agent.Role(role),
			Text:     text,
			Images:   d.Images,
			Traces:   d.Traces,
			Warnings: d.Warnings,
			At:       time.Unix(0, created).UTC(),
		})
	}
	return turns, rows.Err()
}

// Sessions lists stored sessions, most recently active first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MAX(created_at) FROM turns GROUP BY session_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			info SessionInfo
			last int64
		)
		if err := rows.Scan(&info.ID, &info.Turns, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.LastAt = time.Unix(0, last).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes every turn of a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
