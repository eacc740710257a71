// Package history persists terminal execution contexts to SQLite so
// past runs survive process restarts. When no database path is
// configured the store degrades to an in-memory ring, which is enough
// for one-shot CLI use.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// ErrNotFound indicates no history entry exists for the given ID.
var ErrNotFound = errors.New("execution not found in history")

// Entry is one persisted execution record.
type Entry struct {
	ExecutionID string
	UserID      string
	Status      models.ExecutionStatus
	Request     string
	Context     *models.ExecutionContext
	RecordedAt  time.Time
}

// Store persists execution history. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string

	// mem is the fallback when no database is configured.
	mem []Entry
}

// DefaultDBPath returns the XDG data location for the history database.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "quorum", "history.db")
}

// Open opens (or creates) the history database at path and applies the
// schema. An empty path yields an in-memory store.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{}, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Path returns the database file path, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			execution_id TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL,
			request      TEXT NOT NULL DEFAULT '',
			context      TEXT NOT NULL,
			recorded_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_executions_recorded
			ON executions(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("migrate history schema: %w", err)
	}
	return nil
}

// Append records a terminal execution context. Re-appending the same
// execution ID overwrites the previous record.
func (s *Store) Append(ctx context.Context, ec *models.ExecutionContext) error {
	entry := Entry{
		ExecutionID: ec.ID,
		UserID:      ec.UserID,
		Status:      ec.Status,
		Context:     ec,
		RecordedAt:  time.Now(),
	}
	if ec.Plan != nil {
		entry.Request = ec.Plan.Request
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		for i := range s.mem {
			if s.mem[i].ExecutionID == entry.ExecutionID {
				s.mem[i] = entry
				return nil
			}
		}
		s.mem = append(s.mem, entry)
		return nil
	}

	payload, err := json.Marshal(ec)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", ec.ID, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO executions (execution_id, user_id, status, request, context, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			status = excluded.status,
			context = excluded.context,
			recorded_at = excluded.recorded_at
	`, entry.ExecutionID, entry.UserID, string(entry.Status), entry.Request, string(payload), entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("append execution %s: %w", ec.ID, err)
	}
	return nil
}

// Get returns the persisted context for an execution ID.
func (s *Store) Get(ctx context.Context, executionID string) (*models.ExecutionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		for i := range s.mem {
			if s.mem[i].ExecutionID == executionID {
				return s.mem[i].Context, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}

	var payload string
	row := s.conn.QueryRowContext(ctx,
		"SELECT context FROM executions WHERE execution_id = ?", executionID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, executionID)
		}
		return nil, fmt.Errorf("get execution %s: %w", executionID, err)
	}

	var ec models.ExecutionContext
	if err := json.Unmarshal([]byte(payload), &ec); err != nil {
		return nil, fmt.Errorf("decode execution %s: %w", executionID, err)
	}
	return &ec, nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		start := len(s.mem) - n
		if start < 0 {
			start = 0
		}
		out := make([]Entry, 0, len(s.mem)-start)
		for i := len(s.mem) - 1; i >= start; i-- {
			out = append(out, s.mem[i])
		}
		return out, nil
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT execution_id, user_id, status, request, context, recorded_at
		FROM executions ORDER BY recorded_at DESC, execution_id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var status, payload string
		if err := rows.Scan(&e.ExecutionID, &e.UserID, &status, &e.Request, &payload, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Status = models.ExecutionStatus(status)
		var ec models.ExecutionContext
		if err := json.Unmarshal([]byte(payload), &ec); err != nil {
			return nil, fmt.Errorf("decode execution %s: %w", e.ExecutionID, err)
		}
		e.Context = &ec
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune removes entries recorded before the cutoff and returns how many
// were deleted.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		kept := s.mem[:0]
		var removed int64
		for _, e := range s.mem {
			if e.RecordedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		s.mem = kept
		return removed, nil
	}

	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM executions WHERE recorded_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
