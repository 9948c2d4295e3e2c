// Package history provides SQLite-based persistence for transcript entries.
// If opening the database fails the store keeps entries in memory instead.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/mentorchat/internal/logger"
	"github.com/comigor/mentorchat/internal/mentor"
	"github.com/comigor/mentorchat/internal/transcript"
)

const schema = `CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    sender TEXT NOT NULL,
    agent_label TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    route TEXT NOT NULL DEFAULT '',
    game TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_session ON entries(session_id, id);`

// Store persists entries per session in insertion order.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	memory map[string][]transcript.Entry // used when db is nil
	order  []string
}

// Open opens (or creates) the database at path. On failure it logs a warning and
// returns a memory-backed store.
func Open(path string) *Store {
	s := &Store{memory: make(map[string][]transcript.Entry)}
	if path == "" {
		logger.L.Info("history path empty; using in-memory history")
		return s
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		logger.L.Warn("sqlite open failed; using in-memory history", "error", err)
		return s
	}
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schema); err != nil {
		logger.L.Warn("sqlite table creation failed; using in-memory history", "error", err)
		db.Close()
		return s
	}
	logger.L.Info("sqlite history DB initialized", "path", path)
	s.db = db
	return s
}

// Persistent reports whether entries survive a restart.
func (s *Store) Persistent() bool {
	return s.db != nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save appends an entry to the session's history.
func (s *Store) Save(ctx context.Context, sessionID string, e transcript.Entry) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.memory[sessionID]; !ok {
			s.order = append(s.order, sessionID)
		}
		s.memory[sessionID] = append(s.memory[sessionID], e)
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (session_id, sender, agent_label, text, route, game, created_at) VALUES (?,?,?,?,?,?,?);`,
		sessionID, string(e.Sender), e.AgentLabel, e.Text, e.Route, e.Game, e.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

// List returns every entry of a session in insertion order.
func (s *Store) List(ctx context.Context, sessionID string) ([]transcript.Entry, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return append([]transcript.Entry(nil), s.memory[sessionID]...), nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, agent_label, text, route, game, created_at FROM entries WHERE session_id = ? ORDER BY id ASC;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []transcript.Entry
	for rows.Next() {
		var (
			e      transcript.Entry
			sender string
			nanos  int64
		)
		if err := rows.Scan(&sender, &e.AgentLabel, &e.Text, &e.Route, &e.Game, &nanos); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Sender = transcript.Sender(sender)
		e.Timestamp = time.Unix(0, nanos)
		normalize(&e)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete drops a session's history.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.memory, sessionID)
		for i, id := range s.order {
			if id == sessionID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE session_id = ?;`, sessionID); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	return nil
}

// Sessions returns the ids of sessions with stored entries, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return append([]string(nil), s.order...), nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM entries GROUP BY session_id ORDER BY MIN(id) ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// normalize maps stored route and game names onto known values. Rows written by
// older builds may carry aliases or names that are no longer offered.
func normalize(e *transcript.Entry) {
	if e.Route != "" {
		if r, err := mentor.ParseRoute(e.Route); err == nil {
			e.Route = string(r)
		} else {
			logger.L.Debug("dropping unknown route from history", "route", e.Route)
			e.Route = ""
		}
	}
	if g, err := mentor.ParseGame(e.Game); err == nil {
		e.Game = string(g)
	} else {
		logger.L.Debug("dropping unknown game from history", "game", e.Game)
		e.Game = ""
	}
}
