// Package store persists call completion records. The log is
// append-only: one row per terminal transition, never updated.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
)

type SQLite struct {
	db *sql.DB
}

var _ core.CompletionStore = (*SQLite)(nil)

// Open opens or creates the completion log at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS completions (
			session_id    TEXT PRIMARY KEY,
			conversation  TEXT NOT NULL,
			peer          TEXT NOT NULL,
			direction     TEXT NOT NULL,
			category      TEXT NOT NULL,
			duration_ms   INTEGER NOT NULL,
			read          INTEGER NOT NULL,
			created_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_completions_conversation
			ON completions (conversation, created_at DESC);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create completions table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Append(ctx context.Context, rec domain.Completion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completions
			(session_id, conversation, peer, direction, category, duration_ms, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID.String(),
		string(rec.Conversation),
		string(rec.Peer),
		rec.Direction.String(),
		rec.Category,
		rec.Duration.Milliseconds(),
		rec.Read,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append completion: %w", err)
	}
	return nil
}

func (s *SQLite) ListByConversation(ctx context.Context, conv domain.ConversationID, limit int) ([]domain.Completion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, conversation, peer, direction, category, duration_ms, read, created_at
		FROM completions
		WHERE conversation = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		string(conv), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []domain.Completion
	for rows.Next() {
		var (
			rec        domain.Completion
			sid        string
			direction  string
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&sid, &rec.Conversation, &rec.Peer, &direction,
			&rec.Category, &durationMS, &rec.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		id, err := uuid.Parse(sid)
		if err != nil {
			return nil, fmt.Errorf("corrupt session id %q: %w", sid, err)
		}
		rec.SessionID = id
		if direction == "incoming" {
			rec.Direction = domain.Incoming
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
