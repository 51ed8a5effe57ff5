// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the SQLite persistence layer for the kbagent
// service.
//
// # Description
//
// SQLiteStore owns three tables: knowledge_bases (the registry conversations
// anchor to), conversations, and messages. The embedded driver
// (modernc.org/sqlite, pure Go) keeps the service deployable as a single
// binary with a single data file; WAL mode allows a concurrent reader during
// writes.
//
// Timestamps are stored as RFC3339Nano UTC strings. Message ordering uses
// created_at with rowid as a tiebreaker so that appends within the same
// nanosecond still read back in insertion order.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AleutianAI/AleutianKB/services/kbagent/conversation"
	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
)

// SQLiteStore implements conversation.Store on an embedded SQLite database.
//
// # Thread Safety
//
// Safe for concurrent use; database/sql pools connections and SQLite WAL
// mode serializes writers.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface compliance.
var _ conversation.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at dbPath and applies the
// schema.
//
// # Inputs
//
//   - dbPath: Filesystem path of the database file. Parent directories are
//     created as needed. ":memory:" yields an ephemeral database for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_bases (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		kb_id      TEXT NOT NULL REFERENCES knowledge_bases(id),
		title      TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_kb ON conversations(kb_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		metadata        TEXT,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Knowledge Base Registry
// =============================================================================

// CreateKnowledgeBase persists a knowledge base registration.
func (s *SQLiteStore) CreateKnowledgeBase(ctx context.Context, kb *datatypes.KnowledgeBase) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_bases (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		kb.ID, kb.Name, kb.Description, formatTime(kb.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert knowledge base: %w", err)
	}
	return nil
}

// GetKnowledgeBase returns the knowledge base or (nil, nil) when unknown.
func (s *SQLiteStore) GetKnowledgeBase(ctx context.Context, id string) (*datatypes.KnowledgeBase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM knowledge_bases WHERE id = ?`, id)

	var kb datatypes.KnowledgeBase
	var createdAt string
	if err := row.Scan(&kb.ID, &kb.Name, &kb.Description, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan knowledge base: %w", err)
	}
	kb.CreatedAt = parseTime(createdAt)
	return &kb, nil
}

// ListKnowledgeBases returns all registered knowledge bases, newest first.
func (s *SQLiteStore) ListKnowledgeBases(ctx context.Context) ([]datatypes.KnowledgeBase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM knowledge_bases ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query knowledge bases: %w", err)
	}
	defer rows.Close()

	out := make([]datatypes.KnowledgeBase, 0)
	for rows.Next() {
		var kb datatypes.KnowledgeBase
		var createdAt string
		if err := rows.Scan(&kb.ID, &kb.Name, &kb.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan knowledge base: %w", err)
		}
		kb.CreatedAt = parseTime(createdAt)
		out = append(out, kb)
	}
	return out, rows.Err()
}

// KnowledgeBaseExists implements conversation.Store.
func (s *SQLiteStore) KnowledgeBaseExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM knowledge_bases WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query knowledge base: %w", err)
	}
	return true, nil
}

// =============================================================================
// Conversations
// =============================================================================

// CreateConversation implements conversation.Store.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *datatypes.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, kb_id, title, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.KnowledgeBaseID, conv.Title, conv.Status,
		formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetConversation implements conversation.Store.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*datatypes.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kb_id, title, status, created_at, updated_at FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return conv, nil
}

// UpdateConversation implements conversation.Store. Non-nil fields are
// applied together with a refreshed updated_at; (nil, nil) is returned when
// the id does not exist.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, title, status *string) (*datatypes.Conversation, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now().UTC())}
	if title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *title)
	}
	if status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *status)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetConversation(ctx, id)
}

// ListConversations implements conversation.Store.
func (s *SQLiteStore) ListConversations(ctx context.Context, filter conversation.ListFilter) ([]datatypes.Conversation, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.KnowledgeBaseID != "" {
		where = append(where, "kb_id = ?")
		args = append(args, filter.KnowledgeBaseID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Skip)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kb_id, title, status, created_at, updated_at
		 FROM conversations WHERE `+cond+`
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	out := make([]datatypes.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *conv)
	}
	return out, total, rows.Err()
}

// =============================================================================
// Messages
// =============================================================================

// CreateMessage implements conversation.Store. The insert and the owning
// conversation's updated_at refresh commit in one transaction so a list
// ordered by recent activity can never miss a committed message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *datatypes.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var metadata sql.NullString
	if msg.Metadata != nil {
		metadata = sql.NullString{String: *msg.Metadata, Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, metadata, formatTime(msg.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(msg.CreatedAt), msg.ConversationID,
	); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	return tx.Commit()
}

// ListMessages implements conversation.Store. Returns the most recent limit
// messages in chronological order: the inner query selects the newest rows,
// the outer one restores oldest-first ordering.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]datatypes.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at FROM (
			SELECT id, conversation_id, role, content, metadata, created_at, rowid AS rid
			FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		 ) ORDER BY created_at ASC, rid ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]datatypes.Message, 0)
	for rows.Next() {
		var msg datatypes.Message
		var metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if metadata.Valid {
			msg.Metadata = &metadata.String
		}
		msg.CreatedAt = parseTime(createdAt)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*datatypes.Conversation, error) {
	var conv datatypes.Conversation
	var createdAt, updatedAt string
	if err := row.Scan(&conv.ID, &conv.KnowledgeBaseID, &conv.Title, &conv.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	return &conv, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
