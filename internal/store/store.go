// Package store persists chat traffic to SQLite so conversations survive
// daemon restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/thalassa-ai/thalassa/internal/chat"
	"github.com/thalassa-ai/thalassa/internal/entity"
)

type Store struct {
	db *sqlx.DB
}

// Open creates the database file (and its parent directory) if needed and
// initializes the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize store schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		sender_role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages (chat_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveMessage persists one chat message. Saving the same message id twice is
// a no-op so replayed bus events stay harmless.
func (s *Store) SaveMessage(ctx context.Context, msg *chat.Message) error {
	metadata := "{}"
	if len(msg.Metadata) > 0 {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, sender_name, sender_role, content, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, msg.ID, msg.ChatID, msg.Sender.ID, msg.Sender.Name, string(msg.Sender.Role), msg.Content, metadata, msg.Timestamp)
	return err
}

// ChatHistory returns the chat's messages in chronological order. A limit of
// zero returns everything; otherwise the most recent messages win, still
// oldest first.
func (s *Store) ChatHistory(ctx context.Context, chatID string, limit int) ([]*chat.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, sender_name, sender_role, content, metadata, timestamp
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp ASC
	`
	args := []any{chatID}
	if limit > 0 {
		query = `
			SELECT id, chat_id, sender_id, sender_name, sender_role, content, metadata, timestamp
			FROM (
				SELECT id, chat_id, sender_id, sender_name, sender_role, content, metadata, timestamp
				FROM messages
				WHERE chat_id = ?
				ORDER BY timestamp DESC
				LIMIT ?
			)
			ORDER BY timestamp ASC
		`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var messages []*chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SaveUser records a participant, updating the name and role on conflict.
func (s *Store) SaveUser(ctx context.Context, id entity.ID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role
	`, id.ID, id.Name, string(id.Role))
	return err
}

// GetUser looks up a participant by id.
func (s *Store) GetUser(ctx context.Context, id string) (entity.ID, error) {
	var name, role string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, role FROM users WHERE id = ?
	`, id).Scan(&name, &role)
	if err == sql.ErrNoRows {
		return entity.ID{}, fmt.Errorf("unknown user %s", id)
	}
	if err != nil {
		return entity.ID{}, err
	}
	return entity.New(id, name, entity.Role(role)), nil
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*chat.Message, error) {
	msg := &chat.Message{}
	var senderID, senderName, senderRole string
	var metadata sql.NullString
	var timestamp time.Time
	if err := scanner.Scan(
		&msg.ID,
		&msg.ChatID,
		&senderID,
		&senderName,
		&senderRole,
		&msg.Content,
		&metadata,
		&timestamp,
	); err != nil {
		return nil, err
	}
	msg.Sender = entity.New(senderID, senderName, entity.Role(senderRole))
	msg.Timestamp = timestamp
	if metadata.Valid && metadata.String != "" && metadata.String != "{}" {
		if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
			msg.Metadata = nil
		}
	}
	return msg, nil
}
