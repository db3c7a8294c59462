// Package cache provides the local offline cache: a disposable, rebuildable
// projection of backend rows used for fast initial paint. It holds two
// logical tables: messages keyed by id with a secondary index on
// conversation id, and conversations keyed by id. Writes are whole-record
// overwrites, so concurrent writers converge last-write-wins.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/pkg/metrics"
)

// Conversation is the denormalized cached copy of a conversation row. It is
// overwritten wholesale by the next full reload, never merged field by field.
type Conversation struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Name         string         `json:"name,omitempty"`
	Participants []string       `json:"participants"`
	LastMessage  *model.Message `json:"last_message,omitempty"`
}

// Cache is the SQLite-backed local store.
type Cache struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_by_conversation ON messages(conversation_id);
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	record TEXT NOT NULL
);
`

// Open opens (or creates) the cache database at path. Use ":memory:" for an
// ephemeral cache.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// SQLite allows one writer; a second pooled connection would also see a
	// different database entirely when path is ":memory:".
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// PutMessage stores one message, overwriting any previous record by id.
func (c *Cache) PutMessage(ctx context.Context, m model.Message) error {
	metrics.RecordCacheOp("messages", "put")
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (id, conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to put message: %w", err)
	}
	return nil
}

// PutMessages stores a batch of messages in one transaction.
func (c *Cache) PutMessages(ctx context.Context, msgs []model.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO messages (id, conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cache statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		metrics.RecordCacheOp("messages", "put")
		if _, err := stmt.ExecContext(ctx, m.ID, m.ConversationID, m.SenderID, m.Content, m.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to put message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// MessagesByConversation reads cached messages through the secondary index,
// ascending by created_at.
func (c *Cache) MessagesByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	metrics.RecordCacheOp("messages", "get_by_index")
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var createdAt time.Time
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan cached message: %w", err)
		}
		m.CreatedAt = createdAt
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PutConversation stores one conversation record, overwriting by id.
func (c *Cache) PutConversation(ctx context.Context, conv Conversation) error {
	metrics.RecordCacheOp("conversations", "put")
	record, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation record: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversations (id, record) VALUES (?, ?)`,
		conv.ID, string(record),
	)
	if err != nil {
		return fmt.Errorf("failed to put conversation: %w", err)
	}
	return nil
}

// GetConversation reads one cached conversation, or nil if absent.
func (c *Cache) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	metrics.RecordCacheOp("conversations", "get")
	var record string
	err := c.db.QueryRowContext(ctx, `SELECT record FROM conversations WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal([]byte(record), &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation record: %w", err)
	}
	return &conv, nil
}

// Conversations reads all cached conversations.
func (c *Cache) Conversations(ctx context.Context) ([]Conversation, error) {
	metrics.RecordCacheOp("conversations", "get_all")
	rows, err := c.db.QueryContext(ctx, `SELECT record FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan cached conversation: %w", err)
		}
		var conv Conversation
		if err := json.Unmarshal([]byte(record), &conv); err != nil {
			return nil, fmt.Errorf("failed to decode conversation record: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// ClearMessages drops every cached message.
func (c *Cache) ClearMessages(ctx context.Context) error {
	metrics.RecordCacheOp("messages", "clear")
	_, err := c.db.ExecContext(ctx, `DELETE FROM messages`)
	return err
}

// ClearConversations drops every cached conversation.
func (c *Cache) ClearConversations(ctx context.Context) error {
	metrics.RecordCacheOp("conversations", "clear")
	_, err := c.db.ExecContext(ctx, `DELETE FROM conversations`)
	return err
}
