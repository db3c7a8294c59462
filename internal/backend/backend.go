// Package backend wraps the hosted platform collaborators: the relational
// store, the auth session layer, and the per-channel change feed. Nothing in
// this package implements persistence or delivery itself; it adapts external
// services behind typed interfaces and validates every row at the boundary.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatline-app/chatline/internal/model"
)

// Table names in the relational store.
const (
	TableUsers        = "users"
	TableConversations = "conversations"
	TableParticipants = "conversation_participants"
	TableMessages     = "messages"
	TableTypingStatus = "typing_status"
)

// EventType classifies a change-feed event.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is a single row change delivered on the feed. Row carries the
// raw encoded row; use the typed accessors to decode and validate it.
type ChangeEvent struct {
	Table string          `json:"table"`
	Event EventType       `json:"event"`
	Row   json.RawMessage `json:"row"`
}

// Message decodes the event row as a message and validates it.
func (e *ChangeEvent) Message() (*model.Message, error) {
	var m model.Message
	if err := json.Unmarshal(e.Row, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message row: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("malformed message row: %w", err)
	}
	return &m, nil
}

// TypingStatus decodes the event row as a typing status and validates it.
func (e *ChangeEvent) TypingStatus() (*model.TypingStatus, error) {
	var ts model.TypingStatus
	if err := json.Unmarshal(e.Row, &ts); err != nil {
		return nil, fmt.Errorf("failed to decode typing status row: %w", err)
	}
	if err := ts.Validate(); err != nil {
		return nil, fmt.Errorf("malformed typing status row: %w", err)
	}
	return &ts, nil
}

// Filter scopes a feed subscription to a table and conversation.
type Filter struct {
	Table          string
	ConversationID string
}

// Subscription is a disposable handle for an active feed subscription.
// Unsubscribe must be called when the owning view unmounts or the selected
// conversation changes; a leaked subscription causes duplicate delivery on
// the next subscribe.
type Subscription interface {
	Unsubscribe() error
}

// Feed is the change-feed capability: publish a row change, or subscribe to
// changes scoped by a filter. The channel name identifies the subscription
// and must be unique per (conversation, consumer) to avoid cross-talk
// between simultaneously open sessions.
type Feed interface {
	Subscribe(channel string, filter Filter, events []EventType, fn func(ChangeEvent)) (Subscription, error)
	Publish(ctx context.Context, filter Filter, event ChangeEvent) error
}

// Store is the row CRUD capability over the relational collaborator.
type Store interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error

	ListConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	ListConversationsByType(ctx context.Context, t model.ConversationType) ([]model.Conversation, error)
	CreateConversation(ctx context.Context, c *model.Conversation) error
	AddParticipants(ctx context.Context, conversationID string, userIDs []string) error

	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	LatestMessage(ctx context.Context, conversationID string) (*model.Message, error)
	CreateMessage(ctx context.Context, m *model.Message) error

	GetTypingStatus(ctx context.Context, conversationID, userID string) (*model.TypingStatus, error)
	UpsertTypingStatus(ctx context.Context, ts *model.TypingStatus) error
}

// Session is an authenticated user session.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Auth is the session capability: passwordless sign-in with a one-time code,
// code-for-session exchange, session retrieval, and revocation.
type Auth interface {
	SignInWithOTP(ctx context.Context, email string) (code string, err error)
	ExchangeCode(ctx context.Context, code string) (*Session, error)
	GetSession(ctx context.Context, token string) (*Session, error)
	SignOut(ctx context.Context, token string) error
}
