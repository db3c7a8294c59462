package model

import (
	"errors"
	"time"
	"unicode/utf8"
)

// Message represents a conversation message. Messages are append-only: they
// are never mutated or deleted, and are ordered by created_at ascending
// within a conversation.
type Message struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"index" json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// MaxContentLength bounds message content, roughly 100KB.
const MaxContentLength = 100000

// Validate checks a message row decoded at the backend boundary.
func (m *Message) Validate() error {
	if m.ID == "" {
		return errors.New("message id cannot be empty")
	}
	if m.ConversationID == "" {
		return errors.New("message conversation id cannot be empty")
	}
	if m.SenderID == "" {
		return errors.New("message sender id cannot be empty")
	}
	if len(m.Content) == 0 {
		return errors.New("message content cannot be empty")
	}
	if len(m.Content) > MaxContentLength {
		return errors.New("message content exceeds maximum length")
	}
	if !utf8.ValidString(m.Content) {
		return errors.New("message content must be valid UTF-8")
	}
	return nil
}

// SendMessageRequest is the request to send a message to the selected peer.
type SendMessageRequest struct {
	Peer    Peer   `json:"peer"`
	Content string `json:"content"`
}

// ListMessagesResponse is the response for listing messages in a thread.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
