package model

import (
	"errors"
	"time"
)

// TypingStatus is one logical row per (conversation_id, user_id) pair,
// upserted rather than appended. It is ephemeral: meaningful only for a few
// seconds after the last keystroke.
type TypingStatus struct {
	ConversationID string    `gorm:"primaryKey" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey" json:"user_id"`
	IsTyping       bool      `json:"is_typing"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName maps TypingStatus to its relational table.
func (TypingStatus) TableName() string {
	return "typing_status"
}

// Validate checks a typing status row decoded at the backend boundary.
func (t *TypingStatus) Validate() error {
	if t.ConversationID == "" {
		return errors.New("typing status conversation id cannot be empty")
	}
	if t.UserID == "" {
		return errors.New("typing status user id cannot be empty")
	}
	return nil
}
