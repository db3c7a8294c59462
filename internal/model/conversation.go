package model

import (
	"errors"
	"time"
)

// ConversationType distinguishes direct chats from named groups.
type ConversationType string

const (
	ConversationSingle ConversationType = "single"
	ConversationGroup  ConversationType = "group"
)

// Conversation represents a conversation row. A single conversation is
// identified by its unordered pair of participants; a group carries an
// explicit name. At most one single conversation should exist per participant
// pair, but that is enforced by lookup-before-create only. A concurrent
// create from both sides can leave duplicates, which the synchronizer
// deduplicates on read.
type Conversation struct {
	ID           string           `gorm:"primaryKey" json:"id"`
	Type         ConversationType `json:"type"`
	Name         string           `json:"name,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Participants []Participant    `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`

	// LastMessage is populated by the synchronizer for display, never stored.
	LastMessage *Message `gorm:"-" json:"last_message,omitempty"`
}

// Participant links a user to a conversation.
type Participant struct {
	ConversationID string `gorm:"primaryKey" json:"conversation_id"`
	UserID         string `gorm:"primaryKey" json:"user_id"`
	User           *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName maps Participant to its relational table.
func (Participant) TableName() string {
	return "conversation_participants"
}

// Validate checks a conversation row decoded at the backend boundary.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return errors.New("conversation id cannot be empty")
	}
	switch c.Type {
	case ConversationSingle, ConversationGroup:
	default:
		return errors.New("conversation type must be single or group")
	}
	if c.Type == ConversationGroup && c.Name == "" {
		return errors.New("group conversation must have a name")
	}
	return nil
}

// HasParticipant reports whether userID participates in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the participant other than currentUserID in a single
// conversation, or nil if there is none.
func (c *Conversation) Counterpart(currentUserID string) *User {
	for _, p := range c.Participants {
		if p.UserID != currentUserID {
			return p.User
		}
	}
	return nil
}

// ParticipantIDs returns the user ids of all participants.
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// CreateGroupRequest is the request to create a group conversation.
type CreateGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
