// Package model defines data structures for the messaging platform.
package model

import (
	"errors"
	"strings"
	"time"
)

// User represents a registered user. Identity is immutable; rows are created
// by the auth provisioning flow on first login.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks a user row decoded at the backend boundary.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user id cannot be empty")
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return errors.New("user email is malformed")
	}
	return nil
}

// NameFromEmail derives a default display name from an email address,
// using the part before the @ sign.
func NameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return "User"
}

// Peer identifies what the user has open in the thread view: another user for
// a single chat, or a group conversation.
type Peer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	IsGroup bool   `json:"is_group"`
}
