package backend_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatline-app/chatline/internal/backend"
)

func TestChangeEventDecodesMessage(t *testing.T) {
	event := backend.ChangeEvent{
		Table: backend.TableMessages,
		Event: backend.EventInsert,
		Row:   json.RawMessage(`{"id":"m1","conversation_id":"c1","sender_id":"u1","content":"hi","created_at":"2026-08-29T12:00:00Z"}`),
	}

	msg, err := event.Message()
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.Equal(t, "hi", msg.Content)
}

func TestChangeEventRejectsMalformedMessage(t *testing.T) {
	// Not valid JSON.
	event := backend.ChangeEvent{Table: backend.TableMessages, Event: backend.EventInsert, Row: json.RawMessage(`{`)}
	_, err := event.Message()
	assert.Error(t, err)

	// Decodes but fails validation: empty content.
	event.Row = json.RawMessage(`{"id":"m1","conversation_id":"c1","sender_id":"u1","content":""}`)
	_, err = event.Message()
	assert.Error(t, err)
}

func TestChangeEventDecodesTypingStatus(t *testing.T) {
	event := backend.ChangeEvent{
		Table: backend.TableTypingStatus,
		Event: backend.EventUpdate,
		Row:   json.RawMessage(`{"conversation_id":"c1","user_id":"u2","is_typing":true,"updated_at":"2026-08-29T12:00:00Z"}`),
	}

	ts, err := event.TypingStatus()
	require.NoError(t, err)
	assert.Equal(t, "u2", ts.UserID)
	assert.True(t, ts.IsTyping)
}

func TestChangeEventRejectsMalformedTypingStatus(t *testing.T) {
	event := backend.ChangeEvent{
		Table: backend.TableTypingStatus,
		Event: backend.EventUpdate,
		Row:   json.RawMessage(`{"conversation_id":"c1","is_typing":true}`),
	}
	_, err := event.TypingStatus()
	assert.Error(t, err)
}
