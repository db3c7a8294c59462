package middleware_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatline-app/chatline/internal/middleware"
)

func TestValidateConversationID(t *testing.T) {
	assert.NoError(t, middleware.ValidateConversationID("550e8400-e29b-41d4-a716-446655440000"))
	assert.Error(t, middleware.ValidateConversationID(""))
	assert.Error(t, middleware.ValidateConversationID("not-a-uuid"))
}

func TestValidateUserID(t *testing.T) {
	assert.NoError(t, middleware.ValidateUserID("550e8400-e29b-41d4-a716-446655440000"))
	assert.Error(t, middleware.ValidateUserID("u1"))
}

func TestValidateGroupName(t *testing.T) {
	assert.NoError(t, middleware.ValidateGroupName("Team"))
	assert.Error(t, middleware.ValidateGroupName(""))
	assert.Error(t, middleware.ValidateGroupName(strings.Repeat("x", 257)))
	assert.Error(t, middleware.ValidateGroupName(string([]byte{0xff, 0xfe})))
}
