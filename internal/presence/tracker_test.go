package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatline-app/chatline/internal/presence"
	"github.com/chatline-app/chatline/pkg/logger"
)

const (
	testConversation = "c1"
	testUser         = "u1"
	shortIdle        = 50 * time.Millisecond
)

func TestKeystrokeUpsertsTyping(t *testing.T) {
	store := &recordingStore{}
	tracker := presence.NewTracker(store, testConversation, testUser, shortIdle, logger.NewNop())
	defer tracker.Stop()

	tracker.Keystroke(context.Background())

	upserts := store.recorded()
	require.Len(t, upserts, 1)
	assert.True(t, upserts[0].IsTyping)
	assert.Equal(t, testConversation, upserts[0].ConversationID)
	assert.Equal(t, testUser, upserts[0].UserID)
}

func TestIdleWindowWritesExactlyOneFalse(t *testing.T) {
	store := &recordingStore{}
	tracker := presence.NewTracker(store, testConversation, testUser, shortIdle, logger.NewNop())
	defer tracker.Stop()

	tracker.Keystroke(context.Background())
	time.Sleep(4 * shortIdle)

	upserts := store.recorded()
	require.Len(t, upserts, 2)
	assert.True(t, upserts[0].IsTyping)
	assert.False(t, upserts[1].IsTyping)
}

func TestKeystrokeResetsIdleWindow(t *testing.T) {
	store := &recordingStore{}
	tracker := presence.NewTracker(store, testConversation, testUser, shortIdle, logger.NewNop())
	defer tracker.Stop()

	// Two keystrokes inside one window: the first timer must not fire.
	tracker.Keystroke(context.Background())
	time.Sleep(shortIdle / 2)
	tracker.Keystroke(context.Background())
	time.Sleep(4 * shortIdle)

	upserts := store.recorded()
	require.Len(t, upserts, 3)
	assert.True(t, upserts[0].IsTyping)
	assert.True(t, upserts[1].IsTyping)
	assert.False(t, upserts[2].IsTyping)
}

func TestStopCancelsPendingWrite(t *testing.T) {
	store := &recordingStore{}
	tracker := presence.NewTracker(store, testConversation, testUser, shortIdle, logger.NewNop())

	tracker.Keystroke(context.Background())
	tracker.Stop()
	time.Sleep(4 * shortIdle)

	// Only the typing=true write; the idle expiry was cancelled so a stale
	// "stopped typing" cannot land after a conversation switch.
	upserts := store.recorded()
	require.Len(t, upserts, 1)
	assert.True(t, upserts[0].IsTyping)
}

func TestKeystrokeAfterStopIsIgnored(t *testing.T) {
	store := &recordingStore{}
	tracker := presence.NewTracker(store, testConversation, testUser, shortIdle, logger.NewNop())

	tracker.Stop()
	tracker.Keystroke(context.Background())
	time.Sleep(2 * shortIdle)

	assert.Empty(t, store.recorded())
}

func TestNonPositiveIdleFallsBackToDefault(t *testing.T) {
	store := &recordingStore{}
	tracker := presence.NewTracker(store, testConversation, testUser, 0, logger.NewNop())
	defer tracker.Stop()

	tracker.Keystroke(context.Background())
	time.Sleep(2 * shortIdle)

	// The default window is seconds long, so no false write yet.
	upserts := store.recorded()
	require.Len(t, upserts, 1)
	assert.True(t, upserts[0].IsTyping)
}
