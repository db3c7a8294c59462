// Package presence implements the typing-indicator protocol: a throttled
// per-(conversation, user) typing flag upserted to the backend, and a
// watcher that mirrors the counterpart's flag into the view state.
package presence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/pkg/logger"
	"github.com/chatline-app/chatline/pkg/metrics"
)

// DefaultIdleTimeout is how long after the last keystroke the typing flag
// is cleared.
const DefaultIdleTimeout = 3 * time.Second

// Tracker drives the local user's typing state for one conversation:
// Idle -> Typing on a keystroke, Typing -> Idle after the inactivity window.
// Each keystroke upserts is_typing=true and resets the timer; expiry writes
// exactly one is_typing=false.
type Tracker struct {
	store          backend.Store
	conversationID string
	userID         string
	idle           time.Duration
	logger         *logger.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewTracker creates a tracker for (conversationID, userID). A non-positive
// idle duration falls back to DefaultIdleTimeout.
func NewTracker(store backend.Store, conversationID, userID string, idle time.Duration, log *logger.Logger) *Tracker {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Tracker{
		store:          store,
		conversationID: conversationID,
		userID:         userID,
		idle:           idle,
		logger:         log.WithConversation(conversationID, userID),
	}
}

// Keystroke records input activity: upserts is_typing=true and resets the
// inactivity timer.
func (t *Tracker) Keystroke(ctx context.Context) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.expire)
	t.mu.Unlock()

	t.upsert(ctx, true)
}

// expire fires when the inactivity window elapses with no further keystroke.
func (t *Tracker) expire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.upsert(context.Background(), false)
}

// Stop cancels the outstanding timer without writing. Must be called when
// the conversation switches or the view unmounts, so a stale "stopped
// typing" write cannot land on the wrong conversation.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) upsert(ctx context.Context, typing bool) {
	err := t.store.UpsertTypingStatus(ctx, &model.TypingStatus{
		ConversationID: t.conversationID,
		UserID:         t.userID,
		IsTyping:       typing,
		UpdatedAt:      time.Now(),
	})
	if err != nil {
		t.logger.Error("failed to upsert typing status", zap.Error(err))
		return
	}
	metrics.TypingUpsertsTotal.WithLabelValues(strconv.FormatBool(typing)).Inc()
}
