package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/internal/presence"
	"github.com/chatline-app/chatline/internal/view"
	"github.com/chatline-app/chatline/pkg/logger"
)

// Thread owns one user's active conversation: its view state, the live
// message subscription, and the typing tracker/watcher. Every conversation
// switch tears the previous resources down and acquires fresh ones scoped to
// the new conversation id, so no event from the old conversation is ever
// delivered after the switch.
type Thread struct {
	sync   *Synchronizer
	feed   backend.Feed
	store  backend.Store
	views  *view.Store
	userID string
	idle   time.Duration
	logger *logger.Logger

	mu             sync.Mutex
	peer           *model.Peer
	conversationID string
	msgSub         backend.Subscription
	typingSub      backend.Subscription
	tracker        *presence.Tracker
}

// NewThread creates a thread controller for one user.
func NewThread(s *Synchronizer, feed backend.Feed, store backend.Store, userID string, idle time.Duration, log *logger.Logger) *Thread {
	return &Thread{
		sync:   s,
		feed:   feed,
		store:  store,
		views:  view.NewStore(),
		userID: userID,
		idle:   idle,
		logger: log.With(zap.String("user_id", userID)),
	}
}

// Views returns the thread's view state store.
func (t *Thread) Views() *view.Store {
	return t.views
}

// ConversationID returns the id of the active conversation, or "" when the
// selected peer has no conversation yet.
func (t *Thread) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID
}

// Select switches the thread to a new peer. The previous subscriptions and
// timer are released unconditionally; the message history is loaded and
// fresh subscriptions are established for the resolved conversation. A
// single peer with no existing conversation leaves the thread detached until
// the first send creates one.
func (t *Thread) Select(ctx context.Context, peer *model.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.teardownLocked()
	t.views.Apply(view.SetPeer(peer))
	t.peer = peer
	t.conversationID = ""

	if peer == nil {
		return
	}

	t.views.Apply(view.SetLoading(true))
	defer t.views.Apply(view.SetLoading(false))

	var conversationID string
	if peer.IsGroup {
		conversationID = peer.ID
	} else {
		conv := t.sync.FindSingleConversation(ctx, t.userID, peer.ID)
		if conv == nil {
			t.logger.Debug("no existing conversation with peer", zap.String("peer_id", peer.ID))
			return
		}
		conversationID = conv.ID
	}

	t.attachLocked(ctx, conversationID)
}

// Attach binds the thread to a conversation created after Select, typically
// by the first send to a new peer. A no-op when already attached to it.
func (t *Thread) Attach(ctx context.Context, conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conversationID == conversationID {
		return
	}
	t.teardownLocked()
	t.attachLocked(ctx, conversationID)
}

// attachLocked loads history and acquires the subscriptions for the
// conversation. Callers hold t.mu.
func (t *Thread) attachLocked(ctx context.Context, conversationID string) {
	t.conversationID = conversationID
	log := t.logger.With(zap.String("conversation_id", conversationID))

	t.views.Apply(view.SetMessages(t.sync.LoadMessages(ctx, conversationID)))

	// Live delivery: insert events scoped to this conversation. Rows the
	// local user sent were already appended optimistically at send time and
	// are skipped here to avoid double display.
	channel := fmt.Sprintf("messages:%s", conversationID)
	sub, err := t.feed.Subscribe(channel, backend.Filter{
		Table:          backend.TableMessages,
		ConversationID: conversationID,
	}, []backend.EventType{backend.EventInsert}, func(event backend.ChangeEvent) {
		msg, err := event.Message()
		if err != nil {
			log.Error("rejecting message event", zap.Error(err))
			return
		}
		if msg.ConversationID != conversationID || msg.SenderID == t.userID {
			return
		}
		t.views.Apply(view.AddMessage(*msg))
	})
	if err != nil {
		log.Error("failed to subscribe to messages", zap.Error(err))
	} else {
		t.msgSub = sub
	}

	// Typing presence is single-chat only.
	if t.peer == nil || t.peer.IsGroup {
		return
	}

	t.tracker = presence.NewTracker(t.store, conversationID, t.userID, t.idle, t.logger)

	typingSub, err := presence.Watch(ctx, t.feed, t.store, conversationID, t.userID, t.peer.ID, t.views, t.logger)
	if err != nil {
		log.Error("failed to subscribe to typing status", zap.Error(err))
		return
	}
	t.typingSub = typingSub
}

// Keystroke records local typing activity for the active conversation.
func (t *Thread) Keystroke(ctx context.Context) {
	t.mu.Lock()
	tracker := t.tracker
	t.mu.Unlock()

	if tracker != nil {
		tracker.Keystroke(ctx)
	}
}

// Close releases every subscription and timer the thread holds.
func (t *Thread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
	t.conversationID = ""
	t.peer = nil
}

// teardownLocked releases subscriptions and cancels the typing timer.
// Callers hold t.mu.
func (t *Thread) teardownLocked() {
	if t.msgSub != nil {
		if err := t.msgSub.Unsubscribe(); err != nil {
			t.logger.Error("failed to release message subscription", zap.Error(err))
		}
		t.msgSub = nil
	}
	if t.typingSub != nil {
		if err := t.typingSub.Unsubscribe(); err != nil {
			t.logger.Error("failed to release typing subscription", zap.Error(err))
		}
		t.typingSub = nil
	}
	if t.tracker != nil {
		t.tracker.Stop()
		t.tracker = nil
	}
}

// ThreadManager hands out one Thread per authenticated user.
type ThreadManager struct {
	sync   *Synchronizer
	feed   backend.Feed
	store  backend.Store
	idle   time.Duration
	logger *logger.Logger

	mu      sync.Mutex
	threads map[string]*Thread
}

// NewThreadManager creates the per-user thread registry.
func NewThreadManager(s *Synchronizer, feed backend.Feed, store backend.Store, idle time.Duration, log *logger.Logger) *ThreadManager {
	return &ThreadManager{
		sync:    s,
		feed:    feed,
		store:   store,
		idle:    idle,
		logger:  log,
		threads: make(map[string]*Thread),
	}
}

// Thread returns the thread controller for a user, creating it on first use.
func (m *ThreadManager) Thread(userID string) *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[userID]
	if !ok {
		t = NewThread(m.sync, m.feed, m.store, userID, m.idle, m.logger)
		m.threads[userID] = t
	}
	return t
}

// Close releases every thread.
func (m *ThreadManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.threads {
		t.Close()
	}
	m.threads = make(map[string]*Thread)
}
