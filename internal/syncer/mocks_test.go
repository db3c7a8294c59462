package syncer_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/model"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListUsers(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *MockStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockStore) CreateUser(ctx context.Context, u *model.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockStore) ListConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *MockStore) ListConversationsByType(ctx context.Context, t model.ConversationType) ([]model.Conversation, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *MockStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockStore) AddParticipants(ctx context.Context, conversationID string, userIDs []string) error {
	args := m.Called(ctx, conversationID, userIDs)
	return args.Error(0)
}

func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MockStore) LatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStore) GetTypingStatus(ctx context.Context, conversationID, userID string) (*model.TypingStatus, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TypingStatus), args.Error(1)
}

func (m *MockStore) UpsertTypingStatus(ctx context.Context, ts *model.TypingStatus) error {
	args := m.Called(ctx, ts)
	return args.Error(0)
}

// fakeFeed is an in-process change feed: Publish delivers synchronously to
// every live subscription whose filter matches.
type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSubscription
}

type fakeSubscription struct {
	feed    *fakeFeed
	channel string
	filter  backend.Filter
	events  []backend.EventType
	fn      func(backend.ChangeEvent)
	closed  bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{}
}

func (f *fakeFeed) Subscribe(channel string, filter backend.Filter, events []backend.EventType, fn func(backend.ChangeEvent)) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{feed: f, channel: channel, filter: filter, events: events, fn: fn}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) Publish(ctx context.Context, filter backend.Filter, event backend.ChangeEvent) error {
	f.mu.Lock()
	var targets []func(backend.ChangeEvent)
	for _, sub := range f.subs {
		if sub.closed || sub.filter != filter {
			continue
		}
		if len(sub.events) > 0 && !containsEvent(sub.events, event.Event) {
			continue
		}
		targets = append(targets, sub.fn)
	}
	f.mu.Unlock()

	for _, fn := range targets {
		fn(event)
	}
	return nil
}

func containsEvent(events []backend.EventType, e backend.EventType) bool {
	for _, candidate := range events {
		if candidate == e {
			return true
		}
	}
	return false
}

func (s *fakeSubscription) Unsubscribe() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.closed = true
	return nil
}

// activeSubscriptions counts subscriptions that have not been released.
func (f *fakeFeed) activeSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sub := range f.subs {
		if !sub.closed {
			n++
		}
	}
	return n
}
