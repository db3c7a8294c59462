package presence_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/model"
)

// recordingStore implements backend.Store for the typing methods and records
// every upsert. The embedded interface panics on anything else, which no
// presence code path touches.
type recordingStore struct {
	backend.Store

	mu      sync.Mutex
	current *model.TypingStatus
	upserts []model.TypingStatus
	err     error
}

func (s *recordingStore) UpsertTypingStatus(ctx context.Context, ts *model.TypingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, *ts)
	return nil
}

func (s *recordingStore) GetTypingStatus(ctx context.Context, conversationID, userID string) (*model.TypingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.current, nil
}

func (s *recordingStore) recorded() []model.TypingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TypingStatus(nil), s.upserts...)
}

// publishingStore broadcasts every typing upsert on the feed, the way the
// real store mirrors row writes to subscribers.
type publishingStore struct {
	recordingStore
	feed *fakeFeed
}

func (s *publishingStore) UpsertTypingStatus(ctx context.Context, ts *model.TypingStatus) error {
	if err := s.recordingStore.UpsertTypingStatus(ctx, ts); err != nil {
		return err
	}
	row, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return s.feed.Publish(ctx, backend.Filter{
		Table:          backend.TableTypingStatus,
		ConversationID: ts.ConversationID,
	}, backend.ChangeEvent{
		Table: backend.TableTypingStatus,
		Event: backend.EventUpdate,
		Row:   row,
	})
}

// fakeFeed is an in-process change feed, delivering synchronously to every
// live matching subscription.
type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSubscription
}

type fakeSubscription struct {
	feed   *fakeFeed
	filter backend.Filter
	fn     func(backend.ChangeEvent)
	closed bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{}
}

func (f *fakeFeed) Subscribe(channel string, filter backend.Filter, events []backend.EventType, fn func(backend.ChangeEvent)) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{feed: f, filter: filter, fn: fn}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) Publish(ctx context.Context, filter backend.Filter, event backend.ChangeEvent) error {
	f.mu.Lock()
	var targets []func(backend.ChangeEvent)
	for _, sub := range f.subs {
		if !sub.closed && sub.filter == filter {
			targets = append(targets, sub.fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range targets {
		fn(event)
	}
	return nil
}

func (s *fakeSubscription) Unsubscribe() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.closed = true
	return nil
}
