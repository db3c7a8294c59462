package syncer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/internal/syncer"
	"github.com/chatline-app/chatline/pkg/logger"
)

const currentUser = "u1"

func singleWith(id string, other model.User) model.Conversation {
	return model.Conversation{
		ID:   id,
		Type: model.ConversationSingle,
		Participants: []model.Participant{
			{ConversationID: id, UserID: currentUser},
			{ConversationID: id, UserID: other.ID, User: &other},
		},
	}
}

func TestLoadConversationsDeduplicatesByCounterpartEmail(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	bob := model.User{ID: "u2", Name: "bob", Email: "bob@example.com"}

	// Two single conversations with the same counterpart, the artifact of a
	// concurrent first-send from both sides.
	convs := []model.Conversation{
		singleWith("c1", bob),
		singleWith("c2", bob),
	}
	store.On("ListConversationsForUser", mock.Anything, currentUser).Return(convs, nil)
	store.On("LatestMessage", mock.Anything, mock.AnythingOfType("string")).Return(nil, nil)
	store.On("ListMessages", mock.Anything, mock.AnythingOfType("string")).Return([]model.Message{}, nil)

	got := s.LoadConversations(context.Background(), currentUser)

	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}

func TestLoadConversationsDropsSinglesWithoutCounterpart(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	// Orphaned single: the current user is its only participant.
	orphan := model.Conversation{
		ID:           "c1",
		Type:         model.ConversationSingle,
		Participants: []model.Participant{{ConversationID: "c1", UserID: currentUser}},
	}
	store.On("ListConversationsForUser", mock.Anything, currentUser).Return([]model.Conversation{orphan}, nil)
	store.On("LatestMessage", mock.Anything, "c1").Return(nil, nil)
	store.On("ListMessages", mock.Anything, "c1").Return([]model.Message{}, nil)

	got := s.LoadConversations(context.Background(), currentUser)
	assert.Empty(t, got)
}

func TestLoadConversationsOrdersGroupsFirst(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	bob := model.User{ID: "u2", Name: "bob", Email: "bob@example.com"}
	carol := model.User{ID: "u3", Name: "carol", Email: "carol@example.com"}
	convs := []model.Conversation{
		singleWith("c1", bob),
		{ID: "g1", Type: model.ConversationGroup, Name: "Team",
			Participants: []model.Participant{{ConversationID: "g1", UserID: currentUser}}},
		singleWith("c2", carol),
		{ID: "g2", Type: model.ConversationGroup, Name: "Ops",
			Participants: []model.Participant{{ConversationID: "g2", UserID: currentUser}}},
	}
	store.On("ListConversationsForUser", mock.Anything, currentUser).Return(convs, nil)
	store.On("LatestMessage", mock.Anything, mock.AnythingOfType("string")).Return(nil, nil)
	store.On("ListMessages", mock.Anything, mock.AnythingOfType("string")).Return([]model.Message{}, nil)

	got := s.LoadConversations(context.Background(), currentUser)

	require.Len(t, got, 4)
	// Groups first, original order preserved within each class.
	assert.Equal(t, []string{"g1", "g2", "c1", "c2"},
		[]string{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestLoadConversationsAttachesLatestMessage(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	bob := model.User{ID: "u2", Name: "bob", Email: "bob@example.com"}
	latest := &model.Message{ID: "m9", ConversationID: "c1", SenderID: "u2", Content: "latest", CreatedAt: time.Now()}

	store.On("ListConversationsForUser", mock.Anything, currentUser).Return([]model.Conversation{singleWith("c1", bob)}, nil)
	store.On("LatestMessage", mock.Anything, "c1").Return(latest, nil)
	store.On("ListMessages", mock.Anything, "c1").Return([]model.Message{*latest}, nil)

	got := s.LoadConversations(context.Background(), currentUser)

	require.Len(t, got, 1)
	require.NotNil(t, got[0].LastMessage)
	assert.Equal(t, "m9", got[0].LastMessage.ID)
}

func TestLoadConversationsFetchFailureYieldsEmpty(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	store.On("ListConversationsForUser", mock.Anything, currentUser).Return(nil, errors.New("connection refused"))

	got := s.LoadConversations(context.Background(), currentUser)
	assert.Empty(t, got)
}

func TestFindSingleConversation(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	bob := model.User{ID: "u2", Name: "bob", Email: "bob@example.com"}
	carol := model.User{ID: "u3", Name: "carol", Email: "carol@example.com"}
	store.On("ListConversationsByType", mock.Anything, model.ConversationSingle).
		Return([]model.Conversation{singleWith("c1", bob), singleWith("c2", carol)}, nil)

	found := s.FindSingleConversation(context.Background(), currentUser, "u3")
	require.NotNil(t, found)
	assert.Equal(t, "c2", found.ID)

	assert.Nil(t, s.FindSingleConversation(context.Background(), currentUser, "u9"))
}

func TestFindSingleConversationFetchFailure(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	store.On("ListConversationsByType", mock.Anything, model.ConversationSingle).
		Return(nil, errors.New("connection refused"))

	assert.Nil(t, s.FindSingleConversation(context.Background(), currentUser, "u2"))
}

func TestLoadMessages(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	history := []model.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "a", CreatedAt: time.Now().Add(-time.Minute)},
		{ID: "m2", ConversationID: "c1", SenderID: "u2", Content: "b", CreatedAt: time.Now()},
	}
	store.On("ListMessages", mock.Anything, "c1").Return(history, nil)

	got := s.LoadMessages(context.Background(), "c1")
	assert.Equal(t, history, got)
}

func TestLoadMessagesFetchFailureYieldsEmpty(t *testing.T) {
	store := new(MockStore)
	s := syncer.New(store, nil, logger.NewNop())

	store.On("ListMessages", mock.Anything, "c1").Return(nil, errors.New("timeout"))

	assert.Empty(t, s.LoadMessages(context.Background(), "c1"))
}
