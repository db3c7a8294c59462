// Package chat implements conversation and message creation flows.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/internal/syncer"
	"github.com/chatline-app/chatline/internal/view"
	"github.com/chatline-app/chatline/pkg/logger"
	"github.com/chatline-app/chatline/pkg/metrics"
)

// ErrGroupExists is returned when the creator already participates in a
// group with the requested name.
var ErrGroupExists = errors.New("group with this name already exists")

// Service handles message sending and conversation creation.
//
// Creation follows the backend's check-then-act pattern and is NOT atomic:
// the conversation row, the participant rows, and (for groups) the system
// message are separate inserts. A failure between the conversation insert
// and the participant insert leaves an orphaned conversation with no
// participants; nothing cleans that up, and the synchronizer's participant
// join simply never returns it.
type Service struct {
	store  backend.Store
	sync   *syncer.Synchronizer
	logger *logger.Logger
}

// NewService creates the chat service.
func NewService(store backend.Store, sync *syncer.Synchronizer, log *logger.Logger) *Service {
	return &Service{store: store, sync: sync, logger: log}
}

// SendMessage sends content to the peer, creating the single conversation
// first when none exists. The message is appended to the caller's view state
// optimistically, under its client-generated id, before the backend write is
// acknowledged. If the write then fails the view keeps the optimistic entry;
// that inconsistency is logged, not corrected.
//
// Returns the message and the conversation id it landed in.
func (s *Service) SendMessage(ctx context.Context, views *view.Store, currentUserID string, peer model.Peer, content string) (*model.Message, string, error) {
	conversationID, err := s.resolveConversation(ctx, currentUserID, peer)
	if err != nil {
		return nil, "", err
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderID:       currentUserID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := msg.Validate(); err != nil {
		return nil, "", err
	}

	// Optimistic append: the thread shows the message immediately, without
	// waiting for the backend round trip. The live feed skips rows from the
	// local sender, so this is the only append this message gets.
	if views != nil {
		views.Apply(view.AddMessage(*msg))
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		s.logger.Error("failed to persist message, view state now ahead of backend",
			zap.String("message_id", msg.ID), zap.Error(err))
		return nil, "", err
	}

	metrics.MessagesSentTotal.WithLabelValues(string(conversationType(peer))).Inc()
	return msg, conversationID, nil
}

func conversationType(peer model.Peer) model.ConversationType {
	if peer.IsGroup {
		return model.ConversationGroup
	}
	return model.ConversationSingle
}

// resolveConversation maps the peer to a conversation id, creating a single
// conversation when the pair has none yet.
func (s *Service) resolveConversation(ctx context.Context, currentUserID string, peer model.Peer) (string, error) {
	if peer.IsGroup {
		return peer.ID, nil
	}

	if existing := s.sync.FindSingleConversation(ctx, currentUserID, peer.ID); existing != nil {
		return existing.ID, nil
	}

	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      model.ConversationSingle,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	// Partial-failure window: the conversation row exists but has no
	// participants until this succeeds.
	if err := s.store.AddParticipants(ctx, conv.ID, []string{currentUserID, peer.ID}); err != nil {
		return "", fmt.Errorf("failed to add participants: %w", err)
	}

	metrics.ConversationsCreatedTotal.WithLabelValues(string(model.ConversationSingle)).Inc()
	s.logger.Info("single conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", currentUserID),
		zap.String("peer_id", peer.ID))
	return conv.ID, nil
}

// CreateGroup creates a named group conversation with the creator and the
// given members, then posts a synthetic system message announcing it. The
// announcement is best-effort: its failure does not fail the group.
func (s *Service) CreateGroup(ctx context.Context, currentUserID, name string, memberIDs []string) (*model.Conversation, error) {
	if name == "" {
		return nil, errors.New("group name cannot be empty")
	}
	if len(memberIDs) == 0 {
		return nil, errors.New("group must have at least one member")
	}

	// Check-then-act: reject a duplicate name the creator already belongs
	// to. A concurrent create can still slip through.
	existing, err := s.store.ListConversationsByType(ctx, model.ConversationGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing groups: %w", err)
	}
	for i := range existing {
		if existing[i].Name == name && existing[i].HasParticipant(currentUserID) {
			return nil, ErrGroupExists
		}
	}

	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      model.ConversationGroup,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	participants := append([]string{currentUserID}, memberIDs...)
	if err := s.store.AddParticipants(ctx, conv.ID, participants); err != nil {
		return nil, fmt.Errorf("failed to add group participants: %w", err)
	}

	announcement := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		SenderID:       currentUserID,
		Content:        fmt.Sprintf("%s group created", name),
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateMessage(ctx, announcement); err != nil {
		s.logger.Warn("failed to post group announcement",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	metrics.ConversationsCreatedTotal.WithLabelValues(string(model.ConversationGroup)).Inc()
	s.logger.Info("group conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("name", name),
		zap.Int("members", len(participants)))
	return conv, nil
}
