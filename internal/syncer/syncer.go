// Package syncer reconciles the backend store, the local cache, and the live
// change feed into one consistent view of conversations and messages.
package syncer

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/cache"
	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/pkg/logger"
	"github.com/chatline-app/chatline/pkg/metrics"
)

// Synchronizer loads conversations and messages from the backend, writes
// them through to the local cache, and produces display-ready lists.
//
// Fetch failures are logged and yield empty results; they are never raised
// to the caller. Callers must treat an empty result as "nothing new", not as
// a hard failure.
type Synchronizer struct {
	store  backend.Store
	cache  *cache.Cache
	logger *logger.Logger
}

// New creates a synchronizer. The cache may be nil, in which case write-
// through is skipped.
func New(store backend.Store, c *cache.Cache, log *logger.Logger) *Synchronizer {
	return &Synchronizer{store: store, cache: c, logger: log}
}

// LoadConversations fetches every conversation the user participates in,
// attaches each conversation's latest message, writes conversations and full
// message histories into the local cache, and returns a deduplicated
// display list.
//
// Group conversations are kept as-is, keyed by id. Single conversations are
// deduplicated by the other participant's email: only the first conversation
// seen per distinct counterpart email survives, guarding against the
// duplicate-single-conversation creation race. Groups sort before singles;
// the order is otherwise stable.
func (s *Synchronizer) LoadConversations(ctx context.Context, currentUserID string) []model.Conversation {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("load_conversations").Observe(time.Since(start).Seconds())
	}()

	convs, err := s.store.ListConversationsForUser(ctx, currentUserID)
	if err != nil {
		s.logger.Error("failed to fetch conversations", zap.Error(err))
		return nil
	}

	for i := range convs {
		conv := &convs[i]

		last, err := s.store.LatestMessage(ctx, conv.ID)
		if err != nil {
			s.logger.Error("failed to fetch latest message",
				zap.String("conversation_id", conv.ID), zap.Error(err))
		} else {
			conv.LastMessage = last
		}

		msgs, err := s.store.ListMessages(ctx, conv.ID)
		if err != nil {
			s.logger.Error("failed to fetch messages",
				zap.String("conversation_id", conv.ID), zap.Error(err))
			continue
		}

		s.writeThrough(ctx, conv, msgs)
	}

	return orderForDisplay(dedupe(convs, currentUserID))
}

// writeThrough persists a conversation and its messages into the local
// cache. Cache failures are logged and otherwise ignored; the cache is a
// disposable projection.
func (s *Synchronizer) writeThrough(ctx context.Context, conv *model.Conversation, msgs []model.Message) {
	if s.cache == nil {
		return
	}

	err := s.cache.PutConversation(ctx, cache.Conversation{
		ID:           conv.ID,
		Type:         string(conv.Type),
		Name:         conv.Name,
		Participants: conv.ParticipantIDs(),
		LastMessage:  conv.LastMessage,
	})
	if err != nil {
		s.logger.Warn("failed to cache conversation",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	if err := s.cache.PutMessages(ctx, msgs); err != nil {
		s.logger.Warn("failed to cache messages",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}

// dedupe keeps every group conversation and the first single conversation
// seen per distinct counterpart email. Singles with no resolvable
// counterpart email are dropped.
func dedupe(convs []model.Conversation, currentUserID string) []model.Conversation {
	seenGroups := make(map[string]bool)
	seenEmails := make(map[string]bool)

	kept := make([]model.Conversation, 0, len(convs))
	for _, conv := range convs {
		if conv.Type == model.ConversationGroup {
			if seenGroups[conv.ID] {
				continue
			}
			seenGroups[conv.ID] = true
			kept = append(kept, conv)
			continue
		}

		other := conv.Counterpart(currentUserID)
		if other == nil || other.Email == "" {
			continue
		}
		if seenEmails[other.Email] {
			continue
		}
		seenEmails[other.Email] = true
		kept = append(kept, conv)
	}
	return kept
}

// orderForDisplay sorts group conversations before singles, preserving the
// incoming order within each class.
func orderForDisplay(convs []model.Conversation) []model.Conversation {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].Type == model.ConversationGroup && convs[j].Type != model.ConversationGroup
	})
	return convs
}

// FindSingleConversation searches existing single conversations for one
// whose participant set contains both users. Returns nil when none exists;
// the caller is responsible for creating one on first send.
func (s *Synchronizer) FindSingleConversation(ctx context.Context, userID, otherUserID string) *model.Conversation {
	convs, err := s.store.ListConversationsByType(ctx, model.ConversationSingle)
	if err != nil {
		s.logger.Error("failed to fetch single conversations", zap.Error(err))
		return nil
	}

	for i := range convs {
		if convs[i].HasParticipant(userID) && convs[i].HasParticipant(otherUserID) {
			return &convs[i]
		}
	}
	return nil
}

// LoadMessages fetches the full message history of a conversation, ascending
// by created_at. Errors are logged and yield an empty slice.
func (s *Synchronizer) LoadMessages(ctx context.Context, conversationID string) []model.Message {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("load_messages").Observe(time.Since(start).Seconds())
	}()

	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		s.logger.Error("failed to fetch message history",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	return msgs
}
