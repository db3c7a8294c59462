package presence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/internal/view"
	"github.com/chatline-app/chatline/pkg/logger"
)

// Watch subscribes to typing-status changes for a single conversation and
// mirrors the counterpart's flag into the view state. Events from the local
// user are ignored. When no typing row exists yet for the counterpart, one
// is created with is_typing=false. Callers must not Watch group
// conversations; the typing indicator is single-chat only.
//
// The returned subscription must be released when the selected conversation
// changes or the owning view unmounts.
func Watch(ctx context.Context, feed backend.Feed, store backend.Store, conversationID, localUserID, counterpartID string, views *view.Store, log *logger.Logger) (backend.Subscription, error) {
	log = log.WithConversation(conversationID, localUserID)

	// The channel name carries the local user id so two sessions watching the
	// same conversation get distinct subscriptions.
	channel := fmt.Sprintf("typing:%s:%s", conversationID, localUserID)

	sub, err := feed.Subscribe(channel, backend.Filter{
		Table:          backend.TableTypingStatus,
		ConversationID: conversationID,
	}, nil, func(event backend.ChangeEvent) {
		ts, err := event.TypingStatus()
		if err != nil {
			log.Error("rejecting typing status event", zap.Error(err))
			return
		}
		if ts.UserID == localUserID {
			return
		}
		views.Apply(view.SetPeerTyping(ts.IsTyping))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch typing status: %w", err)
	}

	// Seed the flag from the current row, lazily creating the counterpart's
	// row on first watch.
	current, err := store.GetTypingStatus(ctx, conversationID, counterpartID)
	if err != nil {
		log.Error("failed to fetch typing status", zap.Error(err))
		return sub, nil
	}
	if current == nil {
		err := store.UpsertTypingStatus(ctx, &model.TypingStatus{
			ConversationID: conversationID,
			UserID:         counterpartID,
			IsTyping:       false,
			UpdatedAt:      time.Now(),
		})
		if err != nil {
			log.Error("failed to initialize typing status", zap.Error(err))
		}
		return sub, nil
	}

	views.Apply(view.SetPeerTyping(current.IsTyping))
	return sub, nil
}
