package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/middleware"
	"github.com/chatline-app/chatline/internal/syncer"
	"github.com/chatline-app/chatline/pkg/logger"
	"github.com/chatline-app/chatline/pkg/metrics"
)

// StreamHandler streams the active conversation's live events over SSE so a
// thin UI can follow the thread without polling.
type StreamHandler struct {
	threads *syncer.ThreadManager
	feed    backend.Feed
	logger  *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(threads *syncer.ThreadManager, feed backend.Feed, log *logger.Logger) *StreamHandler {
	return &StreamHandler{threads: threads, feed: feed, logger: log}
}

// Stream handles GET /api/v1/thread/stream. It subscribes to message and
// typing changes for the thread's active conversation and forwards each as
// an SSE event until the client disconnects. The subscriptions are released
// unconditionally on the way out.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID := h.threads.Thread(userID).ConversationID()
	if conversationID == "" {
		writeError(w, http.StatusConflict, "no active conversation")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	events := make(chan backend.ChangeEvent, 64)
	forward := func(event backend.ChangeEvent) {
		select {
		case events <- event:
		default:
			// Slow consumer; dropping is acceptable for an SSE mirror, the
			// next full reload resynchronizes.
		}
	}

	msgChannel := fmt.Sprintf("stream:messages:%s:%s", conversationID, userID)
	msgSub, err := h.feed.Subscribe(msgChannel, backend.Filter{
		Table:          backend.TableMessages,
		ConversationID: conversationID,
	}, []backend.EventType{backend.EventInsert}, forward)
	if err != nil {
		h.logger.Error("failed to subscribe stream to messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open stream")
		return
	}
	defer msgSub.Unsubscribe()

	typingChannel := fmt.Sprintf("stream:typing:%s:%s", conversationID, userID)
	typingSub, err := h.feed.Subscribe(typingChannel, backend.Filter{
		Table:          backend.TableTypingStatus,
		ConversationID: conversationID,
	}, nil, forward)
	if err != nil {
		h.logger.Error("failed to subscribe stream to typing status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open stream")
		return
	}
	defer typingSub.Unsubscribe()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"ts": time.Now().UTC().Format(time.RFC3339),
			})
		case event := <-events:
			sendSSEEvent(w, flusher, event.Table, event)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}
