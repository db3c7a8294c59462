package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/chat"
	"github.com/chatline-app/chatline/internal/middleware"
	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/internal/syncer"
	"github.com/chatline-app/chatline/pkg/logger"
)

// ThreadHandler exposes the per-user thread controller: selecting a peer,
// reading view state, sending messages, and reporting keystrokes.
type ThreadHandler struct {
	threads *syncer.ThreadManager
	chatSvc *chat.Service
	logger  *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(threads *syncer.ThreadManager, chatSvc *chat.Service, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{threads: threads, chatSvc: chatSvc, logger: log}
}

type selectRequest struct {
	Peer *model.Peer `json:"peer"`
}

// Select handles POST /api/v1/thread/select, switching the active
// conversation. Passing a null peer detaches the thread.
func (h *ThreadHandler) Select(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Peer != nil {
		if err := middleware.ValidateUserID(req.Peer.ID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	thread := h.threads.Thread(userID)
	thread.Select(r.Context(), req.Peer)

	writeJSON(w, http.StatusOK, thread.Views().State())
}

// State handles GET /api/v1/thread, returning the current view state.
func (h *ThreadHandler) State(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	writeJSON(w, http.StatusOK, h.threads.Thread(userID).Views().State())
}

type sendRequest struct {
	Content string `json:"content"`
}

// Send handles POST /api/v1/thread/messages, sending to the selected peer.
func (h *ThreadHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	thread := h.threads.Thread(userID)

	state := thread.Views().State()
	if state.Peer == nil {
		writeError(w, http.StatusConflict, "no peer selected")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, conversationID, err := h.chatSvc.SendMessage(r.Context(), thread.Views(), userID, *state.Peer, req.Content)
	if err != nil {
		h.logger.Error("failed to send message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	// First send to a new peer creates the conversation; bind the thread's
	// subscriptions to it.
	thread.Attach(r.Context(), conversationID)

	writeJSON(w, http.StatusCreated, msg)
}

// Typing handles POST /api/v1/thread/typing, recording one keystroke.
func (h *ThreadHandler) Typing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	h.threads.Thread(userID).Keystroke(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
