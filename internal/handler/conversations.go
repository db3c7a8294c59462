package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/chat"
	"github.com/chatline-app/chatline/internal/middleware"
	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/internal/syncer"
	"github.com/chatline-app/chatline/pkg/logger"
)

// ConversationHandler handles conversation listing and group creation.
type ConversationHandler struct {
	sync    *syncer.Synchronizer
	chatSvc *chat.Service
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(sync *syncer.Synchronizer, chatSvc *chat.Service, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{sync: sync, chatSvc: chatSvc, logger: log}
}

// List handles GET /api/v1/conversations. The synchronizer swallows fetch
// errors, so this always answers 200; an empty list means nothing is known,
// not that something failed.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs := h.sync.LoadConversations(r.Context(), userID)
	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	})
}

// Messages handles GET /api/v1/conversations/{id}/messages.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs := h.sync.LoadMessages(r.Context(), conversationID)
	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: msgs,
		Total:    len(msgs),
	})
}

// CreateGroup handles POST /api/v1/conversations/groups.
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateGroupName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.chatSvc.CreateGroup(r.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		if errors.Is(err, chat.ErrGroupExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to create group", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}
