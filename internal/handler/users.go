package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/pkg/logger"
)

// UserHandler handles the user directory.
type UserHandler struct {
	store  backend.Store
	logger *logger.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(store backend.Store, log *logger.Logger) *UserHandler {
	return &UserHandler{store: store, logger: log}
}

// List handles GET /api/v1/users. Fetch failures degrade to an empty list,
// matching the synchronizer's error policy.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": len(users),
	})
}
