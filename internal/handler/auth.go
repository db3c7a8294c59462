// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/middleware"
	"github.com/chatline-app/chatline/pkg/logger"
)

// AuthHandler handles the passwordless sign-in flow.
type AuthHandler struct {
	auth   backend.Auth
	logger *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth backend.Auth, log *logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: log}
}

type signInRequest struct {
	Email string `json:"email"`
}

// SignInPage handles GET /auth. Unauthenticated visitors land here; the
// route is wrapped so signed-in visitors bounce back home.
func (h *AuthHandler) SignInPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "sign in required",
		"hint":   "POST /auth/signin with {\"email\": ...} to receive a magic link",
	})
}

// SignIn handles POST /auth/signin. It issues a one-time code for the email;
// delivery of the magic link is out of band.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	code, err := h.auth.SignInWithOTP(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The magic link would normally arrive by email. Log it so operators
	// can complete the flow in environments without a mailer.
	h.logger.Info("magic link ready",
		zap.String("email", req.Email),
		zap.String("path", "/auth/callback?code="+code))

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "sign-in code issued",
	})
}

// Callback handles GET /auth/callback?code=..., exchanging the one-time code
// for a session cookie and redirecting home.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	session, err := h.auth.ExchangeCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCode) {
			writeError(w, http.StatusUnauthorized, "invalid or expired sign-in code")
			return
		}
		h.logger.Error("failed to exchange sign-in code", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Session handles GET /api/v1/session, returning the authenticated session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id": middleware.GetUserID(r.Context()),
		"email":   middleware.GetEmail(r.Context()),
	})
}

// SignOut handles POST /api/v1/signout, revoking the session and clearing
// the cookie.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetToken(r.Context())
	if err := h.auth.SignOut(r.Context(), token); err != nil {
		h.logger.Error("failed to revoke session", zap.Error(err))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}
