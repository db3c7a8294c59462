// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/chatline-app/chatline/internal/backend"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user id.
	UserIDKey ContextKey = "user_id"
	// EmailKey is the context key for the authenticated email.
	EmailKey ContextKey = "email"
	// TokenKey is the context key for the raw session token.
	TokenKey ContextKey = "token"
)

// SessionCookie is the cookie carrying the session token for browser
// clients; API clients use the Authorization header instead.
const SessionCookie = "chatline_session"

func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// Auth gates every non-auth route. Requests without a valid session are
// redirected to the sign-in route; API requests get a 401 instead since a
// redirect is useless to a JSON client.
func Auth(auth backend.Auth, signInPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token != "" {
				session, err := auth.GetSession(r.Context(), token)
				if err == nil {
					ctx := context.WithValue(r.Context(), UserIDKey, session.UserID)
					ctx = context.WithValue(ctx, EmailKey, session.Email)
					ctx = context.WithValue(ctx, TokenKey, token)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			if strings.HasPrefix(r.URL.Path, "/api/") {
				http.Error(w, `{"error":"invalid or missing session"}`, http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, signInPath, http.StatusSeeOther)
		})
	}
}

// RedirectAuthenticated gates the sign-in route: a request that already
// carries a valid session is sent home instead.
func RedirectAuthenticated(auth backend.Auth, homePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractToken(r); token != "" {
				if _, err := auth.GetSession(r.Context(), token); err == nil {
					http.Redirect(w, r, homePath, http.StatusSeeOther)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID gets the authenticated user id from context.
func GetUserID(ctx context.Context) string {
	if v := ctx.Value(UserIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// GetEmail gets the authenticated email from context.
func GetEmail(ctx context.Context) string {
	if v := ctx.Value(EmailKey); v != nil {
		return v.(string)
	}
	return ""
}

// GetToken gets the raw session token from context.
func GetToken(ctx context.Context) string {
	if v := ctx.Value(TokenKey); v != nil {
		return v.(string)
	}
	return ""
}
