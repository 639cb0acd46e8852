package middleware

import (
	"context"
	"net/http"

	"github.com/hushline/hushline/internal/model"
)

const SessionCookieName = "session"

type contextKey string

const (
	contextKeyUserID  contextKey = "userID"
	contextKeyIsAdmin contextKey = "isAdmin"
)

// SessionReader retrieves the user ID for a session token.
type SessionReader interface {
	GetUserID(ctx context.Context, sessionID string) (string, error)
}

type userByIDer interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Session validates the session cookie and stores the user ID and admin flag
// in the request context. Requests without a live session get a 401.
func Session(sessions SessionReader, users userByIDer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				jsonError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userID, err := sessions.GetUserID(r.Context(), cookie.Value)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user.ID, user.IsAdmin)))
		})
	}
}

// WithUser returns a context carrying an authenticated identity.
func WithUser(ctx context.Context, userID string, isAdmin bool) context.Context {
	ctx = context.WithValue(ctx, contextKeyUserID, userID)
	return context.WithValue(ctx, contextKeyIsAdmin, isAdmin)
}

// UserIDFromContext returns the authenticated user's ID from the context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyUserID).(string)
	return v
}

// IsAdmin reports whether the authenticated user is an admin.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(contextKeyIsAdmin).(bool)
	return v
}

// RequireAdmin allows only admins through. Everyone else gets a 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			jsonError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
