package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hushline/hushline/internal/model"
)

type settingsReader interface {
	Bool(ctx context.Context, key model.SettingKey) (bool, error)
}

// RegistrationGate sends visitors back to the homepage while registration is
// switched off.
func RegistrationGate(settings settingsReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enabled, err := settings.Bool(r.Context(), model.SettingRegistrationEnabled)
			if err != nil {
				slog.Error("registration gate: load setting", "err", err)
				jsonError(w, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
				return
			}
			if !enabled {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
