package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/hushline/hushline/internal/handler"
	"github.com/hushline/hushline/internal/middleware"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	base := handler.NewBaseHandler(app.logger)
	cfg := app.config

	checks := map[string]handler.Pinger{"database": app.store}
	if app.cache != nil {
		checks["cache"] = app.cache
	}
	r.Get("/health", handler.Health(checks))

	// Uploaded brand assets when stored on local disk
	if app.assets != nil {
		prefix := strings.TrimSuffix(cfg.Blob.PublicURL, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", app.assets))
	}

	brandingHandler := handler.NewBrandingHandler(base, app.store, app.blobs)
	r.Get("/", brandingHandler.Homepage)
	r.Get("/api/branding", brandingHandler.Public)

	directoryHandler := handler.NewDirectoryHandler(base, app.store, cfg.DirectoryVerifiedTabEnabled)
	r.Get("/api/directory", directoryHandler.List)

	// Public message submission
	profileHandler := handler.NewProfileHandler(base, app.store, app.notifier, app.metrics)
	r.Get("/api/to/{username}", profileHandler.Get)
	r.With(middleware.RateLimit(rate.Every(10*time.Second), 5)).
		Post("/api/to/{username}/messages", profileHandler.Submit)
	r.Get("/api/reply/{slug}", profileHandler.Reply)

	authHandler := handler.NewAuthHandler(base, app.store, cfg.SecureCookies, cfg.RegistrationCodesRequired)
	authLimit := middleware.RateLimit(rate.Every(6*time.Second), 10)
	r.With(authLimit, middleware.RegistrationGate(app.store.Settings)).Post("/api/register", authHandler.Register)
	r.With(authLimit).Post("/api/login", authHandler.Login)
	r.Post("/api/logout", authHandler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(app.store.Sessions, app.store.Users))

		inboxHandler := handler.NewInboxHandler(base, app.store, app.metrics)
		r.Get("/api/inbox", inboxHandler.List)
		r.Put("/api/messages/{id}/status", inboxHandler.UpdateStatus)
		r.Delete("/api/messages/{id}", inboxHandler.Delete)

		settingsHandler := handler.NewSettingsHandler(base, app.store, app.proton, app.crypter, cfg.AliasMode)
		r.Get("/api/settings", settingsHandler.Get)
		r.Put("/api/settings/profile", settingsHandler.UpdateProfile)
		r.Put("/api/settings/status-text", settingsHandler.UpdateStatusText)
		r.Get("/api/settings/fields", settingsHandler.ListFields)
		r.Post("/api/settings/fields", settingsHandler.CreateField)
		r.Delete("/api/settings/fields/{id}", settingsHandler.DeleteField)
		r.Post("/api/settings/aliases", settingsHandler.CreateAlias)
		r.Put("/api/settings/pgp", settingsHandler.UpdatePGPKey)
		r.Post("/api/settings/pgp/proton", settingsHandler.ImportProtonKey)
		r.Put("/api/settings/notifications", settingsHandler.UpdateNotifications)
		r.Put("/api/settings/password", settingsHandler.ChangePassword)
		r.Post("/api/settings/delete-account", settingsHandler.DeleteAccount)

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			adminHandler := handler.NewAdminHandler(base, app.store, cfg.UserVerificationEnabled)
			r.Get("/api/admin/users", adminHandler.ListUsers)
			r.Post("/api/admin/users/{id}/toggle-admin", adminHandler.ToggleAdmin)
			r.Post("/api/admin/users/{id}/toggle-verified", adminHandler.ToggleVerified)
			r.Get("/api/admin/invite-codes", adminHandler.ListInviteCodes)
			r.Post("/api/admin/invite-codes", adminHandler.CreateInviteCode)

			r.Get("/api/admin/branding", brandingHandler.Admin)
			r.Put("/api/admin/branding/directory-text", brandingHandler.UpdateDirectoryText)
			r.Put("/api/admin/branding/color", brandingHandler.UpdateColor)
			r.Put("/api/admin/branding/name", brandingHandler.UpdateName)
			r.Put("/api/admin/branding/homepage", brandingHandler.UpdateHomepage)
			r.Post("/api/admin/branding/logo", brandingHandler.UploadLogo)
			r.Delete("/api/admin/branding/logo", brandingHandler.DeleteLogo)
			r.Delete("/api/admin/branding/homepage", brandingHandler.ResetHomepage)
			r.Delete("/api/admin/branding/directory-text", brandingHandler.ResetDirectoryText)

			r.Handle("/metrics", app.metrics.Handler())
		})
	})
	return r
}
