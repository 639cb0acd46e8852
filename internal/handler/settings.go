package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hushline/hushline/internal/auth"
	"github.com/hushline/hushline/internal/config"
	appmw "github.com/hushline/hushline/internal/middleware"
	"github.com/hushline/hushline/internal/model"
	"github.com/hushline/hushline/internal/pgp"
	"github.com/hushline/hushline/internal/store"
)

type keyLookup interface {
	Lookup(ctx context.Context, email string) (string, error)
}

type secretSealer interface {
	EncryptString(plaintext string) (string, error)
}

// SettingsHandler handles the authenticated user's own settings.
type SettingsHandler struct {
	BaseHandler
	store     *store.Store
	proton    keyLookup
	sealer    secretSealer
	aliasMode config.AliasMode
}

func NewSettingsHandler(base BaseHandler, s *store.Store, proton keyLookup, sealer secretSealer, aliasMode config.AliasMode) *SettingsHandler {
	return &SettingsHandler{BaseHandler: base, store: s, proton: proton, sealer: sealer, aliasMode: aliasMode}
}

// Get returns the caller's account, usernames and custom status texts.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context(), h.store.Users)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	names, err := h.store.Users.ListUsernames(r.Context(), user.ID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	texts, err := h.store.StatusTexts.ForUser(r.Context(), user.ID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	env := envelope{
		"user":         user,
		"usernames":    names,
		"status_texts": texts,
		"has_pgp_key":  user.PGPKey != "",
		"statuses":     statusOptions(),
	}
	if err := h.writeJSON(w, http.StatusOK, env, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ownedUsername resolves id to one of the caller's usernames. An empty id
// selects the primary username.
func (h *SettingsHandler) ownedUsername(ctx context.Context, id string) (*model.Username, error) {
	names, err := h.store.Users.ListUsernames(ctx, appmw.UserIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	for i := range names {
		if (id == "" && names[i].IsPrimary) || names[i].ID == id {
			return &names[i], nil
		}
	}
	return nil, store.ErrNotFound
}

type profileRequest struct {
	UsernameID      string `json:"username_id"`
	DisplayName     string `json:"display_name" validate:"max=100"`
	Bio             string `json:"bio" validate:"max=250"`
	ShowInDirectory bool   `json:"show_in_directory"`
}

func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	name, err := h.ownedUsername(r.Context(), req.UsernameID)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	err = h.store.Users.UpdateProfile(r.Context(), name.UserID, name.ID, strings.TrimSpace(req.DisplayName), strings.TrimSpace(req.Bio), req.ShowInDirectory)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Profile updated successfully.", nil)
}

type statusTextRequest struct {
	Status   model.MessageStatus `json:"status" validate:"required"`
	Markdown string              `json:"markdown" validate:"max=2000"`
}

// UpdateStatusText replaces a status's default text. Empty text restores
// the default.
func (h *SettingsHandler) UpdateStatusText(w http.ResponseWriter, r *http.Request) {
	var req statusTextRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	userID := appmw.UserIDFromContext(r.Context())
	text := strings.TrimSpace(req.Markdown)
	if text == "" {
		if _, err := h.store.StatusTexts.Delete(r.Context(), userID, req.Status); err != nil {
			h.serverErrorResponse(w, r, err)
			return
		}
		h.messageResponse(w, r, http.StatusOK, "👍 Reply text set to default.", nil)
		return
	}

	if err := h.store.StatusTexts.Upsert(r.Context(), userID, req.Status, text); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Reply text updated.", nil)
}

// ListFields returns every field of a username, including disabled ones.
func (h *SettingsHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	name, err := h.ownedUsername(r.Context(), r.URL.Query().Get("username_id"))
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	defs, err := h.store.Fields.ListForUsername(r.Context(), name.ID, false)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if defs == nil {
		defs = []model.FieldDefinition{}
	}

	types := make([]envelope, 0, len(model.FieldTypes()))
	for _, ft := range model.FieldTypes() {
		types = append(types, envelope{"field_type": ft, "label": ft.Label()})
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"fields": defs, "field_types": types}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *SettingsHandler) CreateField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	name, err := h.ownedUsername(r.Context(), req.UsernameID)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	req.UsernameID = name.ID

	def, errs := req.definition()
	if errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}
	if err := h.store.Fields.Create(r.Context(), def); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusCreated, "👍 Field added.", envelope{"field": def})
}

func (h *SettingsHandler) DeleteField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	names, err := h.store.Users.ListUsernames(r.Context(), appmw.UserIDFromContext(r.Context()))
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	for _, n := range names {
		err := h.store.Fields.Delete(r.Context(), n.ID, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			h.storeErrorResponse(w, r, err)
			return
		}
		h.messageResponse(w, r, http.StatusOK, "🗑️ Field removed.", nil)
		return
	}
	h.notFoundResponse(w, r)
}

type aliasRequest struct {
	Username string `json:"username" validate:"required,min=4,max=25,username"`
}

// CreateAlias adds a username to the caller's account, subject to the
// instance's alias mode.
func (h *SettingsHandler) CreateAlias(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context(), h.store.Users)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	if !h.aliasAllowed(user) {
		h.unauthorizedResponse(w, r, "⛔️ Aliases are not available on this account.")
		return
	}

	var req aliasRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	var alias *model.Username
	err = h.store.InTx(r.Context(), func(tx *store.Store) error {
		var err error
		alias, err = tx.Users.CreateAlias(r.Context(), user.ID, req.Username)
		return err
	})
	if errors.Is(err, store.ErrDuplicate) {
		h.errorResponse(w, r, http.StatusBadRequest, "💔 This username is already taken.")
		return
	}
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusCreated, "👍 Alias created successfully.", envelope{"username": alias})
}

func (h *SettingsHandler) aliasAllowed(u *model.User) bool {
	switch h.aliasMode {
	case config.AliasAlways:
		return true
	case config.AliasPremium:
		return u.IsPremium
	case config.AliasNever:
		return false
	}
	panic("programming error: AliasMode value " + string(h.aliasMode) + " is not handled")
}

type pgpKeyRequest struct {
	PGPKey string `json:"pgp_key"`
}

// UpdatePGPKey stores a pasted key. An empty key removes encryption.
func (h *SettingsHandler) UpdatePGPKey(w http.ResponseWriter, r *http.Request) {
	var req pgpKeyRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	key := strings.TrimSpace(req.PGPKey)
	if key != "" && !pgp.IsValidKey(key) {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ Invalid PGP key format or import failed.")
		return
	}
	if err := h.store.Users.SetPGPKey(r.Context(), appmw.UserIDFromContext(r.Context()), key); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}

	msg := "👍 PGP key updated successfully."
	if key == "" {
		msg = "👍 PGP key removed."
	}
	h.messageResponse(w, r, http.StatusOK, msg, nil)
}

type protonRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ImportProtonKey fetches the key Proton Mail publishes for an address.
func (h *SettingsHandler) ImportProtonKey(w http.ResponseWriter, r *http.Request) {
	var req protonRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ Invalid email address.")
		return
	}

	key, err := h.proton.Lookup(r.Context(), req.Email)
	switch {
	case errors.Is(err, pgp.ErrNotProtonAddress):
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ This isn't a Proton Mail email address.")
		return
	case err != nil:
		h.logError(r, err)
		h.errorResponse(w, r, http.StatusBadGateway, "⛔️ Error fetching PGP key from Proton Mail.")
		return
	}

	key = strings.TrimSpace(key)
	if key == "" || !pgp.IsValidKey(key) {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ No PGP key found for the email address.")
		return
	}
	if err := h.store.Users.SetPGPKey(r.Context(), appmw.UserIDFromContext(r.Context()), key); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 PGP key updated successfully.", nil)
}

type notificationsRequest struct {
	Email                      string               `json:"email" validate:"omitempty,email,max=255"`
	EnableEmailNotifications   bool                 `json:"enable_email_notifications"`
	EmailIncludeMessageContent bool                 `json:"email_include_message_content"`
	SMTPServer                 string               `json:"smtp_server" validate:"omitempty,hostname_rfc1123|ip,max=255"`
	SMTPPort                   int                  `json:"smtp_port" validate:"min=0,max=65535"`
	SMTPUsername               string               `json:"smtp_username" validate:"max=255"`
	SMTPPassword               string               `json:"smtp_password" validate:"max=255"`
	SMTPSender                 string               `json:"smtp_sender" validate:"omitempty,email"`
	SMTPEncryption             model.SMTPEncryption `json:"smtp_encryption"`
}

// UpdateNotifications saves forwarding preferences and an optional custom
// SMTP relay. A blank password keeps the stored one.
func (h *SettingsHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	var req notificationsRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	user, err := currentUser(r.Context(), h.store.Users)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}

	if req.EnableEmailNotifications && req.Email == "" {
		h.failedValidationResponse(w, r, map[string]string{"email": "must be provided to receive notifications"})
		return
	}
	if req.EmailIncludeMessageContent && user.PGPKey == "" {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ Add a PGP key before including message content in notifications.")
		return
	}

	n := store.NotificationSettings{
		Email:                      req.Email,
		EnableEmailNotifications:   req.EnableEmailNotifications,
		EmailIncludeMessageContent: req.EmailIncludeMessageContent,
		SMTPEncryption:             model.DefaultSMTPEncryption(),
	}
	if req.SMTPServer != "" {
		if req.SMTPPort == 0 {
			h.failedValidationResponse(w, r, map[string]string{"smtp_port": "must be provided with a custom server"})
			return
		}
		n.SMTPServer = req.SMTPServer
		n.SMTPPort = req.SMTPPort
		n.SMTPUsername = req.SMTPUsername
		n.SMTPSender = req.SMTPSender
		if req.SMTPEncryption != "" {
			n.SMTPEncryption = req.SMTPEncryption
		}

		n.SMTPPassword = user.SMTPPassword
		if req.SMTPPassword != "" {
			sealed, err := h.sealer.EncryptString(req.SMTPPassword)
			if err != nil {
				h.serverErrorResponse(w, r, err)
				return
			}
			n.SMTPPassword = sealed
		}
	}

	if err := h.store.Users.UpdateNotifications(r.Context(), user.ID, n); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Notification settings updated.", nil)
}

type passwordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePassword replaces the caller's password and ends all of their
// sessions, including the current one.
func (h *SettingsHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	user, err := currentUser(r.Context(), h.store.Users)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	_, hash, err := h.store.Users.GetByPrimaryUsername(r.Context(), user.PrimaryUsername)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	if !auth.Verify(hash, req.OldPassword) {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ Incorrect old password.")
		return
	}
	if err := auth.CheckPassword(req.NewPassword); err != nil {
		h.failedValidationResponse(w, r, map[string]string{"new_password": err.Error()})
		return
	}

	newHash, err := auth.Hash(req.NewPassword)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	err = h.store.InTx(r.Context(), func(tx *store.Store) error {
		if err := tx.Users.SetPassword(r.Context(), user.ID, newHash); err != nil {
			return err
		}
		return tx.Sessions.DeleteAllByUserID(r.Context(), user.ID)
	})
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("password changed", "user_id", user.ID)
	clearSessionCookie(w)
	h.messageResponse(w, r, http.StatusOK, "👍 Password successfully changed. Please log in again.", nil)
}

// DeleteAccount removes the caller's account and signs them out.
func (h *SettingsHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := appmw.UserIDFromContext(r.Context())
	err := h.store.InTx(r.Context(), func(tx *store.Store) error {
		return tx.Users.Delete(r.Context(), userID)
	})
	if errors.Is(err, store.ErrLastAdmin) {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ You are the only admin. Promote another admin before deleting your account.")
		return
	}
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("account deleted", "user_id", userID)
	clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}
