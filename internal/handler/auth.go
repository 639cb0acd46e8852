package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hushline/hushline/internal/auth"
	appmw "github.com/hushline/hushline/internal/middleware"
	"github.com/hushline/hushline/internal/model"
	"github.com/hushline/hushline/internal/store"
)

const loginFailedMessage = "Invalid username or password"

// AuthHandler handles registration and sessions.
type AuthHandler struct {
	BaseHandler
	store               *store.Store
	secureCookies       bool
	inviteCodesRequired bool
}

func NewAuthHandler(base BaseHandler, s *store.Store, secureCookies, inviteCodesRequired bool) *AuthHandler {
	return &AuthHandler{BaseHandler: base, store: s, secureCookies: secureCookies, inviteCodesRequired: inviteCodesRequired}
}

type registerRequest struct {
	Username   string `json:"username" validate:"required,min=4,max=25,username"`
	Password   string `json:"password" validate:"required"`
	InviteCode string `json:"invite_code"`
}

// Register creates an account. The registration_enabled gate runs as
// middleware in front of this handler.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}
	if err := auth.CheckPassword(req.Password); err != nil {
		h.failedValidationResponse(w, r, map[string]string{"password": err.Error()})
		return
	}
	if h.inviteCodesRequired && req.InviteCode == "" {
		h.failedValidationResponse(w, r, map[string]string{"invite_code": "must be provided"})
		return
	}

	hash, err := auth.Hash(req.Password)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	var user *model.User
	err = h.store.InTx(r.Context(), func(tx *store.Store) error {
		if h.inviteCodesRequired {
			if err := tx.InviteCodes.Consume(r.Context(), req.InviteCode); err != nil {
				return fmt.Errorf("invite code: %w", err)
			}
		}
		var err error
		user, err = tx.Users.Create(r.Context(), req.Username, hash, false)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ Invalid or expired invite code.")
		return
	case errors.Is(err, store.ErrDuplicate):
		h.errorResponse(w, r, http.StatusBadRequest, "💔 This username is already taken.")
		return
	default:
		h.serverErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("user registered", "user_id", user.ID)
	h.messageResponse(w, r, http.StatusCreated, "👍 Registration successful! Please log in.", envelope{"user": user})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	user, hash, err := h.store.Users.GetByPrimaryUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err != nil {
		auth.VerifyMissing(req.Password)
		h.unauthorizedResponse(w, r, loginFailedMessage)
		return
	}
	if !auth.Verify(hash, req.Password) {
		h.unauthorizedResponse(w, r, loginFailedMessage)
		return
	}

	sessionID, err := h.store.Sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     appmw.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(store.SessionTTL),
	})
	if err := h.writeJSON(w, http.StatusOK, envelope{"user": user}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Logout ends the current session. It is safe to call without one.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(appmw.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.store.Sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.logError(r, err)
		}
	}
	clearSessionCookie(w)
	h.messageResponse(w, r, http.StatusOK, "👋 You have been logged out.", nil)
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    appmw.SessionCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}

// currentUser loads the authenticated user from the session context.
func currentUser(ctx context.Context, users *store.UserStore) (*model.User, error) {
	return users.GetByID(ctx, appmw.UserIDFromContext(ctx))
}
