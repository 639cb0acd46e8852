package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hushline/hushline/internal/model"
	"github.com/hushline/hushline/internal/store"
)

// AdminHandler handles user management and invite codes.
type AdminHandler struct {
	BaseHandler
	store               *store.Store
	verificationEnabled bool
}

func NewAdminHandler(base BaseHandler, s *store.Store, verificationEnabled bool) *AdminHandler {
	return &AdminHandler{BaseHandler: base, store: s, verificationEnabled: verificationEnabled}
}

// ListUsers returns every account with its primary username.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Users.ListAll(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"users": users}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ToggleAdmin flips a user's admin flag. The last admin cannot be demoted.
func (h *AdminHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var isAdmin bool
	err := h.store.InTx(r.Context(), func(tx *store.Store) error {
		var err error
		isAdmin, err = tx.Users.ToggleAdmin(r.Context(), id)
		return err
	})
	if errors.Is(err, store.ErrLastAdmin) {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ You cannot remove the only admin.")
		return
	}
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("admin flag changed", "user_id", id, "is_admin", isAdmin)
	h.messageResponse(w, r, http.StatusOK, "✅ User admin status toggled.", envelope{"is_admin": isAdmin})
}

// ToggleVerified flips the verified badge. It is refused while account
// verification is switched off for the instance.
func (h *AdminHandler) ToggleVerified(w http.ResponseWriter, r *http.Request) {
	if !h.verificationEnabled {
		h.unauthorizedResponse(w, r, "⛔️ User verification is not enabled.")
		return
	}

	verified, err := h.store.Users.ToggleVerified(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "✅ User verification status toggled.", envelope{"is_verified": verified})
}

func (h *AdminHandler) CreateInviteCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.store.InviteCodes.Create(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusCreated, "👍 Invite code created.", envelope{"invite_code": code})
}

func (h *AdminHandler) ListInviteCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.store.InviteCodes.List(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"invite_codes": codes}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
