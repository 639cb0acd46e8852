package handler

import (
	"net/http"

	"github.com/hushline/hushline/internal/model"
	"github.com/hushline/hushline/internal/store"
)

type DirectoryHandler struct {
	BaseHandler
	store         *store.Store
	verifiedTabOn bool
}

func NewDirectoryHandler(base BaseHandler, s *store.Store, verifiedTabEnabled bool) *DirectoryHandler {
	return &DirectoryHandler{BaseHandler: base, store: s, verifiedTabOn: verifiedTabEnabled}
}

type directoryEntry struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	IsVerified  bool   `json:"is_verified"`
}

// List returns the public directory. Verified entries are split out when the
// verified tab is enabled.
func (h *DirectoryHandler) List(w http.ResponseWriter, r *http.Request) {
	intro, err := h.store.Settings.String(r.Context(), model.SettingDirectoryIntroText)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	names, err := h.store.Users.ListDirectory(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	all := make([]directoryEntry, 0, len(names))
	verified := make([]directoryEntry, 0)
	for _, n := range names {
		e := directoryEntry{
			Username:    n.Username,
			DisplayName: n.DisplayName,
			Bio:         n.Bio,
			IsVerified:  n.IsVerified,
		}
		all = append(all, e)
		if n.IsVerified {
			verified = append(verified, e)
		}
	}

	env := envelope{
		"intro_text":           intro,
		"users":                all,
		"verified_tab_enabled": h.verifiedTabOn,
	}
	if h.verifiedTabOn {
		env["verified"] = verified
	}
	if err := h.writeJSON(w, http.StatusOK, env, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
