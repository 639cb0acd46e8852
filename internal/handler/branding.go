package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hushline/hushline/internal/media"
	"github.com/hushline/hushline/internal/model"
	"github.com/hushline/hushline/internal/store"
)

type blobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// BrandingHandler serves organization branding and the admin controls that
// change it. Every mutation runs as one unit of work.
type BrandingHandler struct {
	BaseHandler
	store *store.Store
	blobs blobStore
}

func NewBrandingHandler(base BaseHandler, s *store.Store, blobs blobStore) *BrandingHandler {
	return &BrandingHandler{BaseHandler: base, store: s, blobs: blobs}
}

type branding struct {
	Name               string `json:"name"`
	PrimaryColor       string `json:"primary_color"`
	LogoURL            string `json:"logo_url,omitempty"`
	DirectoryIntroText string `json:"directory_intro_text"`
	HomepageUsername   string `json:"homepage_username,omitempty"`
}

func (h *BrandingHandler) load(ctx context.Context) (*branding, error) {
	settings := h.store.Settings
	var b branding
	var logo string
	for key, dst := range map[model.SettingKey]*string{
		model.SettingBrandName:          &b.Name,
		model.SettingBrandPrimaryColor:  &b.PrimaryColor,
		model.SettingBrandLogo:          &logo,
		model.SettingDirectoryIntroText: &b.DirectoryIntroText,
		model.SettingHomepageUserName:   &b.HomepageUsername,
	} {
		v, err := settings.String(ctx, key)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	if logo != "" {
		b.LogoURL = h.blobs.URL(logo)
	}
	return &b, nil
}

// Public returns the branding every page needs.
func (h *BrandingHandler) Public(w http.ResponseWriter, r *http.Request) {
	b, err := h.load(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	b.HomepageUsername = ""
	if err := h.writeJSON(w, http.StatusOK, envelope{"branding": b}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Admin returns the branding along with the raw setting state.
func (h *BrandingHandler) Admin(w http.ResponseWriter, r *http.Request) {
	b, err := h.load(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	all, err := h.store.Settings.All(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"branding": b, "settings": all}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Homepage sends visitors to the configured profile, or to the directory
// when none is set or the user no longer exists.
func (h *BrandingHandler) Homepage(w http.ResponseWriter, r *http.Request) {
	target := "/directory"
	name, err := h.store.Settings.String(r.Context(), model.SettingHomepageUserName)
	if err != nil {
		h.logError(r, err)
	} else if name != "" {
		if _, err := h.store.Users.GetUsername(r.Context(), name); err == nil {
			target = "/to/" + url.PathEscape(name)
		} else if !errors.Is(err, store.ErrNotFound) {
			h.logError(r, err)
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type directoryTextRequest struct {
	Text string `json:"text" validate:"max=5000"`
}

// UpdateDirectoryText stores the directory intro. An empty text resets it.
func (h *BrandingHandler) UpdateDirectoryText(w http.ResponseWriter, r *http.Request) {
	var req directoryTextRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}
	if req.Text == "" {
		h.ResetDirectoryText(w, r)
		return
	}

	if err := h.upsert(r.Context(), model.SettingDirectoryIntroText, req.Text); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Directory intro text updated", nil)
}

func (h *BrandingHandler) ResetDirectoryText(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context(), model.SettingDirectoryIntroText); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Directory intro text was reset to defaults", nil)
}

type colorRequest struct {
	PrimaryColor string `json:"primary_color" validate:"required,hexcolor"`
}

func (h *BrandingHandler) UpdateColor(w http.ResponseWriter, r *http.Request) {
	var req colorRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}
	if err := h.upsert(r.Context(), model.SettingBrandPrimaryColor, req.PrimaryColor); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Brand primary color updated successfully.", nil)
}

type nameRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (h *BrandingHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}
	if err := h.upsert(r.Context(), model.SettingBrandName, req.Name); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Brand app name updated successfully.", nil)
}

type homepageRequest struct {
	Username string `json:"username" validate:"required,max=25"`
}

// UpdateHomepage points the homepage at an existing username.
func (h *BrandingHandler) UpdateHomepage(w http.ResponseWriter, r *http.Request) {
	var req homepageRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	err := h.store.InTx(r.Context(), func(tx *store.Store) error {
		if _, err := tx.Users.GetUsername(r.Context(), req.Username); err != nil {
			return err
		}
		return tx.Settings.Upsert(r.Context(), model.SettingHomepageUserName, req.Username)
	})
	if errors.Is(err, store.ErrNotFound) {
		h.errorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("⛔️ User %q not found", req.Username))
		return
	}
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, fmt.Sprintf("👍 Homepage set to user %q", req.Username), nil)
}

func (h *BrandingHandler) ResetHomepage(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context(), model.SettingHomepageUserName); err != nil {
		h.logError(r, err)
		h.errorResponse(w, r, http.StatusInternalServerError, "There was an error and the setting could not reset")
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Homepage reset to default", nil)
}

// UploadLogo accepts a multipart "logo" PNG. The image is re-encoded and
// stored before the setting that points at it is written.
func (h *BrandingHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxLogoBytes+(64<<10))
	file, _, err := r.FormFile("logo")
	if err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ A logo file is required.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	clean, err := media.NormalizeLogo(data)
	switch {
	case errors.Is(err, media.ErrNotPNG):
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ The logo must be a PNG image.")
		return
	case errors.Is(err, media.ErrTooLarge):
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ The logo image is too large.")
		return
	case err != nil:
		h.serverErrorResponse(w, r, err)
		return
	}

	if err := h.blobs.Put(r.Context(), model.BrandLogoObjectKey, clean); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.upsert(r.Context(), model.SettingBrandLogo, model.BrandLogoObjectKey); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Brand logo updated successfully.", envelope{"logo_url": h.blobs.URL(model.BrandLogoObjectKey)})
}

// DeleteLogo clears the setting, then removes the stored object.
func (h *BrandingHandler) DeleteLogo(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context(), model.SettingBrandLogo); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	if err := h.blobs.Delete(r.Context(), model.BrandLogoObjectKey); err != nil {
		h.logError(r, fmt.Errorf("delete logo object: %w", err))
	}
	h.messageResponse(w, r, http.StatusOK, "👍 Brand logo deleted.", nil)
}

func (h *BrandingHandler) upsert(ctx context.Context, key model.SettingKey, value any) error {
	return h.store.InTx(ctx, func(tx *store.Store) error {
		return tx.Settings.Upsert(ctx, key, value)
	})
}

func (h *BrandingHandler) reset(ctx context.Context, key model.SettingKey) error {
	return h.store.InTx(ctx, func(tx *store.Store) error {
		_, err := tx.Settings.ResetToDefault(ctx, key)
		return err
	})
}
