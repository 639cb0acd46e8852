package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hushline/hushline/internal/model"
	"github.com/hushline/hushline/internal/pgp"
	"github.com/hushline/hushline/internal/store"
)

type messageNotifier interface {
	MessageReceived(u *model.User, content string) error
}

type messageMetrics interface {
	MessageSubmitted()
	StatusChanged(s model.MessageStatus)
}

// ProfileHandler serves public profiles and accepts submissions to them.
type ProfileHandler struct {
	BaseHandler
	store    *store.Store
	notifier messageNotifier
	metrics  messageMetrics
}

func NewProfileHandler(base BaseHandler, s *store.Store, n messageNotifier, m messageMetrics) *ProfileHandler {
	return &ProfileHandler{BaseHandler: base, store: s, notifier: n, metrics: m}
}

func (h *ProfileHandler) fieldsFor(r *http.Request, usernameID string) ([]model.FieldDefinition, error) {
	defs, err := h.store.Fields.ListForUsername(r.Context(), usernameID, true)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return defaultFields(), nil
	}
	return defs, nil
}

// Get returns the profile and the form a sender fills in.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, err := h.store.Users.GetUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	owner, err := h.store.Users.GetByID(r.Context(), name.UserID)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	defs, err := h.fieldsFor(r, name.ID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	env := envelope{
		"username":    name,
		"fields":      defs,
		"has_pgp_key": owner.PGPKey != "",
	}
	if err := h.writeJSON(w, http.StatusOK, env, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

type submitRequest struct {
	Values map[string][]string `json:"values" validate:"required"`
}

// Submit stores a message for the username, encrypted when its owner has a
// PGP key, and queues a notification.
func (h *ProfileHandler) Submit(w http.ResponseWriter, r *http.Request) {
	name, err := h.store.Users.GetUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}

	var req submitRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	defs, err := h.fieldsFor(r, name.ID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	values, errs := validateValues(defs, req.Values)
	if errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}
	if len(values) == 0 {
		h.errorResponse(w, r, http.StatusBadRequest, "⛔️ The message is empty.")
		return
	}

	owner, err := h.store.Users.GetByID(r.Context(), name.UserID)
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}

	content := formatMessage(values)
	if owner.PGPKey != "" {
		content, err = pgp.Encrypt(owner.PGPKey, content)
		if err != nil {
			h.serverErrorResponse(w, r, err)
			return
		}
	}

	msg, err := h.store.Messages.Create(r.Context(), name.ID, content)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.metrics.MessageSubmitted()

	if err := h.notifier.MessageReceived(owner, content); err != nil {
		h.Logger.Warn("notification not queued", "user_id", owner.ID, "err", err)
	}

	h.messageResponse(w, r, http.StatusCreated, "👍 Message submitted successfully.", envelope{
		"reply_slug": msg.ReplySlug,
		"reply_url":  "/reply/" + msg.ReplySlug,
	})
}

// Reply shows a sender the current status of their message.
func (h *ProfileHandler) Reply(w http.ResponseWriter, r *http.Request) {
	msg, err := h.store.Messages.GetByReplySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}

	custom, ok, err := h.store.StatusTexts.Get(r.Context(), msg.UserID, msg.Status)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	text := string(msg.Status.DefaultText())
	if ok {
		text = custom
	}

	env := envelope{
		"status":            msg.Status,
		"display":           msg.Status.DisplayStr(),
		"emoji":             msg.Status.Emoji(),
		"text":              text,
		"custom_text":       ok,
		"status_changed_at": msg.StatusChangedAt,
	}
	if err := h.writeJSON(w, http.StatusOK, env, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
