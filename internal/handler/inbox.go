package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	appmw "github.com/hushline/hushline/internal/middleware"
	"github.com/hushline/hushline/internal/model"
	"github.com/hushline/hushline/internal/store"
)

type InboxHandler struct {
	BaseHandler
	store   *store.Store
	metrics messageMetrics
}

func NewInboxHandler(base BaseHandler, s *store.Store, m messageMetrics) *InboxHandler {
	return &InboxHandler{BaseHandler: base, store: s, metrics: m}
}

type statusOption struct {
	Status  model.MessageStatus `json:"status"`
	Display string              `json:"display"`
	Emoji   string              `json:"emoji"`
}

func statusOptions() []statusOption {
	statuses := model.MessageStatuses()
	out := make([]statusOption, len(statuses))
	for i, s := range statuses {
		out[i] = statusOption{Status: s, Display: s.DisplayStr(), Emoji: s.Emoji()}
	}
	return out
}

// List returns the caller's messages, optionally filtered by ?status=.
func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter *model.MessageStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := model.ParseMessageStatus(raw)
		if err != nil {
			h.badRequestResponse(w, r, err)
			return
		}
		filter = &s
	}

	msgs, err := h.store.Messages.ListForUser(r.Context(), appmw.UserIDFromContext(r.Context()), filter)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	if err := h.writeJSON(w, http.StatusOK, envelope{"messages": msgs, "statuses": statusOptions()}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

type statusRequest struct {
	Status model.MessageStatus `json:"status" validate:"required"`
}

func (h *InboxHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if errs := h.validateStruct(req); errs != nil {
		h.failedValidationResponse(w, r, errs)
		return
	}

	userID := appmw.UserIDFromContext(r.Context())
	msg, err := h.store.Messages.GetForUser(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	if err := h.store.Messages.UpdateStatus(r.Context(), msg.ID, req.Status); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.metrics.StatusChanged(req.Status)

	h.messageResponse(w, r, http.StatusOK, "👍 Message status updated.", envelope{"status": req.Status})
}

func (h *InboxHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := appmw.UserIDFromContext(r.Context())
	msg, err := h.store.Messages.GetForUser(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	if err := h.store.Messages.Delete(r.Context(), msg.ID); err != nil {
		h.storeErrorResponse(w, r, err)
		return
	}
	h.messageResponse(w, r, http.StatusOK, "🗑️ Message deleted successfully.", nil)
}
