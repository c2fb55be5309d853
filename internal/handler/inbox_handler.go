// internal/handler/inbox_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/service"
)

// Inbox is the recipient-facing side of delivered broadcasts.
type Inbox interface {
	ListMessages(ctx context.Context, recipientID string) ([]service.InboxMessage, error)
	MarkRead(ctx context.Context, recipientID, broadcastID string) error
}

// InboxHandler holds the dependencies for the in-app message endpoints
type InboxHandler struct {
	Inbox Inbox
	Log   *logrus.Logger
}

func NewInboxHandler(inbox Inbox, log *logrus.Logger) *InboxHandler {
	return &InboxHandler{Inbox: inbox, Log: log}
}

func (h *InboxHandler) Routes(r chi.Router) {
	r.Get("/recipients/{id}/messages", h.ListMessagesHandler)
	r.Post("/recipients/{id}/messages/{broadcastId}/read", h.MarkReadHandler)
}

// ListMessagesHandler returns the recipient's inbox, newest first
func (h *InboxHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "id")

	messages, err := h.Inbox.ListMessages(r.Context(), recipientID)
	if err != nil {
		h.Log.WithError(err).WithField("recipientId", recipientID).Error("❌ [INBOX] Failed to list messages")
		http.Error(w, "failed to fetch messages: "+err.Error(), appErrors.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": messages})
}

// MarkReadHandler records that the recipient opened a broadcast
func (h *InboxHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "id")
	broadcastID := chi.URLParam(r, "broadcastId")

	if err := h.Inbox.MarkRead(r.Context(), recipientID, broadcastID); err != nil {
		status := appErrors.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.Log.WithError(err).WithFields(logrus.Fields{
				"recipientId": recipientID,
				"broadcastId": broadcastID,
			}).Error("❌ [INBOX] Failed to mark read")
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
