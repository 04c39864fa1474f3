package handlers

import (
	"net/http"
	"strconv"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type MessagesResponse struct {
	Response
	Messages []models.Message `json:"messages"`
}

type MessageResponse struct {
	Response
	Message *models.Message `json:"message"`
}

// RecentMessages returns the newest messages of a channel, oldest first.
// Query params:
//
//	limit (optional, 1..100, default 50)
func (h *Handler) RecentMessages(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}

	limit := services.DefaultRecentLimit
	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		if parsed, err := strconv.Atoi(lStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	msgs, err := h.Channel.Recent(r.Context(), chi.URLParam(r, "id"), sess.UserID(), limit)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Response: ok(""), Messages: msgs})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	msg, err := h.Channel.Append(r.Context(), chi.URLParam(r, "id"), sess.UserID(), req.Text)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Response: Response{Success: true}, Message: msg})
}
