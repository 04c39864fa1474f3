package handlers

import (
	"net/http"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/services"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
)

type AssistResponse struct {
	Response
	models.AssistResponse
}

// writeAssist answers with the completion, or with the fallback text when
// the completion service failed. Input errors are still reported as errors.
func (h *Handler) writeAssist(w http.ResponseWriter, r *http.Request, text string, err error) {
	if apperr.CodeOf(err) == apperr.CodeUpstream {
		h.Logger.Warn("assist unavailable, answering with fallback", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusOK, AssistResponse{
			Response:       ok(""),
			AssistResponse: models.AssistResponse{Text: services.FallbackText, Fallback: true},
		})
		return
	}
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AssistResponse{
		Response:       ok(""),
		AssistResponse: models.AssistResponse{Text: text},
	})
}

func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	if _, found := h.session(w, r); !found {
		return
	}
	var req models.RewriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}
	text, err := h.Assist.Rewrite(r.Context(), req.Text, req.Style)
	h.writeAssist(w, r, text, err)
}

// Summarize summarizes the latest messages of a channel the caller is in.
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	var req models.SummarizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	userID := sess.UserID()
	fs, err := h.Friendships.GetForMember(r.Context(), req.ChannelID, userID)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	msgs, err := h.Channel.Recent(r.Context(), req.ChannelID, userID, services.SummaryWindow)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	names := map[string]string{}
	for _, d := range fs.UserDetails {
		names[d.ID] = d.Username
	}
	names[userID] = sess.User().Username

	text, err := h.Assist.Summarize(r.Context(), msgs, names)
	h.writeAssist(w, r, text, err)
}
