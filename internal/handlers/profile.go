package handlers

import (
	"net/http"

	"github.com/AnshRaj112/palchat-backend/internal/models"
)

type UsersResponse struct {
	Response
	Users []models.UserSummary `json:"users"`
}

// GetMe returns the caller's current profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	u, err := h.Directory.Get(r.Context(), sess.UserID())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	sess.SetUser(u)
	h.Avatars.DecorateUser(u)
	writeJSON(w, http.StatusOK, UserResponse{Response: ok(""), User: u})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	var req models.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	u, err := h.Directory.UpdateProfile(r.Context(), sess.UserID(), req.Bio, req.AvatarSeed)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	sess.SetUser(u)
	h.Avatars.DecorateUser(u)
	writeJSON(w, http.StatusOK, UserResponse{Response: ok("Profile updated"), User: u})
}

func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	var req models.UpdatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}
	if err := h.Directory.UpdatePassword(r.Context(), sess.UserID(), req.Password); err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Password updated"))
}

// SearchUsers looks a user up by exact username. The caller never finds
// themselves.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	query := r.URL.Query().Get("username")
	users, err := h.Directory.Search(r.Context(), query, sess.UserID())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.Avatars.DecorateSummaries(users)
	writeJSON(w, http.StatusOK, UsersResponse{Response: ok(""), Users: users})
}
