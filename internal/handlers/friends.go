package handlers

import (
	"net/http"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/go-chi/chi/v5"
)

type FriendRequestResponse struct {
	Response
	Request *models.FriendRequest `json:"request"`
}

type FriendRequestsResponse struct {
	Response
	Requests []models.FriendRequest `json:"requests"`
}

type ChatsResponse struct {
	Response
	Chats []models.Chat `json:"chats"`
}

func (h *Handler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	var req models.SendFriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	from := sess.User()
	fr, err := h.FriendRequests.Send(r.Context(), &from, req.ToID)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FriendRequestResponse{Response: ok("Friend request sent"), Request: fr})
}

func (h *Handler) IncomingFriendRequests(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	list, err := h.FriendRequests.ListIncoming(r.Context(), sess.UserID())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FriendRequestsResponse{Response: ok(""), Requests: list})
}

// RespondFriendRequest accepts or rejects a pending request addressed to the
// caller.
func (h *Handler) RespondFriendRequest(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	var req models.RespondFriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	fr, err := h.FriendRequests.Respond(r.Context(), chi.URLParam(r, "id"), sess.UserID(), req.Action)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	msg := "Friend request rejected"
	if fr.Status == models.RequestAccepted {
		msg = "Friend request accepted"
	}
	writeJSON(w, http.StatusOK, FriendRequestResponse{Response: ok(msg), Request: fr})
}

// ListFriendships returns the caller's chats, most recently active first.
func (h *Handler) ListFriendships(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}
	chats, err := h.Friendships.ListForUser(r.Context(), sess.UserID())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.Avatars.DecorateChats(chats)
	writeJSON(w, http.StatusOK, ChatsResponse{Response: ok(""), Chats: chats})
}
