package handlers

import (
	"net/http"

	"github.com/AnshRaj112/palchat-backend/internal/models"
)

type PrincipalResponse struct {
	Response
	models.PrincipalResponse
}

// CreatePrincipal hands a device its anonymous principal and a bearer token
// for it. Calling it again with the same device token returns the same
// principal.
func (h *Handler) CreatePrincipal(w http.ResponseWriter, r *http.Request) {
	var req models.PrincipalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	p, err := h.Principals.GetOrCreateAnonymousPrincipal(r.Context(), req.DeviceToken)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	token, exp, err := h.Tokens.Issue(p.ID)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PrincipalResponse{
		Response: ok("Principal ready"),
		PrincipalResponse: models.PrincipalResponse{
			PrincipalID: p.ID,
			Token:       token,
			ExpiresAt:   exp,
		},
	})
}

// Register creates an account and signs the calling principal in as it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	principalID, found := h.principal(w, r)
	if !found {
		return
	}
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	u, err := h.Directory.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if _, err := h.Sessions.Start(r.Context(), principalID, u); err != nil {
		h.WriteError(w, r, err)
		return
	}

	h.Avatars.DecorateUser(u)
	writeJSON(w, http.StatusCreated, UserResponse{Response: ok("Account created"), User: u})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	principalID, found := h.principal(w, r)
	if !found {
		return
	}
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	u, err := h.Directory.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if _, err := h.Sessions.Start(r.Context(), principalID, u); err != nil {
		h.WriteError(w, r, err)
		return
	}

	h.Avatars.DecorateUser(u)
	writeJSON(w, http.StatusOK, UserResponse{Response: ok("Signed in"), User: u})
}

// Logout ends the session and forgets the device binding. It succeeds even
// when nobody was signed in.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principalID, found := h.principal(w, r)
	if !found {
		return
	}
	if err := h.Sessions.End(r.Context(), principalID); err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Signed out"))
}

// Resume signs the principal back in from its stored binding.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	principalID, found := h.principal(w, r)
	if !found {
		return
	}
	sess, err := h.Sessions.Resume(r.Context(), principalID)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	u := sess.User()
	h.Avatars.DecorateUser(&u)
	writeJSON(w, http.StatusOK, UserResponse{Response: ok("Session resumed"), User: &u})
}
