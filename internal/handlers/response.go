package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/AnshRaj112/palchat-backend/internal/middleware"
	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/services"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 * 1024

// Handler serves the HTTP and WebSocket API on top of the services.
type Handler struct {
	Principals     services.PrincipalProvider
	Tokens         *services.PrincipalTokens
	Sessions       *services.SessionManager
	Directory      *services.Directory
	FriendRequests *services.FriendRequests
	Friendships    *services.Friendships
	Channel        *services.Channel
	Assist         *services.Assist
	Live           *services.Live
	Avatars        *services.Avatars
	Logger         *slog.Logger

	// AllowedOrigins restricts WebSocket upgrades; empty allows any origin.
	AllowedOrigins []string
}

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

type UserResponse struct {
	Response
	User *models.User `json:"user,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(message string) Response {
	return Response{Success: true, Message: message}
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeAuth, apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err in the envelope. Only AppError messages reach the
// client; everything else is logged and reported generically.
func (h *Handler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError || code == apperr.CodeUpstream {
		h.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", string(code),
			"error", err,
		)
	}
	writeJSON(w, status, Response{Success: false, Message: apperr.MessageOf(err), Code: string(code)})
}

var errBadBody = apperr.Validation("Invalid request body")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required")
		}
		return errBadBody
	}
	return nil
}

// session returns the caller's session; RequireSession guarantees it on the
// routes that use it.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	s, found := middleware.SessionFrom(r.Context())
	if !found {
		h.WriteError(w, r, apperr.ErrNoIdentity)
		return nil, false
	}
	return s, true
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, found := middleware.PrincipalID(r.Context())
	if !found {
		h.WriteError(w, r, apperr.Unauthenticated("missing bearer token"))
		return "", false
	}
	return id, true
}
