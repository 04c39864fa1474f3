package routes

import (
	"net/http"

	"github.com/AnshRaj112/palchat-backend/internal/handlers"
	"github.com/AnshRaj112/palchat-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Limits are the per-route rate limiters. A nil limiter disables its limit.
type Limits struct {
	Login  *middleware.KeyedLimiter
	Send   *middleware.KeyedLimiter
	Assist *middleware.KeyedLimiter
}

func limit(l *middleware.KeyedLimiter, key middleware.KeyFunc, message string) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(l, key, message)
}

func SetupRoutes(r chi.Router, h *handlers.Handler, limits Limits) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	// Anonymous principal for a device
	r.Post("/api/auth/principal", h.CreatePrincipal)

	withPrincipal := middleware.RequirePrincipal(h.Tokens, h.Principals, h.WriteError)
	withSession := middleware.RequireSession(h.Sessions, h.WriteError)

	r.Group(func(r chi.Router) {
		r.Use(withPrincipal)

		// Sign-in routes only need a principal
		r.Group(func(r chi.Router) {
			r.Use(limit(limits.Login, middleware.ByIP, "Too many login attempts. Please try again later."))
			r.Post("/api/auth/register", h.Register)
			r.Post("/api/auth/login", h.Login)
		})
		r.Post("/api/auth/logout", h.Logout)
		r.Post("/api/auth/resume", h.Resume)

		r.Group(func(r chi.Router) {
			r.Use(withSession)

			r.Get("/api/me", h.GetMe)
			r.Put("/api/me/profile", h.UpdateProfile)
			r.Put("/api/me/password", h.UpdatePassword)

			r.Get("/api/users/search", h.SearchUsers)

			r.Post("/api/friend-requests", h.SendFriendRequest)
			r.Get("/api/friend-requests/incoming", h.IncomingFriendRequests)
			r.Post("/api/friend-requests/{id}/respond", h.RespondFriendRequest)

			r.Get("/api/friendships", h.ListFriendships)

			r.Get("/api/channels/{id}/messages", h.RecentMessages)
			r.With(limit(limits.Send, middleware.BySessionUser, "You are sending messages too fast.")).
				Post("/api/channels/{id}/messages", h.SendMessage)

			r.Route("/api/assist", func(r chi.Router) {
				r.Use(limit(limits.Assist, middleware.BySessionUser, "Too many assistant requests. Please slow down."))
				r.Post("/rewrite", h.Rewrite)
				r.Post("/summarize", h.Summarize)
			})

			// Live snapshots over WebSocket
			r.Get("/ws/live", h.LiveWebSocket)
		})
	})
}
