package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/AnshRaj112/palchat-backend/internal/services"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	sessionKey
)

// TokenParser checks a bearer token and returns the principal id it carries.
type TokenParser interface {
	Parse(token string) (string, error)
}

// SessionResolver finds or rebuilds the session of a principal.
type SessionResolver interface {
	Resume(ctx context.Context, principalID string) (*services.Session, error)
}

// ErrorWriter renders an error response. Handlers supply it so that every
// layer speaks the same envelope.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	// Browser WebSocket clients cannot set headers.
	return r.URL.Query().Get("token")
}

var errMissingToken = apperr.Unauthenticated("missing bearer token")

// RequirePrincipal accepts requests carrying a valid principal token whose
// principal still exists.
func RequirePrincipal(tokens TokenParser, principals services.PrincipalProvider, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeErr(w, r, errMissingToken)
				return
			}
			principalID, err := tokens.Parse(token)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			ok, err := principals.Exists(r.Context(), principalID)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			if !ok {
				writeErr(w, r, apperr.Unauthenticated("unknown principal"))
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession resolves the signed-in session of the principal. Must run
// after RequirePrincipal.
func RequireSession(sessions SessionResolver, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := PrincipalID(r.Context())
			if !ok {
				writeErr(w, r, errMissingToken)
				return
			}
			sess, err := sessions.Resume(r.Context(), principalID)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey).(string)
	return id, ok && id != ""
}

func SessionFrom(ctx context.Context) (*services.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*services.Session)
	return s, ok && s != nil
}
