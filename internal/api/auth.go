package api

import (
	"context"
	"net/http"
	"strings"

	"marketplace/internal/auth"
	"marketplace/internal/models"
)

// Authenticator resolves bearer tokens into sessions.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
	Revoke(ctx context.Context, sessionID string) error
}

// bearer reads the token from the Authorization header. Browsers cannot set
// headers on WebSocket upgrades, so access_token is accepted there as well.
func bearer(r *http.Request, allowQuery bool) string {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if allowQuery {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	return ""
}

// RequireSession rejects requests without a valid session.
func RequireSession(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r, isWebSocket(r))
			if token == "" {
				WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing bearer token")
				return
			}
			session, err := a.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, "invalid or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// OptionalSession attaches a session when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalSession(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearer(r, false); token != "" {
				if session, err := a.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(WithSession(r.Context(), session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole is mounted after RequireSession.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := SessionFromContext(r.Context())
			if s == nil {
				WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing session")
				return
			}
			for _, role := range roles {
				if s.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, http.StatusForbidden, CodeForbidden, "role "+string(s.Role)+" may not access this resource")
		})
	}
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
