package middleware

import (
	"context"
	"net/http"

	"github.com/lumibank/backend/internal/http/httpx"
	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/session"
)

type identityKey struct{}

// WithIdentity resolves the session cookie to an identity once per request
// and stores it on the context. Resolution fails silently: missing or invalid
// tokens leave the request anonymous, and handlers that need an identity
// reject the operation instead.
func WithIdentity(authority *session.Authority, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := httpx.SessionToken(r, ""); token != "" {
			if identity, ok := authority.Validate(r.Context(), token); ok {
				r = r.WithContext(context.WithValue(r.Context(), identityKey{}, identity))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFrom returns the request identity, if one was resolved.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(models.Identity)
	return identity, ok
}
