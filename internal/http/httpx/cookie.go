// Package httpx holds the transport-boundary helpers for the session cookie.
// All cookie parsing goes through SessionToken so every caller shares one
// extraction order.
package httpx

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session"

// SessionToken extracts the session token from a request, trying in order:
// the parsed cookie jar, a manual scan of the raw Cookie header, and finally
// a token the caller pulled from the request body. First non-empty match wins.
func SessionToken(r *http.Request, bodyToken string) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if raw := r.Header.Get("Cookie"); raw != "" {
		for _, part := range strings.Split(raw, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if ok && name == SessionCookieName && value != "" {
				return value
			}
		}
	}
	return bodyToken
}

// SetSessionCookie delivers a session token as an HttpOnly, SameSite=Strict
// cookie whose Max-Age matches the session lifetime.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie (Max-Age=0).
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
