package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"directory-api/internal/httpx"
)

const (
	CookieName = "SessionToken"
	HeaderName = "SessionToken"
	QueryParam = "sessionToken"
	altHeader  = "X-Session-Token"
)

// TokenFromRequest looks for the session token in the cookie, then the
// header, then the query string.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	if value := strings.TrimSpace(r.Header.Get(HeaderName)); value != "" {
		return value
	}
	if value := strings.TrimSpace(r.Header.Get(altHeader)); value != "" {
		return value
	}
	return strings.TrimSpace(r.URL.Query().Get(QueryParam))
}

func Middleware(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
				return
			}

			s, err := service.Validate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, ErrSessionExpired):
					httpx.WriteError(w, http.StatusUnauthorized, "session expired")
				case errors.Is(err, ErrSessionNotFound):
					httpx.WriteError(w, http.StatusUnauthorized, "invalid session token")
				case errors.Is(err, ErrPersonBanned):
					httpx.WriteError(w, http.StatusForbidden, "account is banned")
				default:
					sentry.CaptureException(err)
					httpx.WriteError(w, http.StatusInternalServerError, "failed to validate session")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
		})
	}
}
