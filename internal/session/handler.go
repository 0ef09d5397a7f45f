package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"directory-api/internal/httpx"
	"directory-api/internal/validate"
)

// Authenticator checks person credentials and returns the person id. It
// returns ErrInvalidCredentials or ErrPersonBanned on refusal.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (string, error)
}

type Handler struct {
	service      *Service
	auth         Authenticator
	secureCookie bool
}

func NewHandler(service *Service, auth Authenticator, secureCookie bool) *Handler {
	return &Handler{service: service, auth: auth, secureCookie: secureCookie}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	body.Email = validate.NormalizeEmail(body.Email)
	errs := validate.Errors{}
	errs.Email("email", body.Email)
	errs.Required("password", body.Password)
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	personID, err := h.auth.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ErrPersonBanned):
			httpx.WriteError(w, http.StatusForbidden, "account is banned")
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to login")
		}
		return
	}

	issued, err := h.service.Create(r.Context(), personID, httpx.ClientIP(r), r.UserAgent())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, h.cookie(issued.Token, issued.ExpiresAt))
	httpx.WriteJSON(w, http.StatusOK, issued)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Revoke(r.Context(), TokenFromRequest(r)); err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	http.SetCookie(w, h.cookie("", time.Unix(0, 0)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	current, ok := FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	views, err := h.service.List(r.Context(), current.PersonID, current.TokenHash)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) RevokeOne(w http.ResponseWriter, r *http.Request) {
	current, ok := FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	id, ok := httpx.PathUUID(w, r, "sessionID", "session")
	if !ok {
		return
	}

	if err := h.service.RevokeByID(r.Context(), current.PersonID, id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "session not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to revoke session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	current, ok := FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	revoked, err := h.service.RevokeOthers(r.Context(), current.PersonID, current.TokenHash)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to revoke sessions")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"revoked": revoked})
}

func (h *Handler) cookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	return cookie
}
