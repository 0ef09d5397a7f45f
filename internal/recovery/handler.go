package recovery

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"directory-api/internal/auth"
	"directory-api/internal/httpx"
	"directory-api/internal/person"
	"directory-api/internal/session"
	"directory-api/internal/validate"
)

type RequestStore interface {
	Create(ctx context.Context, in RequestInput) (Request, error)
	List(ctx context.Context, status string, page httpx.Page) ([]Request, int, error)
	Get(ctx context.Context, id string) (Request, error)
	Resolve(ctx context.Context, id, actor, notes string) (Request, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	codes    *Service
	requests RequestStore
}

func NewHandler(codes *Service, requests RequestStore) *Handler {
	return &Handler{codes: codes, requests: requests}
}

type resetRequest struct {
	Email string `json:"email"`
}

func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body resetRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	body.Email = validate.NormalizeEmail(body.Email)
	errs := validate.Errors{}
	if errs.Required("email", body.Email) {
		errs.Email("email", body.Email)
	}
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	if err := h.codes.RequestPasswordReset(r.Context(), body.Email); err != nil {
		writeError(w, err, "failed to request password reset")
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"message": "if the email is registered, a code was sent"})
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) ValidateResetCode(w http.ResponseWriter, r *http.Request) {
	var body codeRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.codes.CheckResetCode(r.Context(), strings.TrimSpace(body.Code)); err != nil {
		writeError(w, err, "failed to validate code")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type passwordResetRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body passwordResetRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := validate.Errors{}
	errs.Required("code", body.Code)
	errs.Password("new_password", body.NewPassword)
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	if err := h.codes.ResetPassword(r.Context(), strings.TrimSpace(body.Code), body.NewPassword); err != nil {
		writeError(w, err, "failed to reset password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type emailChangeRequest struct {
	Email string `json:"email"`
}

func (h *Handler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	personID, ok := session.PersonID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	var body emailChangeRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	body.Email = validate.NormalizeEmail(body.Email)
	if body.Email != "" && !validate.IsEmail(body.Email) {
		httpx.WriteValidation(w, map[string]string{"email": "email is invalid"})
		return
	}

	entry, err := h.codes.RequestEmailChange(r.Context(), personID, body.Email)
	if err != nil {
		writeError(w, err, "failed to request email change")
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"email": entry.Email, "expires_at": entry.ExpiresAt})
}

func (h *Handler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	personID, ok := session.PersonID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	var body codeRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	email, err := h.codes.ConfirmEmailChange(r.Context(), personID, strings.TrimSpace(body.Code))
	if err != nil {
		writeError(w, err, "failed to confirm email")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"email": email})
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body RequestInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := body.Validate(); !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	req, err := h.requests.Create(r.Context(), body)
	if err != nil {
		writeError(w, err, "failed to create recovery request")
		return
	}
	// The public caller only learns that the request was filed.
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status == "" {
		status = StatusOpen
	}
	if !ValidStatusFilter(status) {
		httpx.WriteError(w, http.StatusBadRequest, ErrUnknownStatusArg.Error())
		return
	}

	page := httpx.ParsePage(r)
	items, total, err := h.requests.List(r.Context(), status, page)
	if err != nil {
		writeError(w, err, "failed to list recovery requests")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.PagedResult[Request]{Items: items, Page: page.Page, PageSize: page.PageSize, Total: total})
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(w, r, "requestID", "recovery request")
	if !ok {
		return
	}
	req, err := h.requests.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "failed to load recovery request")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(w, r, "requestID", "recovery request")
	if !ok {
		return
	}

	var body resolveRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	body.Notes = strings.TrimSpace(body.Notes)
	errs := validate.Errors{}
	errs.MaxLength("notes", body.Notes, 2000)
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	actor := ""
	if principal, ok := auth.PrincipalFrom(r.Context()); ok {
		actor = principal.UserID
	}
	req, err := h.requests.Resolve(r.Context(), id, actor, body.Notes)
	if err != nil {
		writeError(w, err, "failed to resolve recovery request")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(w, r, "requestID", "recovery request")
	if !ok {
		return
	}
	if err := h.requests.Delete(r.Context(), id); err != nil {
		writeError(w, err, "failed to delete recovery request")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, ErrInvalidCode):
		httpx.WriteValidation(w, map[string]string{"code": err.Error()})
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, person.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyResolved), errors.Is(err, person.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrDelivery):
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusBadGateway, ErrDelivery.Error())
	default:
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, message)
	}
}
