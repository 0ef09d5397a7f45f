package person

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"directory-api/internal/auth"
	"directory-api/internal/httpx"
	"directory-api/internal/session"
	"directory-api/internal/validate"
)

const maxPhotoBytes = 5 << 20

var photoTypes = map[string]bool{"image/jpeg": true, "image/png": true, "image/webp": true}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Scope resolves {personID} for staff routes and exposes it through
// session.PersonID, so the same handlers serve /api/me and
// /api/people/{personID}.
func (h *Handler) Scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "personID")
		if _, err := uuid.Parse(id); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid person id")
			return
		}

		exists, err := h.service.Exists(r.Context(), id)
		if err != nil {
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to load person")
			return
		}
		if !exists {
			httpx.WriteError(w, http.StatusNotFound, "person not found")
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithPersonID(r.Context(), id)))
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body CreateInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := body.Validate(h.service.Now()); !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	p, err := h.service.Create(r.Context(), body)
	if err != nil {
		writeServiceError(w, err, "failed to create person")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("banned")); raw != "" {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "banned must be true or false")
			return
		}
		filter.Banned = &banned
	}

	result, err := h.service.List(r.Context(), filter, httpx.ParsePage(r))
	if err != nil {
		writeServiceError(w, err, "failed to list people")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := personID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load person")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := personID(w, r)
	if !ok {
		return
	}

	var body Profile
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := validate.Errors{}
	body.Validate(errs, h.service.Now())
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	p, err := h.service.Update(r.Context(), id, body)
	if err != nil {
		writeServiceError(w, err, "failed to update person")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := personID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "failed to delete person")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	current, ok := session.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	var body changePasswordRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := validate.Errors{}
	errs.Required("current_password", body.CurrentPassword)
	errs.Password("new_password", body.NewPassword)
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	err := h.service.ChangePassword(r.Context(), current.PersonID, body.CurrentPassword, body.NewPassword, current.TokenHash)
	if err != nil {
		if errors.Is(err, ErrWrongPassword) {
			httpx.WriteValidation(w, map[string]string{"current_password": err.Error()})
			return
		}
		writeServiceError(w, err, "failed to change password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type banRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *Handler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	id, ok := personID(w, r)
	if !ok {
		return
	}

	var body banRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	body.Reason = strings.TrimSpace(body.Reason)

	errs := validate.Errors{}
	if banned {
		errs.Required("reason", body.Reason)
	}
	errs.MaxLength("reason", body.Reason, 500)
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return
	}

	actor := ""
	if principal, ok := auth.PrincipalFrom(r.Context()); ok {
		actor = principal.UserID
	}

	var (
		record BanRecord
		err    error
	)
	if banned {
		record, err = h.service.Ban(r.Context(), id, body.Reason, actor)
	} else {
		record, err = h.service.Unban(r.Context(), id, body.Reason, actor)
	}
	if err != nil {
		writeServiceError(w, err, "failed to update ban status")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) BanHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := personID(w, r)
	if !ok {
		return
	}
	history, err := h.service.BanHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load ban history")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := personID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes+(1<<20))
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "photo is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read photo")
		return
	}
	if len(data) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "photo is empty")
		return
	}
	if len(data) > maxPhotoBytes {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "photo is too large")
		return
	}
	contentType := http.DetectContentType(data)
	if !photoTypes[contentType] {
		httpx.WriteError(w, http.StatusUnsupportedMediaType, "photo must be jpeg, png or webp")
		return
	}

	url, err := h.service.UploadPhoto(r.Context(), id, data, contentType)
	if err != nil {
		writeServiceError(w, err, "failed to upload photo")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"photo_url": url})
}

func personID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := session.PersonID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
		return "", false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrCURPTaken),
		errors.Is(err, ErrAlreadyBanned), errors.Is(err, ErrNotBanned):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoImageStorage):
		httpx.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrPhotoUpload):
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusBadGateway, ErrPhotoUpload.Error())
	default:
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, message)
	}
}
