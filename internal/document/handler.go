package document

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"directory-api/internal/catalog"
	"directory-api/internal/httpx"
	"directory-api/internal/proceeding"
	"directory-api/internal/session"
)

const MaxUploadBytes = 10 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	fields := map[string]string{}
	typeID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("document_type_id")), 10, 64)
	if err != nil || typeID <= 0 {
		fields["document_type_id"] = "document_type_id is required"
	}
	var proceedingID *string
	if raw := strings.TrimSpace(r.FormValue("proceeding_id")); raw != "" {
		if _, err := uuid.Parse(raw); err != nil {
			fields["proceeding_id"] = "proceeding_id is invalid"
		}
		proceedingID = &raw
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		fields["file"] = "file is required"
	}
	if len(fields) > 0 {
		if file != nil {
			file.Close()
		}
		httpx.WriteValidation(w, fields)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) == 0 {
		httpx.WriteValidation(w, map[string]string{"file": "file is empty"})
		return
	}
	if len(data) > MaxUploadBytes {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "file is too large")
		return
	}

	f, err := h.service.Upload(r.Context(), personID, Upload{
		DocumentTypeID: typeID,
		ProceedingID:   proceedingID,
		FileName:       header.Filename,
		ContentType:    http.DetectContentType(data),
		Data:           data,
	})
	if err != nil {
		writeError(w, err, "failed to upload document")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, f)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	files, err := h.service.List(r.Context(), personID)
	if err != nil {
		writeError(w, err, "failed to list documents")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, files)
}

func (h *Handler) ListByProceeding(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	proceedingID, ok := httpx.PathUUID(w, r, "proceedingID", "proceeding")
	if !ok {
		return
	}
	files, err := h.service.ListByProceeding(r.Context(), personID, proceedingID)
	if err != nil {
		writeError(w, err, "failed to list documents")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, files)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "documentID", "document")
	if !ok {
		return
	}
	f, err := h.service.Get(r.Context(), personID, id)
	if err != nil {
		writeError(w, err, "failed to load document")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, f)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "documentID", "document")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), personID, id); err != nil {
		writeError(w, err, "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func scopedPerson(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := session.PersonID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing session token")
		return "", false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error, message string) {
	var missing *catalog.MissingReferenceError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, proceeding.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &missing):
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": missing.Message, "field": missing.Field})
	case errors.Is(err, ErrInvalidFileName):
		httpx.WriteValidation(w, map[string]string{"file": err.Error()})
	case errors.Is(err, ErrStorageFailure):
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusBadGateway, ErrStorageFailure.Error())
	default:
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, message)
	}
}
