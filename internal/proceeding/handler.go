package proceeding

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"directory-api/internal/httpx"
	"directory-api/internal/session"
)

type Store interface {
	List(ctx context.Context, personID, status string) ([]Proceeding, error)
	Get(ctx context.Context, personID, id string) (Proceeding, error)
	Create(ctx context.Context, personID string, in Input) (Proceeding, error)
	Update(ctx context.Context, personID, id string, in Input) (Proceeding, error)
	Delete(ctx context.Context, personID, id string) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !ValidStatus(status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be open, in_review or closed")
		return
	}
	proceedings, err := h.store.List(r.Context(), personID, status)
	if err != nil {
		writeError(w, err, "failed to list proceedings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, proceedings)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "proceedingID", "proceeding")
	if !ok {
		return
	}
	p, err := h.store.Get(r.Context(), personID, id)
	if err != nil {
		writeError(w, err, "failed to load proceeding")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	in, ok := decode(w, r)
	if !ok {
		return
	}
	p, err := h.store.Create(r.Context(), personID, in)
	if err != nil {
		writeError(w, err, "failed to create proceeding")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "proceedingID", "proceeding")
	if !ok {
		return
	}
	in, ok := decode(w, r)
	if !ok {
		return
	}
	p, err := h.store.Update(r.Context(), personID, id, in)
	if err != nil {
		writeError(w, err, "failed to update proceeding")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "proceedingID", "proceeding")
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), personID, id); err != nil {
		writeError(w, err, "failed to delete proceeding")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var in Input
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return Input{}, false
	}
	if errs := in.Validate(); !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return Input{}, false
	}
	return in, true
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
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrFolioTaken):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, message)
	}
}
