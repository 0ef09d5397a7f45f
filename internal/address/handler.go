package address

import (
	"context"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"directory-api/internal/catalog"
	"directory-api/internal/httpx"
	"directory-api/internal/session"
)

type Store interface {
	List(ctx context.Context, personID string) ([]Address, error)
	Get(ctx context.Context, personID, id string) (Address, error)
	Create(ctx context.Context, personID string, in Input) (Address, error)
	Update(ctx context.Context, personID, id string, in Input) (Address, error)
	Delete(ctx context.Context, personID, id string) error
}

type LocationChecker interface {
	CheckLocation(ctx context.Context, loc catalog.Location) error
}

// Handler serves the addresses of the person resolved into the request
// context, either the session owner or the {personID} of a staff route.
type Handler struct {
	store     Store
	locations LocationChecker
}

func NewHandler(store Store, locations LocationChecker) *Handler {
	return &Handler{store: store, locations: locations}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	addresses, err := h.store.List(r.Context(), personID)
	if err != nil {
		writeError(w, err, "failed to list addresses")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, addresses)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "addressID", "address")
	if !ok {
		return
	}
	a, err := h.store.Get(r.Context(), personID, id)
	if err != nil {
		writeError(w, err, "failed to load address")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	a, err := h.store.Create(r.Context(), personID, in)
	if err != nil {
		writeError(w, err, "failed to create address")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "addressID", "address")
	if !ok {
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	a, err := h.store.Update(r.Context(), personID, id, in)
	if err != nil {
		writeError(w, err, "failed to update address")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "addressID", "address")
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), personID, id); err != nil {
		writeError(w, err, "failed to delete address")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates the body, then checks the catalog chain.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var in Input
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return Input{}, false
	}
	if errs := in.Validate(); !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return Input{}, false
	}
	if err := h.locations.CheckLocation(r.Context(), in.Location()); err != nil {
		writeError(w, err, "failed to check location")
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
	var missing *catalog.MissingReferenceError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &missing):
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": missing.Message, "field": missing.Field})
	default:
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, message)
	}
}
