package contact

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
	List(ctx context.Context, personID string) ([]Contact, error)
	Get(ctx context.Context, personID, id string) (Contact, error)
	Create(ctx context.Context, personID string, in Input) (Contact, error)
	Update(ctx context.Context, personID, id string, in Input) (Contact, error)
	Delete(ctx context.Context, personID, id string) error
}

type TypeLookup interface {
	ContactType(ctx context.Context, id int64) (catalog.Type, error)
}

type Handler struct {
	store Store
	types TypeLookup
}

func NewHandler(store Store, types TypeLookup) *Handler {
	return &Handler{store: store, types: types}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	contacts, err := h.store.List(r.Context(), personID)
	if err != nil {
		writeError(w, err, "failed to list contacts")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, contacts)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "contactID", "contact")
	if !ok {
		return
	}
	c, err := h.store.Get(r.Context(), personID, id)
	if err != nil {
		writeError(w, err, "failed to load contact")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
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
	c, err := h.store.Create(r.Context(), personID, in)
	if err != nil {
		writeError(w, err, "failed to create contact")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "contactID", "contact")
	if !ok {
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	c, err := h.store.Update(r.Context(), personID, id, in)
	if err != nil {
		writeError(w, err, "failed to update contact")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	personID, ok := scopedPerson(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "contactID", "contact")
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), personID, id); err != nil {
		writeError(w, err, "failed to delete contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

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

	contactType, err := h.types.ContactType(r.Context(), in.ContactTypeID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			err = &catalog.MissingReferenceError{Field: "contact_type_id", Message: "contact type not found"}
		}
		writeError(w, err, "failed to load contact type")
		return Input{}, false
	}
	if errs := in.ValidateValue(contactType.Code); !errs.Empty() {
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
