package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"

	"directory-api/internal/httpx"
	"directory-api/internal/validate"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type codeNameRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type nameRequest struct {
	Name    string `json:"name"`
	ZipCode string `json:"zip_code"`
}

func (h *Handler) ListCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.repo.ListCountries(r.Context())
	if err != nil {
		serverError(w, err, "failed to list countries")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, countries)
}

func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	countryID, ok := pathID(w, r, "countryID")
	if !ok {
		return
	}
	states, err := h.repo.ListStates(r.Context(), countryID)
	if err != nil {
		serverError(w, err, "failed to list states")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, states)
}

func (h *Handler) ListMunicipalities(w http.ResponseWriter, r *http.Request) {
	stateID, ok := pathID(w, r, "stateID")
	if !ok {
		return
	}
	municipalities, err := h.repo.ListMunicipalities(r.Context(), stateID)
	if err != nil {
		serverError(w, err, "failed to list municipalities")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, municipalities)
}

func (h *Handler) ListColonies(w http.ResponseWriter, r *http.Request) {
	municipalityID, ok := pathID(w, r, "municipalityID")
	if !ok {
		return
	}
	zipCode := strings.TrimSpace(r.URL.Query().Get("zip_code"))
	if zipCode != "" && !validate.IsZipCode(zipCode) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid zip_code")
		return
	}

	colonies, err := h.repo.ListColonies(r.Context(), municipalityID, zipCode)
	if err != nil {
		serverError(w, err, "failed to list colonies")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, colonies)
}

func (h *Handler) ListContactTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.repo.ListContactTypes(r.Context())
	if err != nil {
		serverError(w, err, "failed to list contact types")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, types)
}

func (h *Handler) ListDocumentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.repo.ListDocumentTypes(r.Context())
	if err != nil {
		serverError(w, err, "failed to list document types")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, types)
}

func (h *Handler) CreateCountry(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCodeName(w, r)
	if !ok {
		return
	}
	body.Code = validate.NormalizeUpper(body.Code)

	country, err := h.repo.CreateCountry(r.Context(), body.Code, body.Name)
	if err != nil {
		writeCreateError(w, err, "country")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, country)
}

func (h *Handler) CreateState(w http.ResponseWriter, r *http.Request) {
	countryID, ok := pathID(w, r, "countryID")
	if !ok {
		return
	}
	body, ok := decodeName(w, r, false)
	if !ok {
		return
	}

	state, err := h.repo.CreateState(r.Context(), countryID, body.Name)
	if err != nil {
		writeCreateError(w, err, "state")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, state)
}

func (h *Handler) CreateMunicipality(w http.ResponseWriter, r *http.Request) {
	stateID, ok := pathID(w, r, "stateID")
	if !ok {
		return
	}
	body, ok := decodeName(w, r, false)
	if !ok {
		return
	}

	municipality, err := h.repo.CreateMunicipality(r.Context(), stateID, body.Name)
	if err != nil {
		writeCreateError(w, err, "municipality")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, municipality)
}

func (h *Handler) CreateColony(w http.ResponseWriter, r *http.Request) {
	municipalityID, ok := pathID(w, r, "municipalityID")
	if !ok {
		return
	}
	body, ok := decodeName(w, r, true)
	if !ok {
		return
	}

	colony, err := h.repo.CreateColony(r.Context(), municipalityID, body.Name, body.ZipCode)
	if err != nil {
		writeCreateError(w, err, "colony")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, colony)
}

func (h *Handler) CreateContactType(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCodeName(w, r)
	if !ok {
		return
	}
	t, err := h.repo.CreateContactType(r.Context(), strings.ToLower(body.Code), body.Name)
	if err != nil {
		writeCreateError(w, err, "contact type")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) CreateDocumentType(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCodeName(w, r)
	if !ok {
		return
	}
	t, err := h.repo.CreateDocumentType(r.Context(), strings.ToLower(body.Code), body.Name)
	if err != nil {
		writeCreateError(w, err, "document type")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func decodeCodeName(w http.ResponseWriter, r *http.Request) (codeNameRequest, bool) {
	var body codeNameRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return body, false
	}

	body.Code = strings.TrimSpace(body.Code)
	body.Name = strings.TrimSpace(body.Name)

	errs := validate.Errors{}
	if errs.Required("code", body.Code) {
		errs.MaxLength("code", body.Code, 32)
	}
	if errs.Required("name", body.Name) {
		errs.MaxLength("name", body.Name, 200)
	}
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return body, false
	}
	return body, true
}

func decodeName(w http.ResponseWriter, r *http.Request, withZip bool) (nameRequest, bool) {
	var body nameRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return body, false
	}

	body.Name = strings.TrimSpace(body.Name)
	body.ZipCode = strings.TrimSpace(body.ZipCode)

	errs := validate.Errors{}
	if errs.Required("name", body.Name) {
		errs.MaxLength("name", body.Name, 200)
	}
	if withZip && !validate.IsZipCode(body.ZipCode) {
		errs.Add("zip_code", "zip_code must have 5 digits")
	}
	if !withZip && body.ZipCode != "" {
		errs.Add("zip_code", "zip_code is not allowed here")
	}
	if !errs.Empty() {
		httpx.WriteValidation(w, errs)
		return body, false
	}
	return body, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid "+strings.TrimSuffix(name, "ID")+" id")
		return 0, false
	}
	return id, true
}

func writeCreateError(w http.ResponseWriter, err error, entity string) {
	var missingRef *MissingReferenceError
	switch {
	case errors.As(err, &missingRef):
		httpx.WriteError(w, http.StatusNotFound, missingRef.Message)
	case errors.Is(err, ErrDuplicate):
		httpx.WriteError(w, http.StatusConflict, entity+" already exists")
	default:
		serverError(w, err, "failed to create "+entity)
	}
}

func serverError(w http.ResponseWriter, err error, message string) {
	sentry.CaptureException(err)
	httpx.WriteError(w, http.StatusInternalServerError, message)
}
